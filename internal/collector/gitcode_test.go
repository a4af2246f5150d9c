package collector

import (
	"bytes"
	"errors"
	"log"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// newTestFetcher 返回指向测试服务器的 fetcher，退避等待只记录不真正 sleep
func newTestFetcher(endpoint string, sleeps *[]time.Duration) *GitCodeFetcher {
	g := NewGitCodeFetcher()
	g.Endpoint = endpoint
	g.Timeout = 2 * time.Second
	g.Now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, cst) }
	g.Sleep = func(d time.Duration) { *sleeps = append(*sleeps, d) }
	g.Rand = rand.New(rand.NewPCG(1, 2))
	return g
}

func TestGitCodeFetchLivePayload(t *testing.T) {
	var gotQuery, gotUA, gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotUA = r.Header.Get("User-Agent")
		gotReferer = r.Header.Get("Referer")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[
			{"industry_news":{"title":"行业动态一","publish_time":"2024-01-01T03:15:00Z"},"project_info":{"web_url":"https://gitcode.com/a/one"}},
			{"industry_news":{"title":"没有链接"}},
			{"project_info":{"name":"two","description":"second","web_url":"https://gitcode.com/a/two"}},
			42
		]}`))
	}))
	defer srv.Close()

	var sleeps []time.Duration
	out := newTestFetcher(srv.URL, &sleeps).Retrieve(3)

	if out.Mode != ModeLive {
		t.Fatalf("mode = %s, want live", out.Mode)
	}
	if out.Attempts != 1 || len(sleeps) != 0 {
		t.Fatalf("attempts = %d sleeps = %v, want single attempt", out.Attempts, sleeps)
	}
	want := ResultSet{
		{Title: "行业动态一", Time: "11:15", URL: "https://gitcode.com/a/one"},
		{Title: "two: second", Time: "12:00", URL: "https://gitcode.com/a/two"},
	}
	if len(out.Records) != len(want) {
		t.Fatalf("got %d records, want %d: %+v", len(out.Records), len(want), out.Records)
	}
	for i := range want {
		if out.Records[i] != want[i] {
			t.Fatalf("records[%d] = %+v, want %+v", i, out.Records[i], want[i])
		}
	}

	if gotUA == "" || gotReferer != "https://gitcode.com/" {
		t.Fatalf("browser headers not sent: ua=%q referer=%q", gotUA, gotReferer)
	}
	q := gitCodeQuery().Encode()
	if gotQuery != q {
		t.Fatalf("query = %q, want %q", gotQuery, q)
	}
}

func TestGitCodeFetchFallsBackAfterRetries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "upstream err", http.StatusBadGateway)
	}))
	defer srv.Close()

	var sleeps []time.Duration
	g := newTestFetcher(srv.URL, &sleeps)
	out := g.Retrieve(3)

	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("upstream hits = %d, want 3", got)
	}
	if len(sleeps) != 2 || sleeps[0] != 2*time.Second || sleeps[1] != 4*time.Second {
		t.Fatalf("backoff = %v, want [2s 4s]", sleeps)
	}
	if out.Mode != ModeFallback {
		t.Fatalf("mode = %s, want fallback", out.Mode)
	}
	if !errors.Is(out.Err, ErrUnexpectedStatus) {
		t.Fatalf("err = %v, want ErrUnexpectedStatus", out.Err)
	}
	if len(out.Records) != 10 {
		t.Fatalf("mock records = %d, want 10", len(out.Records))
	}
	for i, rec := range out.Records {
		if rec.URL == "" || rec.URL != MockURL(mockProjects[i].Name) {
			t.Fatalf("records[%d].URL = %q, want %q", i, rec.URL, MockURL(mockProjects[i].Name))
		}
	}
}

func TestGitCodeFetchNewsConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	var sleeps []time.Duration
	records := newTestFetcher(endpoint, &sleeps).FetchNews(3)
	if len(records) != 10 {
		t.Fatalf("expected 10 mock records, got %d", len(records))
	}
	if len(sleeps) != 2 {
		t.Fatalf("expected 2 backoff waits, got %v", sleeps)
	}
}

func TestGitCodeFetchRetriesThenSucceeds(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"content":[{"industry_news":{"title":"ok"},"project_info":{"web_url":"https://gitcode.com/ok"}}]}`))
	}))
	defer srv.Close()

	var sleeps []time.Duration
	out := newTestFetcher(srv.URL, &sleeps).Retrieve(3)
	if out.Mode != ModeLive || out.Attempts != 2 {
		t.Fatalf("mode=%s attempts=%d, want live on attempt 2", out.Mode, out.Attempts)
	}
	if len(sleeps) != 1 || sleeps[0] != 2*time.Second {
		t.Fatalf("backoff = %v, want [2s]", sleeps)
	}
	if len(out.Records) != 1 || out.Records[0].Title != "ok" {
		t.Fatalf("unexpected records: %+v", out.Records)
	}
}

func TestGitCodeFetchInvalidJSONNoRetry(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	var sleeps []time.Duration
	out := newTestFetcher(srv.URL, &sleeps).Retrieve(3)
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("upstream hits = %d, want 1 (decode errors are not retried)", got)
	}
	if len(sleeps) != 0 {
		t.Fatalf("unexpected backoff: %v", sleeps)
	}
	if out.Mode != ModeFallback || !errors.Is(out.Err, ErrInvalidPayload) {
		t.Fatalf("mode=%s err=%v, want fallback with ErrInvalidPayload", out.Mode, out.Err)
	}
	if len(out.Records) != 10 {
		t.Fatalf("mock records = %d, want 10", len(out.Records))
	}
}

func TestGitCodeFetchEmptyContentIsNotFallback(t *testing.T) {
	bodies := []string{
		`{"content":[]}`,
		`{"content":null}`,
		`{"other":1}`,
		`{"content":{"not":"a list"}}`,
		`[1,2,3]`,
	}
	for _, body := range bodies {
		body := body
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(body))
		}))

		var sleeps []time.Duration
		out := newTestFetcher(srv.URL, &sleeps).Retrieve(3)
		srv.Close()

		if out.Mode != ModeLive {
			t.Fatalf("body %s: mode = %s, want live", body, out.Mode)
		}
		if out.Records == nil || len(out.Records) != 0 {
			t.Fatalf("body %s: records = %#v, want empty non-nil", body, out.Records)
		}
	}
}

func TestGitCodeRetrieveClampsRetries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	var sleeps []time.Duration
	out := newTestFetcher(srv.URL, &sleeps).Retrieve(0)
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("hits = %d, want 1", got)
	}
	if out.Mode != ModeFallback || out.Attempts != 1 {
		t.Fatalf("mode=%s attempts=%d", out.Mode, out.Attempts)
	}
}

func TestGitCodeBackoffIsExponential(t *testing.T) {
	g := &GitCodeFetcher{BackoffUnit: time.Millisecond}
	for attempt, want := range map[int]time.Duration{1: 2 * time.Millisecond, 2: 4 * time.Millisecond, 3: 8 * time.Millisecond} {
		if got := g.backoff(attempt); got != want {
			t.Fatalf("backoff(%d) = %s, want %s", attempt, got, want)
		}
	}
	if got := (&GitCodeFetcher{}).backoff(1); got != 2*time.Second {
		t.Fatalf("default unit backoff(1) = %s, want 2s", got)
	}
}

func TestGitCodeBackoffIsCapped(t *testing.T) {
	g := &GitCodeFetcher{BackoffUnit: time.Second}
	want := time.Second << gitCodeMaxBackoffShift
	for _, attempt := range []int{gitCodeMaxBackoffShift, 34, 64, 1000} {
		if got := g.backoff(attempt); got != want {
			t.Fatalf("backoff(%d) = %s, want %s", attempt, got, want)
		}
	}
}

func TestGitCodeResponseTooLarge(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		// 合法 JSON，但超过读取上限
		pad := strings.Repeat("x", gitCodeMaxResponseBytes)
		_, _ = w.Write([]byte(`{"content":[],"pad":"` + pad + `"}`))
	}))
	defer srv.Close()

	var sleeps []time.Duration
	out := newTestFetcher(srv.URL, &sleeps).Retrieve(3)

	if !errors.Is(out.Err, ErrResponseTooLarge) {
		t.Fatalf("err = %v, want ErrResponseTooLarge", out.Err)
	}
	if errors.Is(out.Err, ErrInvalidPayload) {
		t.Fatalf("oversized body must not be reported as invalid json")
	}
	if out.Mode != ModeFallback || len(out.Records) != 10 {
		t.Fatalf("mode=%s records=%d, want fallback with 10", out.Mode, len(out.Records))
	}
	if got := atomic.LoadInt32(&hits); got != 1 || len(sleeps) != 0 {
		t.Fatalf("hits=%d sleeps=%v, want a single attempt", got, sleeps)
	}
}

func TestGitCodeFallbackLogHasSinglePrefix(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	var sleeps []time.Duration
	newTestFetcher(srv.URL, &sleeps).Retrieve(1)

	text := buf.String()
	if !strings.Contains(text, "gitcode: decode payload") {
		t.Fatalf("missing decode log line:\n%s", text)
	}
	if strings.Contains(text, "gitcode: gitcode:") {
		t.Fatalf("duplicated log prefix:\n%s", text)
	}
}
