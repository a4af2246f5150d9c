package collector

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"
)

const (
	GitCodeLabel          = "GitCode"
	DefaultGitCodeURL     = "https://web-api.gitcode.com/api/v1/agg/index"
	DefaultGitCodeRetries = 3

	gitCodeChannelID        = "67bc3f5f97a0293d6bfebd01"
	gitCodeMaxResponseBytes = 2 << 20 // 2MB
	gitCodeClientTimeout    = 10 * time.Second
	gitCodeBackoffUnit      = time.Second

	// gitCodeMaxBackoffShift 退避指数上限，防止 1<<attempt 溢出
	gitCodeMaxBackoffShift = 10
)

var (
	// ErrUnexpectedStatus 上游返回非 2xx，按网络错误处理并重试
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrInvalidPayload 响应体不是合法 JSON，不重试，直接使用兜底数据
	ErrInvalidPayload = errors.New("invalid json payload")
	// ErrResponseTooLarge 响应体超过上限，不重试，直接使用兜底数据
	ErrResponseTooLarge = errors.New("response too large")
)

var gitCodeHeaders = map[string]string{
	"Accept":          "application/json, text/plain, */*",
	"Accept-Language": "zh-CN,zh;q=0.9,en;q=0.8",
	"Origin":          "https://gitcode.com",
	"Referer":         "https://gitcode.com/",
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/134.0.0.0 Safari/537.36",
	"X-App-Channel":   "gitcode-fe",
	"X-Platform":      "web",
}

func gitCodeQuery() url.Values {
	return url.Values{
		"page":           {"1"},
		"per_page":       {"10"},
		"total":          {"0"},
		"channel_id":     {gitCodeChannelID},
		"sub_channel_id": {""},
		"m_code":         {"dynamics"},
		"d_code":         {"industry_news"},
		"c_id":           {gitCodeChannelID},
	}
}

// GitCodeFetcher 拉取 GitCode 行业动态。网络失败按指数退避重试，
// 重试耗尽或响应无法解析时返回兜底数据，从不向调用方返回错误。
type GitCodeFetcher struct {
	Endpoint   string
	MaxRetries int
	// Timeout 单次请求超时
	Timeout time.Duration
	// BackoffUnit 第 n 次失败后等待 BackoffUnit * 2^n
	BackoffUnit        time.Duration
	BypassProxy        bool
	InsecureSkipVerify bool

	Now   func() time.Time
	Sleep func(time.Duration)
	// Rand 兜底数据的时间抖动来源，nil 时使用全局随机源
	Rand *rand.Rand
}

func NewGitCodeFetcher() *GitCodeFetcher {
	return &GitCodeFetcher{
		Endpoint:    DefaultGitCodeURL,
		MaxRetries:  DefaultGitCodeRetries,
		Timeout:     gitCodeClientTimeout,
		BackoffUnit: gitCodeBackoffUnit,
		BypassProxy: true,
	}
}

func (g *GitCodeFetcher) Name() string {
	return "gitcode_news"
}

func (g *GitCodeFetcher) Label() string {
	return GitCodeLabel
}

// Fetch 使用配置的重试次数执行一次采集，错误恒为 nil
func (g *GitCodeFetcher) Fetch() (Outcome, error) {
	return g.Retrieve(g.MaxRetries), nil
}

// FetchNews 返回本轮结果；失败只会表现为空结果或兜底数据
func (g *GitCodeFetcher) FetchNews(maxRetries int) ResultSet {
	return g.Retrieve(maxRetries).Records
}

// Retrieve 与 FetchNews 行为一致，但保留结果来源（线上 / 兜底）供日志与入库使用
func (g *GitCodeFetcher) Retrieve(maxRetries int) Outcome {
	if maxRetries < 1 {
		maxRetries = 1
	}
	log.Println("fetch GitCode industry news...")

	client := g.newClient()
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		body, err := g.get(client)
		if errors.Is(err, ErrResponseTooLarge) {
			log.Printf("%v, use mock data", err)
			return g.fallback(attempt, err)
		}
		if err != nil {
			lastErr = err
			log.Printf("gitcode: attempt %d/%d failed: %v", attempt, maxRetries, err)
			if attempt < maxRetries {
				wait := g.backoff(attempt)
				log.Printf("gitcode: retry in %s", wait)
				g.sleep(wait)
			}
			continue
		}

		records, err := g.decode(body)
		if err != nil {
			log.Printf("%v, use mock data", err)
			return g.fallback(attempt, err)
		}
		log.Printf("gitcode: fetched %d items (attempt %d)", len(records), attempt)
		return Outcome{
			Label:    GitCodeLabel,
			Mode:     ModeLive,
			Records:  records,
			Attempts: attempt,
		}
	}

	log.Printf("gitcode: max retries reached, use mock data")
	return g.fallback(maxRetries, lastErr)
}

func (g *GitCodeFetcher) get(client *http.Client) ([]byte, error) {
	u, err := url.Parse(g.endpoint())
	if err != nil {
		return nil, fmt.Errorf("gitcode: parse endpoint: %w", err)
	}
	u.RawQuery = gitCodeQuery().Encode()

	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("gitcode: build request: %w", err)
	}
	for k, v := range gitCodeHeaders {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gitcode: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("gitcode: %w %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, gitCodeMaxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("gitcode: read body: %w", err)
	}
	if len(body) > gitCodeMaxResponseBytes {
		return nil, fmt.Errorf("gitcode: %w (> %d bytes)", ErrResponseTooLarge, gitCodeMaxResponseBytes)
	}
	return body, nil
}

// decode 解析响应体。非法 JSON 返回 ErrInvalidPayload；
// 合法 JSON 但没有 content 数组时视为空结果，而不是失败。
func (g *GitCodeFetcher) decode(body []byte) (ResultSet, error) {
	if !json.Valid(body) {
		return nil, fmt.Errorf("gitcode: decode payload: %w", ErrInvalidPayload)
	}

	records := make(ResultSet, 0)
	var payload struct {
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return records, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(payload.Content, &items); err != nil {
		return records, nil
	}

	now := g.now()
	for i, raw := range items {
		rec, ok := Normalize(parseRawItem(raw), now)
		if !ok {
			log.Printf("gitcode: drop item %d: missing title or url", i)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (g *GitCodeFetcher) fallback(attempts int, cause error) Outcome {
	return Outcome{
		Label:    GitCodeLabel,
		Mode:     ModeFallback,
		Records:  MockResultSet(g.now(), g.Rand),
		Attempts: attempts,
		Err:      cause,
	}
}

// newClient 每次调用单独构建，代理与证书校验按配置固定，不在重试间变化
func (g *GitCodeFetcher) newClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if g.BypassProxy {
		transport.Proxy = nil
	}
	if g.InsecureSkipVerify {
		// 仅在显式配置时关闭证书校验
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = gitCodeClientTimeout
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

func (g *GitCodeFetcher) backoff(attempt int) time.Duration {
	unit := g.BackoffUnit
	if unit <= 0 {
		unit = gitCodeBackoffUnit
	}
	shift := min(max(attempt, 0), gitCodeMaxBackoffShift)
	return unit * time.Duration(1<<shift)
}

func (g *GitCodeFetcher) endpoint() string {
	if g.Endpoint == "" {
		return DefaultGitCodeURL
	}
	return g.Endpoint
}

func (g *GitCodeFetcher) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g *GitCodeFetcher) sleep(d time.Duration) {
	if g.Sleep != nil {
		g.Sleep(d)
		return
	}
	time.Sleep(d)
}
