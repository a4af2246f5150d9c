package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/LJTian/GitCodeNews/internal/collector"
	"github.com/LJTian/GitCodeNews/internal/runner"
	"github.com/LJTian/GitCodeNews/internal/storage"
	"github.com/gin-gonic/gin"
)

// SnapshotReader 提供最近一次采集结果（Redis 或 JSON 文件）
type SnapshotReader interface {
	Latest(ctx context.Context) (collector.Snapshot, error)
}

// HistoryReader 提供历史批次查询
type HistoryReader interface {
	ListBatches(ctx context.Context, label string, limit int) ([]storage.FetchBatch, error)
}

// CollectFunc 执行一轮采集，通常是 runner.Runner.RunOnce
type CollectFunc func(ctx context.Context) (runner.Report, error)

type Server struct {
	latest  SnapshotReader
	history HistoryReader
	collect CollectFunc

	// 同一时刻只允许一轮手动采集
	collecting sync.Mutex
}

func NewServer(latest SnapshotReader, history HistoryReader, collect CollectFunc) *Server {
	return &Server{latest: latest, history: history, collect: collect}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/news", s.listNews)
		v1.GET("/batches", s.listBatches)
		v1.POST("/collect", s.triggerCollect)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listNews(c *gin.Context) {
	snap, err := s.latest.Latest(c.Request.Context())
	if err != nil {
		if errors.Is(err, storage.ErrNoSnapshot) {
			fail(c, http.StatusNotFound, "not_found", "no snapshot yet")
			return
		}
		fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	if source := c.Query("source"); source != "" {
		rs, found := snap[source]
		if !found {
			rs = collector.ResultSet{}
		}
		snap = collector.Snapshot{source: rs}
	}
	ok(c, snap)
}

func (s *Server) listBatches(c *gin.Context) {
	if s.history == nil {
		fail(c, http.StatusServiceUnavailable, "unavailable", "history database not configured")
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}

	list, err := s.history.ListBatches(c.Request.Context(), c.Query("source"), limit)
	if err != nil {
		if errors.Is(err, storage.ErrNoDatabase) {
			fail(c, http.StatusServiceUnavailable, "unavailable", "history database not configured")
			return
		}
		fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	ok(c, list)
}

type collectResult struct {
	Written bool               `json:"written"`
	Count   int                `json:"count"`
	Sources []collectSourceDTO `json:"sources"`
}

type collectSourceDTO struct {
	Label    string `json:"label"`
	Mode     string `json:"mode"`
	Attempts int    `json:"attempts"`
	Count    int    `json:"count"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) triggerCollect(c *gin.Context) {
	if s.collect == nil {
		fail(c, http.StatusServiceUnavailable, "unavailable", "collect not configured")
		return
	}
	if !s.collecting.TryLock() {
		fail(c, http.StatusConflict, "conflict", "a collection is already running")
		return
	}
	defer s.collecting.Unlock()

	report, err := s.collect(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, "collect_failed", err.Error())
		return
	}

	res := collectResult{Written: report.Written, Count: report.Snapshot.Count()}
	for _, o := range report.Outcomes {
		dto := collectSourceDTO{Label: o.Label, Mode: string(o.Mode), Attempts: o.Attempts, Count: len(o.Records)}
		if o.Err != nil {
			dto.Error = o.Err.Error()
		}
		res.Sources = append(res.Sources, dto)
	}
	ok(c, res)
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    data,
	})
}

func fail(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": msg,
	})
}
