package main

import (
	"crypto/subtle"
	"log"
	"net/http"

	"github.com/LJTian/GitCodeNews/internal/api"
	"github.com/LJTian/GitCodeNews/internal/config"
	"github.com/LJTian/GitCodeNews/internal/processor"
	"github.com/LJTian/GitCodeNews/internal/runner"
	"github.com/LJTian/GitCodeNews/internal/storage"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr)
	if err != nil {
		log.Fatalf("init store failed: %v", err)
	}
	file := storage.NewJSONFile(cfg.OutputPath)

	var sinks []runner.Sink
	if store.Enabled() {
		sinks = append(sinks, store)
	}
	run := runner.New(cfg.Fetchers(), processor.NewSimpleProcessor(), file, sinks...)

	// 配置了 Redis 时从 Redis 读最新结果，否则直接读快照文件
	var latest api.SnapshotReader = file
	if store.Redis != nil {
		latest = store
	}

	r := gin.Default()
	// 若配置了全局访问密码，则启用 Basic Auth 保护（/health 仍然免认证）
	if cfg.BasicAuthUser != "" && cfg.BasicAuthPass != "" {
		r.Use(basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass))
	}

	apiServer := api.NewServer(latest, store, run.RunOnce)
	apiServer.RegisterRoutes(r)

	addr := ":" + cfg.AppPort
	log.Printf("starting api server at %s ...", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server exit: %v", err)
	}
}

// basicAuthMiddleware 为整个站点增加一个简单的 Basic Auth 访问密码。
// 仅当配置了 APP_BASIC_USER / APP_BASIC_PASS 时启用。
// /health 不做认证，便于健康检查。
func basicAuthMiddleware(user, pass string) gin.HandlerFunc {
	const realm = "Restricted"
	uBytes := []byte(user)
	pBytes := []byte(pass)

	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		u, p, ok := c.Request.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), uBytes) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), pBytes) != 1 {
			c.Header("WWW-Authenticate", `Basic realm="`+realm+`"`)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}
