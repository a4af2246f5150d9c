package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/LJTian/GitCodeNews/internal/collector"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 配置校验错误
var (
	ErrInvalidPort        = errors.New("app port must be a number between 1 and 65535")
	ErrMissingOutputPath  = errors.New("output path is required")
	ErrInvalidMaxRetries  = errors.New("gitcode.max_retries must be between 1 and 10")
	ErrInvalidTimeout     = errors.New("gitcode.timeout must be positive")
	ErrInvalidBackoffUnit = errors.New("gitcode.backoff_unit must be positive")
)

const maxRetriesLimit = 10

type Config struct {
	AppPort string `yaml:"app_port"`

	PostgresDSN string `yaml:"postgres_dsn"`
	RedisAddr   string `yaml:"redis_addr"`

	BasicAuthUser string `yaml:"basic_auth_user"`
	BasicAuthPass string `yaml:"basic_auth_pass"`

	OutputPath string `yaml:"output_path"`

	GitCode        GitCodeConfig        `yaml:"gitcode"`
	GitHubTrending GitHubTrendingConfig `yaml:"github_trending"`
}

// GitCodeConfig 对应 GitCode 行业动态采集的网络参数
type GitCodeConfig struct {
	Endpoint           string        `yaml:"endpoint"`
	MaxRetries         int           `yaml:"max_retries"`
	Timeout            time.Duration `yaml:"timeout"`
	BackoffUnit        time.Duration `yaml:"backoff_unit"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	BypassProxy        bool          `yaml:"bypass_proxy"`
}

type GitHubTrendingConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

func defaults() *Config {
	return &Config{
		AppPort:    "9000",
		OutputPath: "gitcode_news.json",
		GitCode: GitCodeConfig{
			Endpoint:    collector.DefaultGitCodeURL,
			MaxRetries:  collector.DefaultGitCodeRetries,
			Timeout:     10 * time.Second,
			BackoffUnit: time.Second,
			BypassProxy: true,
		},
		GitHubTrending: GitHubTrendingConfig{
			URL: collector.DefaultGitHubTrendingURL,
		},
	}
}

// Load 依次应用：默认值 → CONFIG_FILE 指向的 YAML → 环境变量（含工作目录下的 .env）
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Printf("config loaded: port=%s output=%s retries=%d timeout=%s github=%v",
		cfg.AppPort, cfg.OutputPath, cfg.GitCode.MaxRetries, cfg.GitCode.Timeout, cfg.GitHubTrending.Enabled)
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.AppPort = getEnv("APP_PORT", c.AppPort)
	c.PostgresDSN = getEnv("POSTGRES_DSN", c.PostgresDSN)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.BasicAuthUser = getEnv("APP_BASIC_USER", c.BasicAuthUser)
	c.BasicAuthPass = getEnv("APP_BASIC_PASS", c.BasicAuthPass)
	c.OutputPath = getEnv("OUTPUT_PATH", c.OutputPath)

	c.GitCode.Endpoint = getEnv("GITCODE_ENDPOINT", c.GitCode.Endpoint)
	c.GitCode.MaxRetries = getEnvInt("GITCODE_MAX_RETRIES", c.GitCode.MaxRetries)
	c.GitCode.Timeout = getEnvDuration("GITCODE_TIMEOUT", c.GitCode.Timeout)
	c.GitCode.BackoffUnit = getEnvDuration("GITCODE_BACKOFF_UNIT", c.GitCode.BackoffUnit)
	c.GitCode.InsecureSkipVerify = getEnvBool("GITCODE_INSECURE_TLS", c.GitCode.InsecureSkipVerify)
	c.GitCode.BypassProxy = getEnvBool("GITCODE_BYPASS_PROXY", c.GitCode.BypassProxy)

	c.GitHubTrending.Enabled = getEnvBool("GITHUB_TRENDING_ENABLED", c.GitHubTrending.Enabled)
	c.GitHubTrending.URL = getEnv("GITHUB_TRENDING_URL", c.GitHubTrending.URL)
}

func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.AppPort)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("%w: %q", ErrInvalidPort, c.AppPort)
	}
	if c.OutputPath == "" {
		return ErrMissingOutputPath
	}
	if c.GitCode.MaxRetries < 1 || c.GitCode.MaxRetries > maxRetriesLimit {
		return ErrInvalidMaxRetries
	}
	if c.GitCode.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.GitCode.BackoffUnit <= 0 {
		return ErrInvalidBackoffUnit
	}
	return nil
}

// GitCodeFetcher 按配置构建 GitCode 采集器
func (c *Config) GitCodeFetcher() *collector.GitCodeFetcher {
	g := collector.NewGitCodeFetcher()
	g.Endpoint = c.GitCode.Endpoint
	g.MaxRetries = c.GitCode.MaxRetries
	g.Timeout = c.GitCode.Timeout
	g.BackoffUnit = c.GitCode.BackoffUnit
	g.InsecureSkipVerify = c.GitCode.InsecureSkipVerify
	g.BypassProxy = c.GitCode.BypassProxy
	return g
}

// Fetchers 返回启用的数据源，GitCode 始终在首位
func (c *Config) Fetchers() []collector.Fetcher {
	fetchers := []collector.Fetcher{c.GitCodeFetcher()}
	if c.GitHubTrending.Enabled {
		fetchers = append(fetchers, &collector.GitHubTrendingFetcher{URL: c.GitHubTrending.URL})
	}
	return fetchers
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("warn: invalid %s=%q, keep %d", key, v, def)
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		log.Printf("warn: invalid %s=%q, keep %v", key, v, def)
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("warn: invalid %s=%q, keep %s", key, v, def)
	}
	return def
}
