package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/LJTian/GitCodeNews/internal/collector"
	"github.com/LJTian/GitCodeNews/internal/processor"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// latestKey Redis hash：field 为来源标签，value 为该来源最近一次的 ResultSet（JSON）
const latestKey = "news:latest"

var (
	// ErrNoDatabase 未配置 POSTGRES_DSN 时查询历史
	ErrNoDatabase = errors.New("database not configured")
	// ErrNoSnapshot 尚未有任何一次成功写出的快照
	ErrNoSnapshot = errors.New("no snapshot yet")
)

// FetchBatch 一次采集一行，append-only，不做跨批次去重
type FetchBatch struct {
	ID        string            `gorm:"primaryKey;size:36" json:"id"`
	Source    string            `gorm:"size:64;index" json:"source"`
	Label     string            `gorm:"size:64;index" json:"label"`
	Mode      string            `gorm:"size:16;index" json:"mode"` // live / fallback
	Attempts  int               `json:"attempts"`
	Count     int               `json:"count"`
	Meta      datatypes.JSONMap `gorm:"type:jsonb" json:"meta"`
	FetchedAt time.Time         `gorm:"index" json:"fetchedAt"`

	Records []NewsRecord `gorm:"foreignKey:BatchID" json:"records,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// NewsRecord 批次内的一条记录，Position 为上游顺序
type NewsRecord struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	BatchID  string `gorm:"size:36;index" json:"batchId"`
	Position int    `json:"position"`
	Title    string `gorm:"size:512" json:"title"`
	Time     string `gorm:"size:5" json:"time"`
	URL      string `gorm:"size:1024" json:"url"`
	URLHash  string `gorm:"size:40;index" json:"urlHash"`

	CreatedAt time.Time `json:"createdAt"`
}

// Store 历史批次落 PostgreSQL，最新快照放 Redis；两者都可以为空（未配置）
type Store struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func NewStore(dsn, redisAddr string) (*Store, error) {
	s := &Store{}

	if dsn != "" {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := migrate(db); err != nil {
			return nil, err
		}
		s.DB = db
	}

	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr: redisAddr,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("warn: redis ping failed: %v", err)
		}
		s.Redis = rdb
	}

	return s, nil
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&FetchBatch{}, &NewsRecord{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Enabled 至少配置了一种后端
func (s *Store) Enabled() bool {
	return s != nil && (s.DB != nil || s.Redis != nil)
}

// SaveBatch 在一个事务里写入批次及其记录，随后刷新 Redis 中该来源的最新结果。
// 空批次只进历史，不覆盖 Redis，与快照文件“空结果不写”保持一致。
func (s *Store) SaveBatch(ctx context.Context, b processor.ProcessedBatch) error {
	if s.DB != nil {
		if err := s.saveHistory(ctx, b); err != nil {
			return err
		}
	}
	if s.Redis != nil && len(b.Records) > 0 {
		if err := s.publishLatest(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) saveHistory(ctx context.Context, b processor.ProcessedBatch) error {
	batch := &FetchBatch{
		ID:        b.ID,
		Source:    b.Source,
		Label:     b.Label,
		Mode:      string(b.Mode),
		Attempts:  b.Attempts,
		Count:     len(b.Records),
		FetchedAt: b.FetchedAt,
	}
	if b.Error != "" {
		batch.Meta = datatypes.JSONMap{"error": b.Error}
	}

	records := make([]NewsRecord, 0, len(b.Records))
	for _, r := range b.Records {
		records = append(records, NewsRecord{
			ID:       r.ID,
			BatchID:  b.ID,
			Position: r.Position,
			Title:    r.Title,
			Time:     r.Time,
			URL:      r.URL,
			URLHash:  r.URLHash,
		})
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Records").Create(batch).Error; err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(records, 100).Error; err != nil {
			return fmt.Errorf("insert records: %w", err)
		}
		return nil
	})
}

func (s *Store) publishLatest(ctx context.Context, b processor.ProcessedBatch) error {
	rs := make(collector.ResultSet, 0, len(b.Records))
	for _, r := range b.Records {
		rs = append(rs, collector.Record{Title: r.Title, Time: r.Time, URL: r.URL})
	}
	bs, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("encode latest %s: %w", b.Label, err)
	}
	if err := s.Redis.HSet(ctx, latestKey, b.Label, bs).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", b.Label, err)
	}
	return nil
}

// Latest 从 Redis 读取各来源最近一次的结果
func (s *Store) Latest(ctx context.Context) (collector.Snapshot, error) {
	if s.Redis == nil {
		return nil, errors.New("redis not configured")
	}
	fields, err := s.Redis.HGetAll(ctx, latestKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNoSnapshot
	}
	snap := make(collector.Snapshot, len(fields))
	for label, raw := range fields {
		var rs collector.ResultSet
		if err := json.Unmarshal([]byte(raw), &rs); err != nil {
			log.Printf("warn: decode latest %s: %v", label, err)
			continue
		}
		snap[label] = rs
	}
	return snap, nil
}

// ListBatches 按时间倒序返回最近的批次（含记录），label 为空时返回全部来源
func (s *Store) ListBatches(ctx context.Context, label string, limit int) ([]FetchBatch, error) {
	if s.DB == nil {
		return nil, ErrNoDatabase
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	db := s.DB.WithContext(ctx).Model(&FetchBatch{}).
		Preload("Records", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") })
	if label != "" {
		db = db.Where("label = ?", label)
	}

	var list []FetchBatch
	if err := db.Order("fetched_at DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
