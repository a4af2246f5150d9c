package processor

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"

	"github.com/LJTian/GitCodeNews/internal/collector"
	"github.com/google/uuid"
)

// ProcessedRecord 是写入存储层前的单条记录，Position 保留上游顺序
type ProcessedRecord struct {
	ID       string
	Position int
	Title    string
	Time     string
	URL      string
	URLHash  string
}

// ProcessedBatch 一次采集对应一批记录，连同结果来源（线上 / 兜底）一起入库
type ProcessedBatch struct {
	ID        string
	Source    string
	Label     string
	Mode      collector.Mode
	Attempts  int
	Error     string
	FetchedAt time.Time
	Records   []ProcessedRecord
}

// SimpleProcessor 做基础的清洗与 ID 生成；不去重，保持采集顺序
type SimpleProcessor struct {
	now func() time.Time
}

func NewSimpleProcessor() *SimpleProcessor {
	return &SimpleProcessor{now: time.Now}
}

func (p *SimpleProcessor) Process(source string, out collector.Outcome) ProcessedBatch {
	batch := ProcessedBatch{
		ID:        uuid.NewString(),
		Source:    source,
		Label:     out.Label,
		Mode:      out.Mode,
		Attempts:  out.Attempts,
		FetchedAt: p.now(),
		Records:   make([]ProcessedRecord, 0, len(out.Records)),
	}
	if out.Err != nil {
		batch.Error = toValidUTF8(out.Err.Error())
	}

	for i, rec := range out.Records {
		batch.Records = append(batch.Records, ProcessedRecord{
			ID:       uuid.NewString(),
			Position: i,
			Title:    toValidUTF8(rec.Title),
			Time:     rec.Time,
			URL:      rec.URL,
			URLHash:  hashURL(rec.URL),
		})
	}

	return batch
}

// toValidUTF8 将字符串规范为合法 UTF-8，避免 PostgreSQL invalid byte sequence 错误
func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

func hashURL(url string) string {
	h := sha1.New()
	h.Write([]byte(url))
	return hex.EncodeToString(h.Sum(nil))
}
