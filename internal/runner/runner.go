package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/LJTian/GitCodeNews/internal/collector"
	"github.com/LJTian/GitCodeNews/internal/processor"
)

// Sink 接收处理后的批次，例如 PostgreSQL/Redis 存储
type Sink interface {
	SaveBatch(ctx context.Context, b processor.ProcessedBatch) error
}

// SnapshotWriter 负责把本轮快照落盘
type SnapshotWriter interface {
	WriteSnapshot(snap collector.Snapshot) error
}

// previousSnapshot 由能读回上一次快照的 writer 实现（如 storage.JSONFile），
// 用于沿用本轮失败来源的旧数据
type previousSnapshot interface {
	ReadSnapshot() (collector.Snapshot, error)
}

// Report 一轮采集的结果
type Report struct {
	Snapshot collector.Snapshot
	Outcomes []collector.Outcome
	// Written 快照是否已写出（全部来源均为空时跳过）
	Written bool
	// Carried 本轮失败、沿用上一次快照数据的来源标签
	Carried []string
}

type Runner struct {
	fetchers  []collector.Fetcher
	processor *processor.SimpleProcessor
	writer    SnapshotWriter
	sinks     []Sink
}

func New(fetchers []collector.Fetcher, p *processor.SimpleProcessor, writer SnapshotWriter, sinks ...Sink) *Runner {
	if p == nil {
		p = processor.NewSimpleProcessor()
	}
	return &Runner{
		fetchers:  fetchers,
		processor: p,
		writer:    writer,
		sinks:     sinks,
	}
}

// RunOnce 依次执行各数据源，写出快照后把批次交给各 sink。
// 只有快照写入失败会作为错误返回，单个来源或 sink 的失败只记日志。
func (r *Runner) RunOnce(ctx context.Context) (Report, error) {
	log.Println("start collect job...")

	report := Report{Snapshot: collector.Snapshot{}}
	batches := make([]processor.ProcessedBatch, 0, len(r.fetchers))
	var failed []string

	for _, f := range r.fetchers {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		name := f.Name()
		log.Printf("fetch from %s...", name)
		out, err := f.Fetch()
		if err != nil {
			log.Printf("fetch %s error: %v", name, err)
			failed = append(failed, f.Label())
			continue
		}
		if out.Label == "" {
			out.Label = f.Label()
		}
		if out.Records == nil {
			out.Records = collector.ResultSet{}
		}
		if out.Mode == collector.ModeFallback {
			log.Printf("%s: using fallback data after %d attempts: %v", name, out.Attempts, out.Err)
		}
		log.Printf("%s done, mode=%s records=%d", name, out.Mode, len(out.Records))

		report.Outcomes = append(report.Outcomes, out)
		report.Snapshot[out.Label] = out.Records
		batches = append(batches, r.processor.Process(name, out))
	}

	if report.Snapshot.Count() == 0 {
		log.Println("collect job: no records, skip writing snapshot")
	} else if r.writer != nil {
		r.carryForward(&report, failed)
		if err := r.writer.WriteSnapshot(report.Snapshot); err != nil {
			return report, fmt.Errorf("write snapshot: %w", err)
		}
		report.Written = true
	}

	for _, b := range batches {
		for _, s := range r.sinks {
			if err := s.SaveBatch(ctx, b); err != nil {
				log.Printf("save %s batch error: %v", b.Source, err)
			}
		}
	}

	log.Printf("collect job done, %d records from %d sources", report.Snapshot.Count(), len(report.Outcomes))
	return report, nil
}

// carryForward 把失败来源在上一次快照中的记录并入本轮快照，避免覆盖写时丢失
func (r *Runner) carryForward(report *Report, failed []string) {
	if len(failed) == 0 {
		return
	}
	prev, ok := r.writer.(previousSnapshot)
	if !ok {
		return
	}
	old, err := prev.ReadSnapshot()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("warn: read previous snapshot: %v", err)
		}
		return
	}
	for _, label := range failed {
		if _, fresh := report.Snapshot[label]; fresh {
			continue
		}
		rs, found := old[label]
		if !found {
			continue
		}
		report.Snapshot[label] = rs
		report.Carried = append(report.Carried, label)
		log.Printf("%s: keep %d records from previous snapshot", label, len(rs))
	}
}
