// Package ingest feeds normalized grant records through the embedder into the
// vector index and metadata store. Embedding runs in parallel over bounded
// sub-batches; the merge into the stores is serialized. One bad record never
// aborts the batch.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/grantwatch/retrieval/internal/domain"
	"github.com/grantwatch/retrieval/internal/domain/batch"
	"github.com/grantwatch/retrieval/internal/metrics"
)

// Ingestion defaults.
const (
	DefaultSubBatchSize = 64
	DefaultParallelism  = 4
)

// Report summarizes one ingestion batch.
type Report struct {
	Indexed int
	Skipped int
	Items   []batch.Result
}

// Service is the ingestion entrypoint for the retrieval core.
type Service struct {
	embed        Embedder
	index        VectorWriter
	meta         MetadataWriter
	snap         Snapshotter
	subBatchSize int
	parallelism  int
	logger       *zap.Logger

	// mergeMu serializes the index/metadata merge step across batches.
	mergeMu sync.Mutex
}

// New creates an ingestion service. snap may be nil for callers that flush
// snapshots themselves.
func New(embed Embedder, index VectorWriter, meta MetadataWriter, snap Snapshotter, logger *zap.Logger) *Service {
	return &Service{
		embed:        embed,
		index:        index,
		meta:         meta,
		snap:         snap,
		subBatchSize: DefaultSubBatchSize,
		parallelism:  DefaultParallelism,
		logger:       logger,
	}
}

// WithBatching configures sub-batch size and embedding parallelism.
func (s *Service) WithBatching(subBatchSize, parallelism int) *Service {
	if subBatchSize > 0 {
		s.subBatchSize = subBatchSize
	}
	if parallelism > 0 {
		s.parallelism = parallelism
	}
	return s
}

// Ingest embeds and stores a batch of records with upsert semantics.
// Duplicate IDs within a batch keep the last occurrence. Per-record failures
// are reported in the Report and counted, never aborting the batch; the
// returned error covers batch-level failures only (snapshot flush).
func (s *Service) Ingest(ctx context.Context, records []domain.GrantRecord) (Report, error) {
	start := time.Now()

	records = dedupeLastWins(records)

	type slot struct {
		rec domain.GrantRecord
		vec []float32
		err error
	}
	slots := make([]slot, len(records))
	for i, rec := range records {
		slots[i] = slot{rec: rec}
	}

	// Embed sub-batches in parallel; slots are disjoint so no locking is
	// needed until the merge.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)

	for offset := 0; offset < len(slots); offset += s.subBatchSize {
		end := offset + s.subBatchSize
		if end > len(slots) {
			end = len(slots)
		}
		sub := slots[offset:end]

		g.Go(func() error {
			texts := make([]string, len(sub))
			for i := range sub {
				texts[i] = sub[i].rec.EmbeddingText()
			}

			res, err := s.embed.BatchEmbed(gctx, texts)
			if err != nil {
				// The batch call failed as a whole; retry records one by one
				// so a single poison record is isolated instead of sinking
				// its whole sub-batch.
				s.logger.Warn("Sub-batch embedding failed, retrying per record",
					zap.Int("sub_batch_size", len(sub)),
					zap.Error(err),
				)
				for i := range sub {
					single, embErr := s.embed.Embed(gctx, texts[i])
					if embErr != nil {
						sub[i].err = fmt.Errorf("embed record: %w", embErr)
						continue
					}
					sub[i].vec = single.Embedding
				}
				return nil
			}

			for i := range sub {
				sub[i].vec = res.Embeddings[i]
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("embed batch: %w", err)
	}

	// Serialized merge. The index goes first: Put cannot fail, so a rejected
	// vector never strands a record in the metadata store without one.
	s.mergeMu.Lock()
	report := Report{Items: make([]batch.Result, 0, len(slots))}
	for i := range slots {
		id := slots[i].rec.OpportunityID()
		if slots[i].err != nil {
			report.Skipped++
			report.Items = append(report.Items, batch.NewSkipped(id, slots[i].err))
			continue
		}

		domain.NormalizeVector(slots[i].vec)
		if err := s.index.Add(id, slots[i].vec); err != nil {
			report.Skipped++
			report.Items = append(report.Items, batch.NewSkipped(id, fmt.Errorf("index add: %w", err)))
			continue
		}
		s.meta.Put(slots[i].rec)

		report.Indexed++
		report.Items = append(report.Items, batch.NewOK(id))
	}
	s.mergeMu.Unlock()

	metrics.IngestRecordsTotal.WithLabelValues(string(batch.StatusOK)).Add(float64(report.Indexed))
	metrics.IngestRecordsTotal.WithLabelValues(string(batch.StatusSkipped)).Add(float64(report.Skipped))
	metrics.IngestBatchDuration.Observe(time.Since(start).Seconds())
	metrics.IndexEntriesLive.Set(float64(s.index.Len()))

	s.logger.Info("Ingestion batch completed",
		zap.Int("records", len(records)),
		zap.Int("indexed", report.Indexed),
		zap.Int("skipped", report.Skipped),
		zap.Duration("duration", time.Since(start)),
	)

	if s.snap != nil && report.Indexed > 0 {
		if err := s.snap.Flush(ctx); err != nil {
			return report, fmt.Errorf("flush snapshots: %w", err)
		}
	}

	return report, nil
}

// dedupeLastWins drops earlier occurrences of duplicated IDs, preserving the
// relative order of the surviving records.
func dedupeLastWins(records []domain.GrantRecord) []domain.GrantRecord {
	last := make(map[string]int, len(records))
	for i, rec := range records {
		last[rec.OpportunityID()] = i
	}
	out := make([]domain.GrantRecord, 0, len(last))
	for i, rec := range records {
		if last[rec.OpportunityID()] == i {
			out = append(out, rec)
		}
	}
	return out
}
