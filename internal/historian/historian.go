// internal/historian/historian.go drains the sync record queue written by
// cache.Recorder and persists the records in batches.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jason-s-yu/tablesync/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Sink persists one batch of records atomically.
type Sink interface {
	Write(ctx context.Context, records []models.SyncRecord) error
}

// Config tunes the drain loop.
type Config struct {
	Queue      string
	BatchSize  int
	FlushDelay time.Duration
	// PopTimeout bounds each BLPOP so cancellation is noticed. Redis rounds it
	// up to whole seconds.
	PopTimeout time.Duration
	Logger     *logrus.Entry
}

// Service pops records from Redis and hands them to a Sink.
type Service struct {
	rdb  *redis.Client
	sink Sink
	cfg  Config
	log  *logrus.Entry

	batchMu sync.Mutex
	batch   []models.SyncRecord
}

// New builds a service. Zero config values fall back to the defaults.
func New(rdb *redis.Client, sink Sink, cfg Config) *Service {
	if cfg.Queue == "" {
		cfg.Queue = "tablesync_records"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = 500 * time.Millisecond
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = 3 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{
		rdb:   rdb,
		sink:  sink,
		cfg:   cfg,
		log:   cfg.Logger.WithField("component", "historian"),
		batch: make([]models.SyncRecord, 0, cfg.BatchSize),
	}
}

// Run drains the queue until ctx is cancelled, then flushes what is left.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.FlushDelay)
	defer ticker.Stop()

	s.log.WithField("queue", s.cfg.Queue).Info("historian started")
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := s.Flush(flushCtx)
			cancel()
			s.log.Info("historian stopped")
			return err

		case <-ticker.C:
			if err := s.Flush(ctx); err != nil {
				s.log.WithError(err).Error("flush failed")
			}

		default:
			res, err := s.rdb.BLPop(ctx, s.cfg.PopTimeout, s.cfg.Queue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					s.log.WithError(err).Error("BLPop failed")
				}
				continue
			}
			// res[0] is the queue name and res[1] the payload.
			if len(res) < 2 {
				continue
			}
			var rec models.SyncRecord
			if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
				s.log.WithError(err).Warn("invalid sync record")
				continue
			}
			s.append(ctx, rec)
		}
	}
}

func (s *Service) append(ctx context.Context, rec models.SyncRecord) {
	s.batchMu.Lock()
	s.batch = append(s.batch, rec)
	full := len(s.batch) >= s.cfg.BatchSize
	s.batchMu.Unlock()

	if full {
		if err := s.Flush(ctx); err != nil {
			s.log.WithError(err).Error("flush failed")
		}
	}
}

// Flush writes the pending batch. A failed batch is put back for the next attempt.
func (s *Service) Flush(ctx context.Context) error {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return nil
	}
	pending := make([]models.SyncRecord, len(s.batch))
	copy(pending, s.batch)
	s.batch = s.batch[:0]
	s.batchMu.Unlock()

	if err := s.sink.Write(ctx, pending); err != nil {
		s.batchMu.Lock()
		s.batch = append(pending, s.batch...)
		s.batchMu.Unlock()
		return err
	}
	s.log.WithField("count", len(pending)).Debug("flushed sync records")
	return nil
}

// Pending is the number of records waiting for the next flush.
func (s *Service) Pending() int {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return len(s.batch)
}
