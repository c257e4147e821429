package cron

import (
	"context"
	"fmt"
	"time"

	dbpkg "github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	"gorm.io/gorm"
)

const (
	outboxRetentionDays  = 30
	outboxRetentionBatch = 1000
	// a pass never deletes more than this many chunks so the lock is not
	// held indefinitely after a long relay outage
	outboxRetentionMaxChunks = 100
)

// OutboxRetentionJobParams configure the published-event cleanup.
type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         dbpkg.TxRunner
	Repository outboxRetentionRepo
	Retention  int
	BatchSize  int
	Every      time.Duration
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
}

type outboxRetentionJob struct {
	logg      *logger.Logger
	db        dbpkg.TxRunner
	repo      outboxRetentionRepo
	retention time.Duration
	batch     int
	every     time.Duration
	now       func() time.Time
}

// NewOutboxRetentionJob builds the job that prunes relayed outbox rows.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Repository == nil:
		return nil, fmt.Errorf("outbox repository required")
	}
	days := params.Retention
	if days <= 0 {
		days = outboxRetentionDays
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = outboxRetentionBatch
	}
	return &outboxRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repository,
		retention: time.Duration(days) * 24 * time.Hour,
		batch:     batch,
		every:     params.Every,
		now:       time.Now,
	}, nil
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Every reports the job's own cadence; zero means every scheduler cycle.
func (j *outboxRetentionJob) Every() time.Duration { return j.every }

// Run deletes published rows past the retention window one chunk per
// transaction until a short chunk signals nothing is left.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var total int64
	chunks := 0
	for ; chunks < outboxRetentionMaxChunks; chunks++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		var deleted int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			deleted, err = j.repo.DeletePublishedBefore(tx, cutoff, j.batch)
			return err
		})
		if err != nil {
			return fmt.Errorf("outbox retention after %d rows: %w", total, err)
		}
		total += deleted
		if deleted < int64(j.batch) {
			break
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": total,
		"chunks":       chunks + 1,
	}), "outbox retention cleanup complete")
	return nil
}
