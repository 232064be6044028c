package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/screener/internal/universe"
	"github.com/wonny/screener/pkg/logger"
)

// ListingSource fetches the exchange listing
type ListingSource interface {
	Listings(ctx context.Context) ([]universe.Listing, error)
}

// ListingSink stores the listing
type ListingSink interface {
	SaveListings(ctx context.Context, listings []universe.Listing) error
}

// UniverseSyncJob refreshes the stored symbol universe
// ⭐ SSOT: 종목 목록 동기화 스케줄은 이 Job에서만
type UniverseSyncJob struct {
	source ListingSource
	sink   ListingSink
	logger *logger.Logger
}

// NewUniverseSyncJob creates a new universe sync job
func NewUniverseSyncJob(source ListingSource, sink ListingSink, log *logger.Logger) *UniverseSyncJob {
	return &UniverseSyncJob{
		source: source,
		sink:   sink,
		logger: log,
	}
}

// Name returns the job name
func (j *UniverseSyncJob) Name() string {
	return "universe_sync"
}

// Schedule returns the cron schedule (weekdays at 8 AM, before the open)
func (j *UniverseSyncJob) Schedule() string {
	return "0 0 8 * * 1-5"
}

// Run fetches the listing and upserts it
func (j *UniverseSyncJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled universe sync")

	listings, err := j.source.Listings(ctx)
	if err != nil {
		return fmt.Errorf("fetch listings: %w", err)
	}
	if len(listings) == 0 {
		return fmt.Errorf("listing source returned no rows")
	}

	if err := j.sink.SaveListings(ctx, listings); err != nil {
		return fmt.Errorf("save listings: %w", err)
	}

	st := 0
	for _, l := range listings {
		if l.IsST() {
			st++
		}
	}
	j.logger.WithFields(map[string]interface{}{
		"listings": len(listings),
		"st":       st,
	}).Info("Universe sync completed")

	return nil
}
