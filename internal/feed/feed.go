// Package feed delivers live incident events to the engine, either from a redis
// list or from a local simulator.
package feed

import (
	"context"
	"time"

	"github.com/jengzang/crime-risk-backend-go/internal/logging"
	"github.com/jengzang/crime-risk-backend-go/internal/models"
)

// Source yields batches of live events. Next blocks until events arrive, a poll
// window elapses (returning an empty batch) or ctx is done.
type Source interface {
	Next(ctx context.Context) ([]models.LiveEvent, error)
	Close() error
}

// Ingester accepts live events.
type Ingester interface {
	IngestLiveEvent(ctx context.Context, ev models.LiveEvent) (models.IngestResult, error)
}

// retryDelay is how long Run waits after a source error.
var retryDelay = time.Second

// Run pulls from src and ingests every event until ctx is done. Source errors are
// logged and retried. Rejected events are logged and skipped.
func Run(ctx context.Context, src Source, ing Ingester) error {
	log := logging.WithComponent("feed")
	for {
		events, err := src.Next(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			log.Warn().Err(err).Msg("live source failed, retrying")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(retryDelay):
			}
			continue
		}

		for _, ev := range events {
			res, err := ing.IngestLiveEvent(ctx, ev)
			switch {
			case err != nil:
				log.Warn().Err(err).Str("id", ev.ID).Msg("live event rejected")
			case res.Status == models.IngestDuplicate:
				log.Debug().Str("id", ev.ID).Msg("duplicate live event")
			default:
				log.Debug().Str("id", res.ID).Str("crime_type", ev.CrimeType).Msg("live event ingested")
			}
		}
	}
}
