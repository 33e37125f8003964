// Package workers runs periodic maintenance jobs inside the server process.
package workers

import (
	"context"
	"time"

	"clubdesk/internal/platform/database"
	"clubdesk/internal/platform/repositories"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Job is one maintenance task. Errors are logged and the job runs again on the next tick.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Start runs every job on its own ticker until ctx ends. Each job runs once immediately.
func Start(ctx context.Context, jobs ...Job) {
	for _, job := range jobs {
		go loop(ctx, job, log.With().Str("component", "worker").Str("job", job.Name).Logger())
	}
}

func loop(ctx context.Context, job Job, l zerolog.Logger) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		if err := job.Run(ctx); err != nil {
			l.Error().Err(err).Msg("job failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type BypassStore interface {
	InBypass(ctx context.Context, purpose database.BypassPurpose, op database.TxFunc) error
}

// PurgePasswordResets deletes reset tokens that were used or expired more than
// retention ago.
func PurgePasswordResets(store BypassStore, retention time.Duration, interval time.Duration) Job {
	return Job{
		Name:     "purge_password_resets",
		Interval: interval,
		Run: func(ctx context.Context) error {
			cutoff := time.Now().UTC().Add(-retention)
			return store.InBypass(ctx, database.PurposePasswordReset, func(ctx context.Context, tx *sqlx.Tx) error {
				n, err := repositories.NewPasswordResetRepository(tx).PurgeBefore(ctx, cutoff)
				if err != nil {
					return err
				}
				if n > 0 {
					log.Info().Int64("deleted", n).Msg("purged password resets")
				}
				return nil
			})
		},
	}
}
