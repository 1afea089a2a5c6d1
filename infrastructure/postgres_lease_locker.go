// infrastructure/postgres_lease_locker.go
package infrastructure

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vitovidale/clip-processor-service/domain"
)

// PostgresLeaseLocker serializes work per video across processes with a
// row-level lease. The holder renews the lease every TTL/3 while it works; an
// expired lease is taken over, so a crashed worker blocks a video for at most
// TTL.
type PostgresLeaseLocker struct {
	DB     *sql.DB
	TTL    time.Duration
	Holder string
	Logger logrus.FieldLogger
}

func NewPostgresLeaseLocker(db *sql.DB, ttl time.Duration, logger logrus.FieldLogger) *PostgresLeaseLocker {
	return &PostgresLeaseLocker{DB: db, TTL: ttl, Holder: uuid.NewString(), Logger: logger}
}

// TryLock takes the lease and starts renewing it. The returned context is
// cancelled with domain.ErrLeaseLost once the lease can no longer be
// renewed; release stops renewal and frees the lease.
func (l *PostgresLeaseLocker) TryLock(ctx context.Context, videoID string) (context.Context, func(), error) {
	token := l.Holder + "/" + uuid.NewString()
	res, err := l.DB.ExecContext(ctx,
		`INSERT INTO video_leases (video_id, holder, expires_at) VALUES ($1, $2, NOW() + $3 * INTERVAL '1 second')
		ON CONFLICT (video_id) DO UPDATE SET holder = EXCLUDED.holder, expires_at = EXCLUDED.expires_at
		WHERE video_leases.expires_at < NOW()`,
		videoID, token, l.TTL.Seconds())
	if err != nil {
		return ctx, nil, fmt.Errorf("acquire lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ctx, nil, fmt.Errorf("acquire lease: %w", err)
	}
	if n == 0 {
		return ctx, nil, domain.ErrLeaseHeld
	}

	log := l.Logger.WithField("video_id", videoID)
	renew := func(rctx context.Context) (bool, error) {
		res, err := l.DB.ExecContext(rctx,
			`UPDATE video_leases SET expires_at = NOW() + $3 * INTERVAL '1 second' WHERE video_id = $1 AND holder = $2`,
			videoID, token, l.TTL.Seconds())
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		return n == 1, err
	}
	leaseCtx, stop := keepLease(ctx, l.TTL, renew, log)

	release := func() {
		stop()
		// release must run even when the request context is already cancelled
		_, err := l.DB.ExecContext(context.WithoutCancel(ctx),
			`DELETE FROM video_leases WHERE video_id = $1 AND holder = $2`, videoID, token)
		if err != nil {
			log.WithError(err).Warn("failed to release lease")
		}
	}
	return leaseCtx, release, nil
}

// keepLease calls renew every ttl/3 until stop is called. The returned
// context is cancelled with domain.ErrLeaseLost when renew reports the lease
// gone, or when renewal keeps failing until the lease would have expired.
// stop waits for the renewal goroutine to exit.
func keepLease(ctx context.Context, ttl time.Duration, renew func(context.Context) (bool, error), log logrus.FieldLogger) (context.Context, func()) {
	leaseCtx, cancel := context.WithCancelCause(ctx)
	interval := ttl / 3
	if interval <= 0 {
		interval = time.Second
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		renewed := time.Now()
		for {
			select {
			case <-done:
				return
			case <-leaseCtx.Done():
				return
			case <-ticker.C:
			}
			held, err := renew(leaseCtx)
			switch {
			case err == nil && held:
				renewed = time.Now()
			case err == nil:
				log.Error("lease taken over by another holder")
				cancel(domain.ErrLeaseLost)
				return
			case time.Since(renewed)+interval >= ttl:
				log.WithError(err).Error("lease expired before it could be renewed")
				cancel(domain.ErrLeaseLost)
				return
			default:
				log.WithError(err).Warn("lease renewal failed, retrying")
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			wg.Wait()
			cancel(nil)
		})
	}
	return leaseCtx, stop
}
