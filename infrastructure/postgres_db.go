// infrastructure/postgres_db.go
package infrastructure

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ConnectPostgres opens the database and retries the ping while the server is
// still starting, the way the service has always waited for its compose
// dependencies.
func ConnectPostgres(ctx context.Context, dsn string, retries int, logger logrus.FieldLogger) (*sql.DB, error) {
	if retries < 1 {
		retries = 1
	}
	var lastErr error
	for i := 0; i < retries; i++ {
		db, err := sql.Open("postgres", dsn)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = db.PingContext(pingCtx)
			cancel()
			if err == nil {
				db.SetMaxOpenConns(20)
				db.SetMaxIdleConns(5)
				db.SetConnMaxLifetime(30 * time.Minute)
				logger.Info("connected to PostgreSQL")
				return db, nil
			}
			db.Close()
		}
		lastErr = err
		if i == retries-1 {
			break
		}
		logger.WithError(err).Warnf("database not ready, retrying in 5s (%d/%d)", i+1, retries)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
	return nil, fmt.Errorf("could not connect to database after %d attempts: %w", retries, lastErr)
}

// Migrate applies embedded migrations in name order, once each.
func Migrate(ctx context.Context, db *sql.DB, logger logrus.FieldLogger) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, m := range entries {
		if m.IsDir() {
			continue
		}
		name := m.Name()
		if migrationApplied(ctx, db, name) {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO _migrations (name) VALUES ($1)`, name); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
		logger.WithField("name", name).Info("applied migration")
	}
	return nil
}

func migrationApplied(ctx context.Context, db *sql.DB, name string) bool {
	var table sql.NullString
	if err := db.QueryRowContext(ctx, `SELECT to_regclass('_migrations')::text`).Scan(&table); err != nil || !table.Valid {
		return false
	}
	var applied int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM _migrations WHERE name = $1`, name).Scan(&applied)
	return err == nil && applied == 1
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func PostgresHealthCheck(db *sql.DB) HealthCheck {
	return func(ctx context.Context) error {
		return db.PingContext(ctx)
	}
}
