package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"vidqueue/internal/job"
)

// Stats returns a count of records grouped by state.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT state, COUNT(1) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[state] = count
	}
	return stats, rows.Err()
}

// Summary aggregates the history into terminal and active buckets.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return Summary{}, err
	}
	var summary Summary
	for state, count := range stats {
		summary.Total += count
		switch state {
		case job.StateDone:
			summary.Done += count
		case job.StateFailed:
			summary.Failed += count
		case job.StateStopped:
			summary.Stopped += count
		case StateInterrupted:
			summary.Interrupted += count
		default:
			summary.Active += count
		}
	}
	return summary, nil
}

// MarkInterrupted closes out records left in a non-terminal state by a
// previous daemon run.
func (s *Store) MarkInterrupted(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(timestampLayout)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET state = ?, finished_at = COALESCE(finished_at, ?), updated_at = ?
         WHERE state NOT IN (`+makePlaceholders(len(terminalStates))+`)`,
		append([]any{StateInterrupted, now, now}, terminalArgs()...)...,
	)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted jobs: %w", err)
	}
	return res.RowsAffected()
}

// Prune removes terminal records last updated before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM jobs WHERE updated_at < ? AND state IN (`+makePlaceholders(len(terminalStates))+`)`,
		append([]any{cutoff.UTC().Format(timestampLayout)}, terminalArgs()...)...,
	)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes every terminal record.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM jobs WHERE state IN (`+makePlaceholders(len(terminalStates))+`)`,
		terminalArgs()...,
	)
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	return res.RowsAffected()
}

func terminalArgs() []any {
	args := make([]any, len(terminalStates))
	for i, state := range terminalStates {
		args[i] = state
	}
	return args
}

// CheckHealth returns diagnostic information about the history database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return health, errors.New("history database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat history database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("history database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping history database: %w", err)
	}
	health.DatabaseReadable = true

	if err := s.db.QueryRowContext(connCtx, "SELECT version FROM schema_version LIMIT 1").Scan(&health.SchemaVersion); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("read schema version: %w", err)
	}

	var name string
	err = s.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'jobs'").Scan(&name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		health.Error = err.Error()
		return health, fmt.Errorf("query table info: %w", err)
	default:
		health.TableExists = true
	}
	return health, nil
}
