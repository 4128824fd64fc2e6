package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"vidqueue/internal/job"
)

// RecordSubmitted inserts a newly submitted job. Resubmitting an id refreshes
// the row.
func (s *Store) RecordSubmitted(ctx context.Context, snap job.Snapshot) error {
	if err := s.upsert(ctx, snap); err != nil {
		return fmt.Errorf("record submitted job: %w", err)
	}
	return nil
}

// RecordProgress persists the latest telemetry of a running job.
func (s *Store) RecordProgress(ctx context.Context, snap job.Snapshot) error {
	if err := s.upsert(ctx, snap); err != nil {
		return fmt.Errorf("record job progress: %w", err)
	}
	return nil
}

// RecordFinished persists the final state of a job.
func (s *Store) RecordFinished(ctx context.Context, snap job.Snapshot) error {
	if snap.FinishedAt.IsZero() && IsTerminal(snap.State) {
		snap.FinishedAt = time.Now().UTC()
	}
	if err := s.upsert(ctx, snap); err != nil {
		return fmt.Errorf("record finished job: %w", err)
	}
	return nil
}

func (s *Store) upsert(ctx context.Context, snap job.Snapshot) error {
	if strings.TrimSpace(snap.ID) == "" {
		return errors.New("job id is required")
	}
	now := time.Now().UTC()
	created := snap.CreatedAt
	if created.IsZero() {
		created = now
	}
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            id, parent_id, kind, state, input_path, output_path, codec, family,
            progress, position_ms, file_size, speed, last_error,
            created_at, started_at, finished_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            state = excluded.state,
            output_path = COALESCE(excluded.output_path, jobs.output_path),
            family = COALESCE(excluded.family, jobs.family),
            progress = excluded.progress,
            position_ms = excluded.position_ms,
            file_size = excluded.file_size,
            speed = excluded.speed,
            last_error = COALESCE(excluded.last_error, jobs.last_error),
            started_at = COALESCE(jobs.started_at, excluded.started_at),
            finished_at = COALESCE(excluded.finished_at, jobs.finished_at),
            updated_at = excluded.updated_at`,
		snap.ID,
		nullableString(snap.ParentID),
		string(snap.Kind),
		snap.State,
		snap.Input,
		nullableString(snap.Output),
		nullableString(snap.Codec),
		nullableString(snap.Family),
		snap.Progress,
		snap.Telemetry.CurrentTime.Milliseconds(),
		snap.Telemetry.FileSize,
		snap.Telemetry.Speed,
		nullableString(snap.LastError),
		created.UTC().Format(timestampLayout),
		nullableTime(snap.StartedAt),
		nullableTime(snap.FinishedAt),
		now.Format(timestampLayout),
	)
	return err
}

// Get fetches one job record. It returns nil without error when the id is
// unknown.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+recordColumns+` FROM jobs WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return rec, nil
}

// List returns job records, newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Record, error) {
	var (
		clauses []string
		args    []any
	)
	if len(opts.States) > 0 {
		clauses = append(clauses, "state IN ("+makePlaceholders(len(opts.States))+")")
		for _, state := range opts.States {
			args = append(args, state)
		}
	}
	if opts.ParentID != "" {
		clauses = append(clauses, "parent_id = ?")
		args = append(args, opts.ParentID)
	}
	query := `SELECT ` + recordColumns + ` FROM jobs`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}
