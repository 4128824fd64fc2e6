package jobstore

import (
	"database/sql"
	"errors"
	"time"

	"vidqueue/internal/job"
)

// timestampLayout keeps a fixed width so stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

const recordColumns = "id, parent_id, kind, state, input_path, output_path, codec, family, progress, position_ms, file_size, speed, last_error, created_at, started_at, finished_at, updated_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		rec         Record
		kind        string
		parentID    sql.NullString
		outputPath  sql.NullString
		codec       sql.NullString
		family      sql.NullString
		positionMS  int64
		lastError   sql.NullString
		createdRaw  sql.NullString
		startedRaw  sql.NullString
		finishedRaw sql.NullString
		updatedRaw  sql.NullString
	)
	if err := scanner.Scan(
		&rec.ID,
		&parentID,
		&kind,
		&rec.State,
		&rec.Input,
		&outputPath,
		&codec,
		&family,
		&rec.Progress,
		&positionMS,
		&rec.FileSize,
		&rec.Speed,
		&lastError,
		&createdRaw,
		&startedRaw,
		&finishedRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	rec.Kind = job.Kind(kind)
	rec.ParentID = parentID.String
	rec.Output = outputPath.String
	rec.Codec = codec.String
	rec.Family = family.String
	rec.Position = time.Duration(positionMS) * time.Millisecond
	rec.LastError = lastError.String
	rec.CreatedAt, _ = parseTimeString(createdRaw.String)
	rec.StartedAt, _ = parseTimeString(startedRaw.String)
	rec.FinishedAt, _ = parseTimeString(finishedRaw.String)
	rec.UpdatedAt, _ = parseTimeString(updatedRaw.String)
	return &rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value.UTC().Format(timestampLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
