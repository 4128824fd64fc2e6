package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"vidqueue/internal/job"
	"vidqueue/internal/jobstore"
	"vidqueue/internal/workflow"
)

const shortIDLength = 8

var titleCaser = cases.Title(language.English)

func stateLabel(state string) string {
	state = strings.TrimSpace(state)
	if state == "" {
		return "-"
	}
	return titleCaser.String(strings.ReplaceAll(state, "_", " "))
}

func shortID(id string) string {
	if len(id) <= shortIDLength {
		return id
	}
	return id[:shortIDLength]
}

func formatProgress(percent float64) string {
	return fmt.Sprintf("%.1f%%", percent)
}

func formatSize(bytes int64) string {
	if bytes <= 0 {
		return "-"
	}
	return humanize.Bytes(uint64(bytes))
}

func formatSpeed(speed float64) string {
	if speed <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.2fx", speed)
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func snapshotRows(jobs []job.Snapshot) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, snap := range jobs {
		rows = append(rows, []string{
			shortID(snap.ID),
			string(snap.Kind),
			stateLabel(snap.State),
			orDash(snap.Codec),
			formatProgress(snap.Progress),
			formatSpeed(snap.Telemetry.Speed),
			formatSize(snap.Telemetry.FileSize),
			formatWhen(snap.StartedAt),
			snap.Input,
		})
	}
	return rows
}

var snapshotHeaders = []string{"ID", "Kind", "State", "Codec", "Progress", "Speed", "Size", "Started", "Input"}

var snapshotAligns = []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft}

func recordRows(records []jobstore.Record) [][]string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			shortID(rec.ID),
			string(rec.Kind),
			stateLabel(rec.State),
			orDash(rec.Codec),
			formatProgress(rec.Progress),
			formatDuration(rec.Elapsed()),
			formatWhen(rec.UpdatedAt),
			rec.Input,
		})
	}
	return rows
}

var recordHeaders = []string{"ID", "Kind", "State", "Codec", "Progress", "Elapsed", "Updated", "Input"}

var recordAligns = []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft}

func queueRows(queues []workflow.QueueDepth) [][]string {
	rows := make([][]string, 0, len(queues))
	for _, q := range queues {
		rows = append(rows, []string{
			q.Name,
			fmt.Sprintf("%d", q.Pending),
			fmt.Sprintf("%d", q.Workers),
			yesNo(q.Hardware),
		})
	}
	return rows
}

// recordDetailLines renders a single history record as label/value pairs.
func recordDetailLines(rec jobstore.Record) []string {
	pairs := [][2]string{
		{"ID", rec.ID},
		{"Kind", string(rec.Kind)},
		{"State", stateLabel(rec.State)},
		{"Input", rec.Input},
		{"Output", orDash(rec.Output)},
		{"Codec", orDash(rec.Codec)},
		{"Family", orDash(rec.Family)},
		{"Parent", orDash(rec.ParentID)},
		{"Progress", formatProgress(rec.Progress)},
		{"Position", formatDuration(rec.Position)},
		{"Size", formatSize(rec.FileSize)},
		{"Speed", formatSpeed(rec.Speed)},
		{"Created", formatTimestamp(rec.CreatedAt)},
		{"Started", formatTimestamp(rec.StartedAt)},
		{"Finished", formatTimestamp(rec.FinishedAt)},
		{"Elapsed", formatDuration(rec.Elapsed())},
	}
	if rec.LastError != "" {
		pairs = append(pairs, [2]string{"Error", rec.LastError})
	}
	lines := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		lines = append(lines, fmt.Sprintf("%-10s %s", pair[0]+":", pair[1]))
	}
	return lines
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%s (%s)", t.Local().Format("2006-01-02 15:04:05"), humanize.Time(t))
}
