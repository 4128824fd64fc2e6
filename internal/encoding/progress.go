package encoding

import (
	"strconv"
	"strings"
	"time"

	"vidqueue/internal/job"
)

// ProgressParser folds ffmpeg "-progress" key=value blocks into telemetry.
// ffmpeg ends every block with a progress=continue or progress=end line.
type ProgressParser struct {
	pending job.Telemetry
	dirty   bool
}

// NewProgressParser returns an empty parser.
func NewProgressParser() *ProgressParser {
	return &ProgressParser{}
}

// Feed consumes one output line. It returns the accumulated telemetry and
// true when the line closes a progress block.
func (p *ProgressParser) Feed(line string) (job.Telemetry, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return job.Telemetry{}, false
	}
	value = strings.TrimSpace(value)
	switch key {
	case "out_time_us", "out_time_ms":
		// Both keys carry microseconds.
		if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
			p.pending.CurrentTime = time.Duration(us) * time.Microsecond
			p.dirty = true
		}
	case "out_time":
		if d, ok := parseClock(value); ok {
			p.pending.CurrentTime = d
			p.dirty = true
		}
	case "total_size":
		if size, err := strconv.ParseInt(value, 10, 64); err == nil {
			p.pending.FileSize = size
			p.dirty = true
		}
	case "bitrate":
		if rate, err := strconv.ParseFloat(strings.TrimSuffix(value, "kbits/s"), 64); err == nil {
			p.pending.Bitrate = rate
			p.dirty = true
		}
	case "speed":
		if speed, err := strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64); err == nil {
			p.pending.Speed = speed
			p.dirty = true
		}
	case "progress":
		if !p.dirty {
			return job.Telemetry{}, false
		}
		p.dirty = false
		return p.pending, true
	}
	return job.Telemetry{}, false
}

// parseClock parses HH:MM:SS.micro timestamps.
func parseClock(value string) (time.Duration, bool) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0, false
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 {
		return 0, false
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || seconds < 0 {
		return 0, false
	}
	total := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute
	return total + time.Duration(seconds*float64(time.Second)), true
}
