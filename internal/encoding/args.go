package encoding

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"vidqueue/internal/job"
)

// ArgBuilder turns a job into encoder arguments.
type ArgBuilder interface {
	Build(j *job.Job) ([]string, error)
}

// FFmpegArgs is the default ArgBuilder. It covers input seeking for chunks
// and trims, stream selection for video and audio chunks, and progress
// reporting; everything codec-specific comes from the job settings.
type FFmpegArgs struct{}

// Build assembles the ffmpeg command line for j.
func (FFmpegArgs) Build(j *job.Job) ([]string, error) {
	if j == nil || strings.TrimSpace(j.Input.Path) == "" {
		return nil, errors.New("build args: job has no input")
	}
	if strings.TrimSpace(j.Output) == "" {
		return nil, errors.New("build args: job has no output path")
	}
	if j.VideoDisabled && j.AudioDisabled {
		return nil, errors.New("build args: both video and audio disabled")
	}

	args := []string{"-hide_banner", "-nostdin", "-y"}
	r := j.EffectiveRange()
	trimmed := !j.Range.IsZero() || !j.Settings.Trim.IsZero()
	if trimmed && r.Start > 0 {
		args = append(args, "-ss", formatSeconds(r.Start))
	}
	args = append(args, "-i", j.Input.Path)
	if trimmed && r.Duration() > 0 {
		args = append(args, "-t", formatSeconds(r.Duration()))
	}

	switch {
	case j.VideoDisabled:
		args = append(args, "-vn", "-sn", "-map", "0:a?")
	case j.AudioDisabled:
		args = append(args, "-an", "-sn", "-map", "0:v:0")
	default:
		args = append(args, "-map", "0:v?", "-map", "0:a?")
	}

	if !j.VideoDisabled {
		codec := strings.TrimSpace(j.Settings.Codec)
		if codec == "" {
			codec = job.PassthroughCodec
		}
		args = append(args, "-c:v", codec)
		args = append(args, j.Settings.VideoArgs...)
	}
	if !j.AudioDisabled {
		audio := strings.TrimSpace(j.Settings.AudioCodec)
		if audio == "" {
			audio = job.PassthroughCodec
		}
		args = append(args, "-c:a", audio)
		args = append(args, j.Settings.AudioArgs...)
	}

	args = append(args, "-progress", "pipe:1", "-nostats", j.Output)
	return args, nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
