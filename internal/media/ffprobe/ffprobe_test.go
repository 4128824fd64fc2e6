package ffprobe

import (
	"testing"
	"time"
)

const sample = `{
  "streams": [
    {"index": 0, "codec_name": "h264", "codec_type": "video", "width": 1920, "height": 1080, "duration": "40.000000"},
    {"index": 1, "codec_name": "aac", "codec_type": "audio", "channels": 2, "duration": "40.021000"}
  ],
  "format": {"filename": "in.mp4", "duration": "40.021000", "size": "1000", "format_name": "mov,mp4"}
}`

func TestDecodeAndHelpers(t *testing.T) {
	result, err := Decode([]byte(sample))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !result.HasVideo() || !result.HasAudio() {
		t.Fatalf("expected video and audio, got %+v", result.Streams)
	}
	if result.StreamCount("subtitle") != 0 {
		t.Fatal("unexpected subtitle streams")
	}
	if got := result.Duration(); got != 40021*time.Millisecond {
		t.Fatalf("unexpected duration %v", got)
	}
}

func TestDurationFallsBackToStreams(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "audio", Duration: "12.5"}, {CodecType: "audio", Duration: "bad"}},
		Format:  Format{Duration: "N/A"},
	}
	if got := result.Duration(); got != 12500*time.Millisecond {
		t.Fatalf("unexpected fallback duration %v", got)
	}
	if (Result{}).Duration() != 0 {
		t.Fatal("expected zero duration for empty result")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("not json")); err == nil {
		t.Fatal("expected parse error")
	}
}
