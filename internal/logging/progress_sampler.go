package logging

import "time"

// ProgressSampler suppresses repetitive encode progress logs. It emits when
// the completed percentage crosses a bucket boundary or, for inputs with an
// unknown duration, when the heartbeat interval has elapsed.
type ProgressSampler struct {
	bucketSize float64
	heartbeat  time.Duration
	lastBucket int
	lastEmit   time.Time
	now        func() time.Time
}

// NewProgressSampler constructs a sampler with the given bucket width in
// percent (default 5) and heartbeat for unknown-percent progress (default 30s).
func NewProgressSampler(bucketSize float64, heartbeat time.Duration) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 5
	}
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &ProgressSampler{bucketSize: bucketSize, heartbeat: heartbeat, lastBucket: -1, now: time.Now}
}

// ShouldLog reports whether a progress event should be logged. A negative
// percent means the total duration is unknown.
func (s *ProgressSampler) ShouldLog(percent float64) bool {
	if s == nil {
		return true
	}
	now := s.now()
	if percent < 0 {
		if s.lastEmit.IsZero() || now.Sub(s.lastEmit) >= s.heartbeat {
			s.lastEmit = now
			return true
		}
		return false
	}
	if percent > 100 {
		percent = 100
	}
	bucket := int(percent / s.bucketSize)
	if bucket > s.lastBucket {
		s.lastBucket = bucket
		s.lastEmit = now
		return true
	}
	return false
}

// Reset clears the sampler state when a job restarts.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastBucket = -1
	s.lastEmit = time.Time{}
}
