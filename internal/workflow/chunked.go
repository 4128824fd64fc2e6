package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"vidqueue/internal/chunking"
	"vidqueue/internal/job"
	"vidqueue/internal/logging"
	"vidqueue/internal/services"
)

// chunkGroup tracks the chunks of one split job. The last chunk to settle
// concatenates the video chunks and then muxes in the audio chunk.
type chunkGroup struct {
	set         chunking.Set
	reassembler Reassembler
	procs       ProcessControl
	logger      *slog.Logger
	onFinish    func(context.Context, *job.Job)
	finalized   atomic.Bool
}

func newChunkGroup(set chunking.Set, r Reassembler, procs ProcessControl, logger *slog.Logger, onFinish func(context.Context, *job.Job)) *chunkGroup {
	return &chunkGroup{
		set:         set,
		reassembler: r,
		procs:       procs,
		logger:      logger.With(logging.String(logging.FieldJobID, set.Parent.ID)),
		onFinish:    onFinish,
	}
}

func (g *chunkGroup) begin() {
	g.set.Parent.MarkStarted()
}

// aggregate folds chunk telemetry into the parent. CurrentTime is the
// encoded share of the parent's range.
func (g *chunkGroup) aggregate() {
	var t job.Telemetry
	for _, c := range g.set.Video {
		ct := c.Telemetry()
		span := c.Range.Duration()
		switch {
		case c.Completed(), ct.CurrentTime > span:
			t.CurrentTime += span
		default:
			t.CurrentTime += ct.CurrentTime
		}
		t.FileSize += ct.FileSize
		if c.HasStarted() && !c.IsDone() {
			t.Bitrate += ct.Bitrate
			t.Speed += ct.Speed
		}
	}
	if a := g.set.Audio; a != nil {
		t.FileSize += a.Telemetry().FileSize
	}
	g.set.Parent.UpdateTelemetry(t)
}

// settle is called whenever one chunk reaches a final state. A failed chunk
// stops its siblings; once every chunk is final the group is finalized once.
func (g *chunkGroup) settle(ctx context.Context) {
	g.aggregate()
	for _, c := range g.set.Chunks() {
		if c.HasFailed() && !c.IsStopped() {
			g.stopChunks()
			break
		}
	}
	if !g.set.Settled() {
		return
	}
	if !g.finalized.CompareAndSwap(false, true) {
		return
	}
	g.finalize(ctx)
}

func (g *chunkGroup) finalize(ctx context.Context) {
	parent := g.set.Parent
	defer g.onFinish(ctx, parent)

	if parent.IsStopped() {
		parent.Finish(true)
		g.logger.Info("chunked job stopped", logging.String(logging.FieldEventType, "chunked_job_stopped"))
		return
	}
	if !g.set.VideoComplete() {
		failed := 0
		for _, c := range g.set.Video {
			if !c.Completed() {
				failed++
			}
		}
		g.fail(services.Wrap(services.ErrExternalTool, "workflow", "reassemble",
			fmt.Sprintf("%d of %d video chunks did not complete", failed, len(g.set.Video)), nil))
		return
	}
	if err := g.reassembler.ConcatenateVideoChunks(ctx, g.set); err != nil {
		g.fail(err)
		return
	}
	if !g.set.Complete() {
		g.fail(services.Wrap(services.ErrExternalTool, "workflow", "reassemble", "audio chunk did not complete", nil))
		return
	}
	if err := g.reassembler.MuxChunks(ctx, g.set); err != nil {
		g.fail(err)
		return
	}
	g.reassembler.Cleanup(g.set)
	parent.Finish(false)
	g.logger.Info("chunked job finished",
		logging.String(logging.FieldEventType, "chunked_job_finished"),
		logging.String("output", parent.Output),
		logging.Int("video_chunks", len(g.set.Video)),
		logging.Duration("elapsed", parent.Telemetry().Elapsed),
	)
}

func (g *chunkGroup) fail(err error) {
	g.set.Parent.Fail(err)
	logging.WarnWithContext(g.logger, "chunked job failed; intermediates kept for inspection", "chunked_job_failed",
		append(logging.ErrorDetail(err),
			logging.String("manifest", g.set.Manifest),
			logging.String(logging.FieldImpact, "output file was not produced"),
		)...)
}

func (g *chunkGroup) stopChunks() {
	for _, c := range g.set.Chunks() {
		if c.IsDone() {
			continue
		}
		c.Stop()
		if g.procs != nil {
			g.procs.Terminate(c.ID)
		}
	}
}

// stop stops the parent and every unfinished chunk.
func (g *chunkGroup) stop() {
	g.set.Parent.Stop()
	g.stopChunks()
}

func (g *chunkGroup) pause() {
	g.set.Parent.Pause()
	for _, c := range g.set.Chunks() {
		if c.Pause() && g.procs != nil {
			g.procs.Suspend(c.ID)
		}
	}
}

func (g *chunkGroup) resume() {
	for _, c := range g.set.Chunks() {
		if c.IsPaused() && g.procs != nil {
			g.procs.Continue(c.ID)
		}
		c.Resume()
	}
	g.set.Parent.Resume()
}
