package workflow

import (
	"context"

	"vidqueue/internal/job"
)

const serialQueueName = "serial"

// serialQueue runs one job at a time, never alongside parallel work.
type serialQueue struct {
	fifo *fifo[task]
	pool *poolState
}

func newSerialQueue() *serialQueue {
	return &serialQueue{fifo: newFIFO[task](), pool: newPoolState(serialQueueName, 1)}
}

func (q *serialQueue) addStopTask() {
	q.fifo.Put(task{stop: true})
}

func (m *Manager) serialLoop(ctx context.Context) {
	q := m.serial
	for {
		m.beforeDequeue(serialQueueName)
		t, err := q.fifo.Get(ctx)
		if err != nil {
			return
		}
		if t.stop {
			q.fifo.TaskDone()
			return
		}
		m.processSerial(ctx, t)
	}
}

func (m *Manager) processSerial(ctx context.Context, t task) {
	defer m.serial.fifo.TaskDone()
	logger := m.queueLogger(serialQueueName)
	defer m.recoverItem(logger, t.job)

	if !t.job.IsStopped() {
		if err := m.admitSerial(ctx, t.job); err != nil {
			return
		}
		defer m.modes.leave(modeSerial)
	}
	m.runTask(ctx, logger, t)
}

// admitSerial takes the serial mode slot once the job is not paused.
func (m *Manager) admitSerial(ctx context.Context, j *job.Job) error {
	for {
		if err := j.WaitWhilePaused(ctx); err != nil {
			return err
		}
		if err := m.modes.enter(ctx, modeSerial); err != nil {
			return err
		}
		if !j.IsPaused() || j.IsStopped() {
			return nil
		}
		m.modes.leave(modeSerial)
	}
}
