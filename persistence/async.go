// persistence/async.go
package persistence

import (
	"time"

	"github.com/zaledjen/gameserver/logger"
	"github.com/zaledjen/gameserver/models"
)

// AsyncWriter feeds room snapshots and game records to a RoomStore from a
// background goroutine, so a slow database never blocks a room's lane. A
// failed write is retried once after a short backoff and then only logged;
// store trouble is never surfaced to players.
type AsyncWriter struct {
	store    RoomStore
	jobs     chan asyncJob
	done     chan struct{}
	interval time.Duration
}

type asyncJob struct {
	snapshot *models.RoomSnapshot
	record   *models.GameRecord
	delete   string
}

func NewAsyncWriter(store RoomStore) *AsyncWriter {
	w := &AsyncWriter{
		store:    store,
		jobs:     make(chan asyncJob, 256),
		done:     make(chan struct{}),
		interval: 500 * time.Millisecond,
	}
	go w.run()
	return w
}

// SaveSnapshot queues a room mirror write. Drops the write with a log line
// if the queue is full rather than stalling the caller.
func (w *AsyncWriter) SaveSnapshot(snap *models.RoomSnapshot) {
	w.enqueue(asyncJob{snapshot: snap})
}

// SaveRecord queues a finished-round history write.
func (w *AsyncWriter) SaveRecord(rec *models.GameRecord) {
	w.enqueue(asyncJob{record: rec})
}

// DeleteSnapshot queues removal of an evicted room's mirror.
func (w *AsyncWriter) DeleteSnapshot(code string) {
	w.enqueue(asyncJob{delete: code})
}

// Stop drains nothing; pending writes in flight finish, queued ones are
// dropped. The mirror is best effort by contract.
func (w *AsyncWriter) Stop() {
	close(w.done)
}

func (w *AsyncWriter) enqueue(job asyncJob) {
	select {
	case w.jobs <- job:
	default:
		logger.Log.Warnf("persistence queue full, dropping write")
	}
}

func (w *AsyncWriter) run() {
	for {
		select {
		case <-w.done:
			return
		case job := <-w.jobs:
			if err := w.apply(job); err != nil {
				time.Sleep(w.interval)
				if err := w.apply(job); err != nil {
					logger.Log.Errorf("persistence write failed after retry: %v", err)
				}
			}
		}
	}
}

func (w *AsyncWriter) apply(job asyncJob) error {
	switch {
	case job.snapshot != nil:
		return w.store.UpsertRoom(job.snapshot)
	case job.record != nil:
		return w.store.SaveGameRecord(job.record)
	case job.delete != "":
		return w.store.DeleteRoom(job.delete)
	}
	return nil
}
