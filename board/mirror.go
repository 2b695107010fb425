package board

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"syncboard/domain"
)

const (
	mirrorBuffer  = 256
	mirrorTimeout = 30 * time.Second
)

// mirrorOp is one pending write-behind operation. A zero deleteID means save.
type mirrorOp struct {
	task     domain.Task
	deleteID string
}

// mirrorWorker applies mirror writes one at a time, in commit order. The
// engine enqueues under its mutation mutex, so the channel order is the
// commit order and saves for the same task can never race each other into
// the mirror. When the buffer is full the operation is dropped and logged;
// the mirror's own version guard catches up on the next save.
type mirrorWorker struct {
	mirror Mirror
	logger *log.Logger

	ch     chan mirrorOp
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newMirrorWorker(mirror Mirror, logger *log.Logger) *mirrorWorker {
	w := &mirrorWorker{
		mirror: mirror,
		logger: logger,
		ch:     make(chan mirrorOp, mirrorBuffer),
		stopCh: make(chan struct{}),
	}
	w.wg.Add(1)
	go w.worker()
	return w
}

func (w *mirrorWorker) save(t domain.Task) {
	w.enqueue(mirrorOp{task: t})
}

func (w *mirrorWorker) remove(id string) {
	w.enqueue(mirrorOp{deleteID: id})
}

func (w *mirrorWorker) enqueue(op mirrorOp) {
	select {
	case w.ch <- op:
	default:
		w.logger.Warn("task mirror buffer full, dropping write")
	}
}

func (w *mirrorWorker) worker() {
	defer w.wg.Done()
	for {
		select {
		case op := <-w.ch:
			w.apply(op)
		case <-w.stopCh:
			for {
				select {
				case op := <-w.ch:
					w.apply(op)
				default:
					return
				}
			}
		}
	}
}

func (w *mirrorWorker) apply(op mirrorOp) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if op.deleteID != "" {
		if err := w.mirror.DeleteTask(ctx, op.deleteID); err != nil {
			w.logger.WithError(err).WithField("task", op.deleteID).Error("task mirror delete failed")
		}
		return
	}
	if err := w.mirror.SaveTask(ctx, op.task); err != nil {
		w.logger.WithError(err).WithField("task", op.task.ID).Error("task mirror save failed")
	}
}

// shutdown stops the worker after draining buffered operations.
func (w *mirrorWorker) shutdown() {
	close(w.stopCh)
	w.wg.Wait()
}
