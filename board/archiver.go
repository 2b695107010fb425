package board

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"syncboard/domain"
)

// Sink receives archived activity records.
type Sink interface {
	EnqueueActivity(ctx context.Context, act domain.Activity) error
}

const (
	archiveBuffer      = 256
	archiveMaxAttempts = 5
	archiveTimeout     = 30 * time.Second
)

// archiver drains activity records to a sink in the background so the
// mutation path never waits on the archive. Delivery is at-most-once: when
// the buffer is full or all retries fail, the record is dropped and logged.
type archiver struct {
	sink   Sink
	logger *log.Logger

	ch     chan domain.Activity
	stopCh chan struct{}
	wg     sync.WaitGroup

	retryInitial time.Duration
	retryMax     time.Duration
}

func newArchiver(sink Sink, logger *log.Logger) *archiver {
	a := &archiver{
		sink:         sink,
		logger:       logger,
		ch:           make(chan domain.Activity, archiveBuffer),
		stopCh:       make(chan struct{}),
		retryInitial: 250 * time.Millisecond,
		retryMax:     10 * time.Second,
	}
	a.wg.Add(1)
	go a.worker()
	return a
}

// submit hands a record to the worker without blocking.
func (a *archiver) submit(act domain.Activity) {
	select {
	case a.ch <- act:
	default:
		a.logger.WithField("activity", act.ID).Warn("activity archive buffer full, dropping record")
	}
}

func (a *archiver) worker() {
	defer a.wg.Done()
	for {
		select {
		case <-a.stopCh:
			a.drain()
			return
		default:
		}
		select {
		case act := <-a.ch:
			a.deliver(act, archiveMaxAttempts)
		case <-a.stopCh:
			a.drain()
			return
		}
	}
}

// drain flushes buffered records with a single attempt each; shutdown must
// not stall on a failing sink.
func (a *archiver) drain() {
	for {
		select {
		case act := <-a.ch:
			a.deliver(act, 1)
		default:
			return
		}
	}
}

func (a *archiver) deliver(act domain.Activity, maxAttempts int) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoff(attempt, a.retryInitial, a.retryMax))
			select {
			case <-timer.C:
			case <-a.stopCh:
				// Shutdown interrupts the backoff; make this attempt the last.
				timer.Stop()
				maxAttempts = attempt + 1
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		err := a.sink.EnqueueActivity(ctx, act)
		cancel()
		if err == nil {
			return
		}
		a.logger.WithError(err).WithFields(log.Fields{
			"activity": act.ID,
			"attempt":  attempt + 1,
		}).Error("activity archive enqueue failed")
	}
	a.logger.WithField("activity", act.ID).Error("activity record dropped after retries")
}

// shutdown stops the worker after draining buffered records.
func (a *archiver) shutdown() {
	close(a.stopCh)
	a.wg.Wait()
}

func backoff(attempt int, initial, max time.Duration) time.Duration {
	if initial <= 0 {
		initial = time.Second
	}
	if max <= 0 {
		max = 10 * time.Second
	}
	d := float64(initial) * math.Pow(2, float64(attempt-1))
	if d > float64(max) {
		d = float64(max)
	}
	jitter := 0.2 * d
	return time.Duration(d + (rand.Float64()-0.5)*2*jitter)
}
