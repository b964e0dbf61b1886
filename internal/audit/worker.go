package audit

import (
	"context"
	"errors"
	"log/slog"
)

// ErrBacklogFull is returned by Worker.Publish when the inbox cannot take
// another batch.
var ErrBacklogFull = errors.New("audit: publish backlog full")

// Worker consumes committed audit batches from an inbox and forwards them to
// the downstream Publisher. It is itself a Publisher, so services can hand it
// events without waiting on the broker.
type Worker struct {
	next   Publisher
	inbox  chan []Event
	logger *slog.Logger
}

func NewWorker(next Publisher, buffer int, logger *slog.Logger) *Worker {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{next: next, inbox: make(chan []Event, buffer), logger: logger}
}

// Publish enqueues a batch without blocking.
func (w *Worker) Publish(_ context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	batch := append([]Event(nil), events...)
	select {
	case w.inbox <- batch:
		return nil
	default:
		return ErrBacklogFull
	}
}

// Run forwards batches until ctx is cancelled, then drains what is already
// queued. Downstream failures are logged and the batch is dropped; the
// durable copy lives in the record store.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case batch := <-w.inbox:
			w.forward(ctx, batch)
		}
	}
}

func (w *Worker) drain() {
	for {
		select {
		case batch := <-w.inbox:
			w.forward(context.Background(), batch)
		default:
			return
		}
	}
}

func (w *Worker) forward(ctx context.Context, batch []Event) {
	if err := w.next.Publish(ctx, batch...); err != nil {
		w.logger.ErrorContext(ctx, "audit publish failed",
			"error", err,
			"record_id", batch[0].RecordID.String(),
			"events", len(batch),
		)
	}
}
