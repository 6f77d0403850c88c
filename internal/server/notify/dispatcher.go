package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/reservation/internal/logging"
	"github.com/dmitrijs2005/reservation/internal/server/metrics"
)

// ErrDispatcherClosed is returned by Close when called twice.
var ErrDispatcherClosed = errors.New("dispatcher closed")

const defaultSendTimeout = 30 * time.Second

// Dispatcher sends mail in detached goroutines. Notify returns at once;
// failures are logged and counted but never reach the caller.
type Dispatcher struct {
	mailer  Mailer
	logger  logging.Logger
	metrics *metrics.Auth
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithSendTimeout bounds a single background send. Default 30s.
func WithSendTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) { disp.timeout = d }
}

// WithMetrics counts sent and failed notifications.
func WithMetrics(m *metrics.Auth) DispatcherOption {
	return func(disp *Dispatcher) { disp.metrics = m }
}

func NewDispatcher(mailer Mailer, logger logging.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{mailer: mailer, logger: logger, timeout: defaultSendTimeout}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify queues a message. The send runs on its own context, so it outlives
// the request that triggered it.
func (d *Dispatcher) Notify(to, subject, body string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		d.logger.Warn(context.Background(), "notification dropped, dispatcher closed", "subject", subject)
		d.metrics.RecordNotification("dropped")
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.mailer.Send(ctx, Message{To: to, Subject: subject, Body: body}); err != nil {
			d.logger.Error(ctx, "notification failed", append([]any{"subject", subject}, logging.ErrAttrs(err)...)...)
			d.metrics.RecordNotification("failed")
			return
		}
		d.metrics.RecordNotification("sent")
	}()
}

// Close stops accepting notifications and waits for in-flight sends or for
// ctx to end, whichever comes first.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
