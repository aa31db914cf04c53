// Package consumer runs the polling loop of one upstream topic and is the
// only place where failures are turned into retry, pause or stop.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"notification-hub/order-relay/internal/failure"
	"notification-hub/order-relay/internal/health"
	"notification-hub/order-relay/internal/kafkaio"
	"notification-hub/order-relay/internal/metrics"
	"notification-hub/order-relay/internal/processor"
	"notification-hub/shared/pkg/domain"
	"notification-hub/shared/pkg/logger"
)

// Source is the upstream stream as the loop needs it.
type Source interface {
	Poll(ctx context.Context) ([]kafkaio.Record, error)
	Commit(ctx context.Context) error
	Rewind() error
	Close() error
}

type State int

const (
	NotStarted State = iota
	Active
	Paused
	Stopped
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "NOT_STARTED"
	case Active:
		return "ACTIVE"
	case Paused:
		return "PAUSED"
	case Stopped:
		return "STOPPED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Options struct {
	// PauseInterval is how long the loop waits after an authorization or
	// unknown-topic error.
	PauseInterval time.Duration
	// RetryBackoff is the wait before retrying a batch after a transient
	// failure.
	RetryBackoff time.Duration
}

type Consumer struct {
	eventType domain.EventType
	source    Source
	processor processor.Processor
	metrics   *metrics.Collector
	opts      Options
	log       *logger.Scoped

	mu            sync.Mutex
	state         State
	cancel        context.CancelFunc
	done          chan struct{}
	stopRequested bool
	err           error
	closeOnce     sync.Once
}

func New(eventType domain.EventType, source Source, proc processor.Processor, m *metrics.Collector, opts Options) *Consumer {
	return &Consumer{
		eventType: eventType,
		source:    source,
		processor: proc,
		metrics:   m,
		opts:      opts,
		log:       logger.With("consumer", string(eventType)),
		done:      make(chan struct{}),
	}
}

func (c *Consumer) Name() string { return "consumer-" + string(c.eventType) }

func (c *Consumer) EventType() domain.EventType { return c.eventType }

// Start launches the polling loop. It does nothing unless the consumer has
// never been started.
func (c *Consumer) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != NotStarted {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.state = Active
	go c.run(runCtx)
	c.log.Info("started polling")
}

// Stop cancels the loop, waits for the batch in flight and closes the
// stream client.
func (c *Consumer) Stop() {
	c.mu.Lock()
	c.stopRequested = true
	cancel := c.cancel
	if c.state == NotStarted {
		c.state = Stopped
		close(c.done)
	}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-c.done
	}
	c.closeSource()
}

// Done is closed when the loop has ended.
func (c *Consumer) Done() <-chan struct{} { return c.done }

func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsCompleted reports whether the loop has ended, for whatever reason.
func (c *Consumer) IsCompleted() bool { return c.State() == Stopped }

// Err is the error that ended the loop, nil after a clean stop.
func (c *Consumer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Health reports NOT_STARTED before start and after a requested stop, OK
// while polling and ERROR when the loop ended on its own. Consumers are not
// part of readiness.
func (c *Consumer) Health(context.Context) health.HealthStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := health.HealthStatus{Name: c.Name()}
	switch c.state {
	case NotStarted:
		st.Status = health.NotStarted
	case Active:
		st.Status = health.OK
	case Paused:
		st.Status = health.OK
		st.Description = "paused"
	case Stopped:
		if c.stopRequested || c.err == nil {
			st.Status = health.NotStarted
		} else {
			st.Status = health.Error
			st.Description = c.err.Error()
		}
	}
	return st
}

func (c *Consumer) run(ctx context.Context) {
	defer close(c.done)
	err := c.loop(ctx)

	c.mu.Lock()
	c.state = Stopped
	c.err = err
	c.mu.Unlock()

	if err != nil {
		c.log.Error("stopped polling: %v", err)
		c.closeSource()
		return
	}
	c.log.Info("stopped polling")
}

func (c *Consumer) loop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := c.pollOnce(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return nil
		}
		if stop := c.handle(ctx, err); stop {
			return err
		}
	}
}

// pollOnce processes one batch and commits it. Processing and commit are
// detached from ctx so a stop never cuts a batch in half.
func (c *Consumer) pollOnce(ctx context.Context) error {
	records, err := c.source.Poll(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	work := context.WithoutCancel(ctx)
	if err := c.processor.Process(work, records); err != nil {
		return err
	}
	return c.source.Commit(work)
}

// handle decides what happens after a failed iteration and reports whether
// the loop has to stop.
func (c *Consumer) handle(ctx context.Context, err error) bool {
	kind := failure.KindOf(err)
	c.metrics.ConsumerFailure(c.eventType, kind)

	switch {
	case kind.Retriable():
		c.log.Warn("retrying batch after %s error: %v", kind, err)
		c.rewind()
		sleep(ctx, c.opts.RetryBackoff)
		return false

	case kind == failure.Authorization:
		c.log.Warn("pausing for %s after %s error: %v", c.opts.PauseInterval, kind, err)
		c.setState(Paused)
		sleep(ctx, c.opts.PauseInterval)
		c.setState(Active)
		c.rewind()
		return false

	default:
		c.log.Error("giving up after %s error: %v", kind, err)
		return true
	}
}

func (c *Consumer) rewind() {
	if err := c.source.Rewind(); err != nil {
		c.log.Warn("rewind: %v", err)
	}
}

func (c *Consumer) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Stopped {
		c.state = s
	}
}

func (c *Consumer) closeSource() {
	c.closeOnce.Do(func() {
		if err := c.source.Close(); err != nil {
			c.log.Warn("close source: %v", err)
		}
	})
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
