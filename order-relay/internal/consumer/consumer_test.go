package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"notification-hub/order-relay/internal/failure"
	"notification-hub/order-relay/internal/health"
	"notification-hub/order-relay/internal/kafkaio"
	"notification-hub/order-relay/internal/metrics"
	"notification-hub/shared/pkg/domain"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// fakeSource hands out queued batches. A rewind puts the uncommitted batch
// back at the front of the queue, like a reader rejoining at the committed
// offset.
type fakeSource struct {
	mu       sync.Mutex
	batches  [][]kafkaio.Record
	pollErrs []error
	inflight []kafkaio.Record
	commits  int
	rewinds  int
	closed   bool
}

func (s *fakeSource) Poll(ctx context.Context) ([]kafkaio.Record, error) {
	s.mu.Lock()
	if len(s.pollErrs) > 0 {
		err := s.pollErrs[0]
		s.pollErrs = s.pollErrs[1:]
		s.mu.Unlock()
		return nil, err
	}
	if len(s.batches) > 0 {
		b := s.batches[0]
		s.batches = s.batches[1:]
		s.inflight = b
		s.mu.Unlock()
		return b, nil
	}
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Millisecond):
		return nil, nil
	}
}

func (s *fakeSource) Commit(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight = nil
	s.commits++
	return nil
}

func (s *fakeSource) Rewind() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight != nil {
		s.batches = append([][]kafkaio.Record{s.inflight}, s.batches...)
		s.inflight = nil
	}
	s.rewinds++
	return nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSource) snapshot() (commits, rewinds int, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits, s.rewinds, s.closed
}

type fakeProcessor struct {
	mu    sync.Mutex
	calls int
	fn    func(call int) error
}

func (p *fakeProcessor) Process(ctx context.Context, records []kafkaio.Record) error {
	p.mu.Lock()
	p.calls++
	call := p.calls
	p.mu.Unlock()
	if p.fn == nil {
		return nil
	}
	return p.fn(call)
}

func (p *fakeProcessor) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func oneBatch() [][]kafkaio.Record {
	return [][]kafkaio.Record{{{Topic: "notification.message", Offset: 1}}}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

var fastOptions = Options{PauseInterval: 50 * time.Millisecond, RetryBackoff: time.Millisecond}

func newConsumer(src *fakeSource, proc *fakeProcessor) (*Consumer, *metrics.Collector) {
	m := metrics.NewCollector()
	return New(domain.EventMessage, src, proc, m, fastOptions), m
}

func TestCommitsOnceAfterSuccess(t *testing.T) {
	src := &fakeSource{batches: oneBatch()}
	proc := &fakeProcessor{}
	c, _ := newConsumer(src, proc)

	if st := c.Health(context.Background()).Status; st != health.NotStarted {
		t.Fatalf("health before start = %s", st)
	}
	c.Start(context.Background())
	eventually(t, func() bool { commits, _, _ := src.snapshot(); return commits == 1 })
	if st := c.Health(context.Background()).Status; st != health.OK {
		t.Fatalf("health while polling = %s", st)
	}

	c.Stop()
	commits, rewinds, closed := src.snapshot()
	if commits != 1 || rewinds != 0 || !closed {
		t.Fatalf("commits=%d rewinds=%d closed=%v", commits, rewinds, closed)
	}
	if !c.IsCompleted() {
		t.Fatal("consumer should be completed after stop")
	}
	if st := c.Health(context.Background()).Status; st != health.NotStarted {
		t.Fatalf("health after stop = %s", st)
	}
}

func TestRetriableErrorRewindsWithoutCommit(t *testing.T) {
	for _, kind := range []failure.Kind{failure.RetriableBroker, failure.RetriableStore, failure.Untransformable} {
		t.Run(kind.String(), func(t *testing.T) {
			src := &fakeSource{batches: oneBatch()}
			proc := &fakeProcessor{fn: func(call int) error {
				if call == 1 {
					return failure.New(kind, "test", errors.New("try again"))
				}
				return nil
			}}
			c, m := newConsumer(src, proc)
			c.Start(context.Background())
			defer c.Stop()

			eventually(t, func() bool { commits, _, _ := src.snapshot(); return commits == 1 })
			_, rewinds, _ := src.snapshot()
			if rewinds != 1 || proc.callCount() != 2 {
				t.Fatalf("rewinds=%d calls=%d", rewinds, proc.callCount())
			}
			if c.IsCompleted() {
				t.Fatal("retriable errors must not stop the consumer")
			}
			if got := testutil.ToFloat64(m.ConsumerFailures.WithLabelValues("message", kind.String())); got != 1 {
				t.Fatalf("failure counter = %v", got)
			}
		})
	}
}

func TestUnrecoverableErrorStops(t *testing.T) {
	for _, kind := range []failure.Kind{failure.UnrecoverableBroker, failure.UnrecoverableStore, failure.Unknown} {
		t.Run(kind.String(), func(t *testing.T) {
			src := &fakeSource{batches: oneBatch()}
			proc := &fakeProcessor{fn: func(int) error {
				return failure.New(kind, "test", errors.New("broken"))
			}}
			c, _ := newConsumer(src, proc)
			c.Start(context.Background())

			select {
			case <-c.Done():
			case <-time.After(2 * time.Second):
				t.Fatal("consumer did not stop")
			}
			commits, _, closed := src.snapshot()
			if commits != 0 || !closed {
				t.Fatalf("commits=%d closed=%v", commits, closed)
			}
			h := c.Health(context.Background())
			if h.Status != health.Error || h.IncludeInReadiness {
				t.Fatalf("health = %+v", h)
			}
			if failure.KindOf(c.Err()) != kind {
				t.Fatalf("err = %v", c.Err())
			}
		})
	}
}

func TestAuthorizationErrorPausesThenResumes(t *testing.T) {
	src := &fakeSource{
		pollErrs: []error{failure.New(failure.Authorization, "kafka.poll", errors.New("topic authorization failed"))},
		batches:  oneBatch(),
	}
	proc := &fakeProcessor{}
	c, _ := newConsumer(src, proc)
	c.Start(context.Background())
	defer c.Stop()

	eventually(t, func() bool { return c.State() == Paused })
	if h := c.Health(context.Background()); h.Status != health.OK {
		t.Fatalf("paused consumer health = %+v", h)
	}

	eventually(t, func() bool { commits, _, _ := src.snapshot(); return commits == 1 })
	if _, rewinds, _ := src.snapshot(); rewinds != 1 {
		t.Fatalf("rewinds = %d", rewinds)
	}
	if c.State() != Active {
		t.Fatalf("state = %s", c.State())
	}
}

func TestStopWaitsForBatchInFlight(t *testing.T) {
	src := &fakeSource{batches: oneBatch()}
	entered := make(chan struct{})
	release := make(chan struct{})
	proc := &fakeProcessor{fn: func(int) error {
		close(entered)
		<-release
		return nil
	}}
	c, _ := newConsumer(src, proc)
	c.Start(context.Background())
	<-entered

	stopped := make(chan struct{})
	go func() {
		c.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a batch was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-stopped

	if commits, _, _ := src.snapshot(); commits != 1 {
		t.Fatalf("in-flight batch must still be committed, commits=%d", commits)
	}
	if c.Err() != nil {
		t.Fatalf("clean stop recorded error %v", c.Err())
	}
}

func TestStopBeforeStart(t *testing.T) {
	src := &fakeSource{}
	c, _ := newConsumer(src, &fakeProcessor{})
	c.Stop()
	c.Stop()

	if !c.IsCompleted() {
		t.Fatal("stopped consumer should be completed")
	}
	if _, _, closed := src.snapshot(); !closed {
		t.Fatal("source not closed")
	}
	c.Start(context.Background())
	if c.State() != Stopped {
		t.Fatal("a stopped consumer cannot be restarted")
	}
}

func TestParentCancelExitsCleanly(t *testing.T) {
	src := &fakeSource{}
	c, _ := newConsumer(src, &fakeProcessor{})
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	cancel()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not exit on cancellation")
	}
	if c.Err() != nil {
		t.Fatalf("err = %v", c.Err())
	}
	if st := c.Health(context.Background()).Status; st != health.NotStarted {
		t.Fatalf("health = %s", st)
	}
}
