// Package app is the composition root: it owns the consumers and their
// lifecycle, and feeds the health service.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"notification-hub/order-relay/internal/health"
	"notification-hub/shared/pkg/domain"
	"notification-hub/shared/pkg/logger"
)

// Pinger is the store as the readiness check sees it.
type Pinger interface {
	Ping(ctx context.Context) error
}

type App struct {
	ctx    context.Context
	build  BuildFunc
	store  Pinger
	health *health.Service

	mu        sync.Mutex
	pipelines map[domain.EventType]*Pipeline
	// failed holds the last build error of event types left without a
	// pipeline.
	failed map[domain.EventType]error
	// stopped is set by a manual stop and keeps the polling check from
	// restarting consumers behind the operator's back.
	stopped bool
}

// New creates the app. ctx bounds the lifetime of every consumer started
// by it.
func New(ctx context.Context, st Pinger, build BuildFunc) *App {
	a := &App{
		ctx:       ctx,
		build:     build,
		store:     st,
		pipelines: make(map[domain.EventType]*Pipeline),
		failed:    make(map[domain.EventType]error),
	}
	a.health = health.NewService(a.checks)
	return a
}

func (a *App) Health() *health.Service { return a.health }

func (a *App) checks() []health.Check {
	a.mu.Lock()
	defer a.mu.Unlock()

	checks := []health.Check{health.PingCheck("database", a.store.Ping)}
	for _, et := range EventTypes {
		if p, ok := a.pipelines[et]; ok {
			checks = append(checks, p.Consumer)
		} else if err, ok := a.failed[et]; ok {
			checks = append(checks, buildFailure(et, err))
		}
	}
	return checks
}

func buildFailure(et domain.EventType, err error) health.Check {
	st := health.HealthStatus{
		Name:        "consumer-" + string(et),
		Status:      health.Error,
		Description: "could not build consumer: " + err.Error(),
	}
	return health.CheckFunc(func(context.Context) health.HealthStatus { return st })
}

// StartAll builds and starts a consumer for every event type that has
// none running.
func (a *App) StartAll() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = false
	return a.reinitializeLocked()
}

// StopAll stops every consumer and waits for their batches in flight.
func (a *App) StopAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	clear(a.failed)

	var wg sync.WaitGroup
	for _, p := range a.pipelines {
		wg.Add(1)
		go func(p *Pipeline) {
			defer wg.Done()
			p.Close()
		}(p)
	}
	wg.Wait()
	logger.Info("all consumers stopped")
}

// ReinitializeConsumers replaces every completed consumer with a fresh one
// and leaves running consumers alone.
func (a *App) ReinitializeConsumers() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = false
	return a.reinitializeLocked()
}

func (a *App) reinitializeLocked() error {
	var errs []error
	for _, et := range EventTypes {
		old, ok := a.pipelines[et]
		if ok && !old.Consumer.IsCompleted() {
			continue
		}
		if ok {
			old.Close()
			delete(a.pipelines, et)
		}

		p, err := a.build(et)
		if err != nil {
			a.failed[et] = err
			errs = append(errs, fmt.Errorf("build %s consumer: %w", et, err))
			continue
		}
		delete(a.failed, et)
		a.pipelines[et] = p
		p.Consumer.Start(a.ctx)
		if ok {
			logger.Info("reinitialized %s consumer", et)
		}
	}
	return errors.Join(errs...)
}

// StartPolling stops every consumer and starts a fresh set. It backs the
// polling start endpoint.
func (a *App) StartPolling() error {
	a.StopAll()
	return a.ReinitializeConsumers()
}

func (a *App) StopPolling() { a.StopAll() }

// Completed reports whether any consumer has ended or could not be built.
func (a *App) Completed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.failed) > 0 {
		return true
	}
	for _, p := range a.pipelines {
		if p.Consumer.IsCompleted() {
			return true
		}
	}
	return false
}

// PollingCheck restarts completed consumers every interval until ctx is
// done. A zero interval disables it.
func (a *App) PollingCheck(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		a.mu.Lock()
		stopped := a.stopped
		a.mu.Unlock()
		if stopped || !a.Completed() {
			continue
		}
		logger.Warn("found completed consumers, restarting polling")
		if err := a.ReinitializeConsumers(); err != nil {
			logger.Error("restart polling: %v", err)
		}
	}
}
