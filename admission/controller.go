/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/atomic"

	"github.com/acronis/go-admission/log"
)

// windowDuration is the fixed span of the sliding window used for limiting.
const windowDuration = time.Second

// Controller decides whether requests from individual clients may be admitted.
// It owns the window store and the idle reclamation loop.
// A single Controller is intended to live for the whole process (or middleware instance) lifetime.
type Controller struct {
	limit           int
	cleanupInterval time.Duration
	entryTTL        time.Duration

	store  *windowStore
	logger log.FieldLogger

	timeNow func() time.Time

	loopStarted atomic.Bool
	loopCtx     context.Context
	loopCancel  context.CancelFunc
	loopDone    chan struct{}
}

// NewController creates a new Controller with the given configuration.
// Nil cfg means default configuration, nil logger disables logging.
func NewController(cfg *Config, logger log.FieldLogger) (*Controller, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate admission config: %w", err)
	}
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		limit:           cfg.Limit,
		cleanupInterval: time.Duration(cfg.CleanupInterval),
		entryTTL:        time.Duration(cfg.EntryTTL),
		store:           newWindowStore(),
		logger:          logger,
		timeNow:         time.Now,
		loopCtx:         ctx,
		loopCancel:      cancel,
		loopDone:        make(chan struct{}),
	}, nil
}

// MustNewController is a version of NewController that panics if an error occurs.
func MustNewController(cfg *Config, logger log.FieldLogger) *Controller {
	c, err := NewController(cfg, logger)
	if err != nil {
		panic(err)
	}
	return c
}

// Check reports whether a request from the client identified by key may be admitted right now,
// and records the attempt in the client's window either way.
// The caller is responsible for resolving a non-empty key before calling Check.
//
// The very first Check call starts the idle reclamation loop in the background.
func (c *Controller) Check(key string) bool {
	if c.loopStarted.CAS(false, true) {
		go c.runCleanupLoop()
	}
	return c.store.check(key, c.timeNow(), c.limit, windowDuration)
}

// Shutdown cancels the idle reclamation loop and waits until it exits.
// It is idempotent and safe to call even if Check was never called.
func (c *Controller) Shutdown() {
	c.loopCancel()
	if c.loopStarted.Load() {
		<-c.loopDone
	}
}

// runCleanupLoop periodically evicts idle clients from the store until the controller is shut down.
// The loop never performs a cleanup pass after observing cancellation.
func (c *Controller) runCleanupLoop() {
	defer close(c.loopDone)
	defer func() {
		if p := recover(); p != nil {
			const logStackSize = 8192
			stack := make([]byte, logStackSize)
			stack = stack[:runtime.Stack(stack, false)]
			c.logger.Error(fmt.Sprintf("admission cleanup loop panic: %+v", p), log.Bytes("stack", stack))
		}
	}()

	c.logger.Info("starting admission cleanup loop",
		log.Duration("cleanup_interval", c.cleanupInterval), log.Duration("entry_ttl", c.entryTTL))

	timer := time.NewTimer(c.cleanupInterval)
	defer timer.Stop()

	for {
		select {
		case <-c.loopCtx.Done():
			c.logger.Info("admission cleanup loop stopped")
			return
		case <-timer.C:
		}
		if c.loopCtx.Err() != nil {
			c.logger.Info("admission cleanup loop stopped")
			return
		}

		if evicted := c.store.cleanup(c.timeNow(), c.entryTTL); evicted > 0 {
			c.logger.Debug("evicted idle clients",
				log.Int("evicted", evicted), log.Int("remaining", c.store.size()))
		}

		timer.Stop()
		timer = time.NewTimer(c.cleanupInterval)
	}
}
