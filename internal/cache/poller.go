package cache

import (
	"fmt"
	"sync"
	"time"

	"auction-client/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Poller refreshes tracked keys on a fixed interval so prices and statuses
// stay current while a view is open, including while the tab is backgrounded.
type Poller struct {
	cache    *Cache
	cron     *cron.Cron
	interval time.Duration
	mu       sync.Mutex
	jobs     map[string]cron.EntryID
	log      logger.Logger
}

func NewPoller(c *Cache, interval time.Duration, log logger.Logger) *Poller {
	p := &Poller{
		cache:    c,
		cron:     cron.New(cron.WithSeconds()),
		interval: interval,
		jobs:     make(map[string]cron.EntryID),
		log:      log,
	}
	p.cron.Start()
	return p
}

// Track registers a refresh job for key. Tracking an already-tracked key is
// a no-op, so each key carries at most one job.
func (p *Poller) Track(key Key, fetcher Fetcher, opts Options) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.jobs[key.ID()]; ok {
		return nil
	}

	p.cache.Register(key, fetcher, opts)

	k := key
	id, err := p.cron.AddFunc(fmt.Sprintf("@every %s", p.interval), func() {
		p.cache.Refresh(k)
	})
	if err != nil {
		return err
	}

	p.jobs[key.ID()] = id
	p.log.Info("Tracking cache key", "key", key.String(), "interval", p.interval)
	return nil
}

func (p *Poller) Untrack(key Key) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id, ok := p.jobs[key.ID()]; ok {
		p.cron.Remove(id)
		delete(p.jobs, key.ID())
		p.log.Info("Stopped tracking cache key", "key", key.String())
	}
}

func (p *Poller) Tracked(key Key) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.jobs[key.ID()]
	return ok
}

func (p *Poller) Stop() {
	p.cron.Stop()
	p.log.Info("Poller stopped")
}
