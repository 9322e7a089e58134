package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/glswatch/internal/gls"
	"github.com/BearBump/glswatch/internal/models"
)

type Store interface {
	Read(ctx context.Context) (models.State, error)
	Write(ctx context.Context, st models.State) error
}

type Carrier interface {
	FetchHistory(ctx context.Context, trackNumber, postalCode string) (gls.History, error)
}

type Notifier interface {
	Raise(ctx context.Context, title, message, dedupeKey string) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Watcher runs the poll cycles: one cycle reads the whole state, checks
// every non-archived shipment, and writes the whole state back once.
// Cycles never overlap; an on-demand trigger during a cycle is queued.
type Watcher struct {
	store    Store
	carrier  Carrier
	notifier Notifier
	rl       RateLimiter

	// pollInterval 0 means "take intervalMinutes from the state each
	// cycle" (1 minute floor). Overridden with a fixed value in tests.
	pollInterval       time.Duration
	concurrency        int
	rateLimitPerMinute int64

	triggerCh chan struct{}
	now       func() time.Time

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalChecked        atomic.Int64
	totalChanged        atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(store Store, carrier Carrier, notifier Notifier, rl RateLimiter) *Watcher {
	return &Watcher{
		store:              store,
		carrier:            carrier,
		notifier:           notifier,
		rl:                 rl,
		concurrency:        4,
		rateLimitPerMinute: 60,
		triggerCh:          make(chan struct{}, 1),
		now:                time.Now,
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func (w *Watcher) WithSettings(pollInterval time.Duration, concurrency int, rlPerMin int64) *Watcher {
	if pollInterval > 0 {
		w.pollInterval = pollInterval
	}
	if concurrency > 0 {
		w.concurrency = concurrency
	}
	if rlPerMin > 0 {
		w.rateLimitPerMinute = rlPerMin
	}
	return w
}

// Trigger queues an immediate poll cycle (best-effort, non-blocking).
func (w *Watcher) Trigger() {
	w.lastTriggerUnixNano.Store(w.now().UTC().UnixNano())
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt     time.Time  `json:"startedAt"`
	LastCycleAt   *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt *time.Time `json:"lastTriggerAt,omitempty"`
	TotalChecked  int64      `json:"totalChecked"`
	TotalChanged  int64      `json:"totalChanged"`
	TotalErrors   int64      `json:"totalErrors"`
	InFlight      int64      `json:"inFlight"`
	LastError     string     `json:"lastError,omitempty"`
}

func (w *Watcher) Stats() Stats {
	st := Stats{
		StartedAt:    time.Unix(0, w.startedAtUnixNano).UTC(),
		TotalChecked: w.totalChecked.Load(),
		TotalChanged: w.totalChanged.Load(),
		TotalErrors:  w.totalErrors.Load(),
		InFlight:     w.inFlight.Load(),
	}
	if n := w.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := w.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	w.lastErrorMu.Lock()
	st.LastError = w.lastError
	w.lastErrorMu.Unlock()
	return st
}

// Run performs one startup cycle, then alternates between the configured
// interval and queued triggers until the context is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	interval := w.runCycle(ctx)

	t := time.NewTimer(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		case <-w.triggerCh:
			if !t.Stop() {
				select {
				case <-t.C:
				default:
				}
			}
		}
		interval = w.runCycle(ctx)
		t.Reset(interval)
	}
}

// runCycle does one read-check-all-write pass and returns the delay until
// the next scheduled cycle.
func (w *Watcher) runCycle(ctx context.Context) time.Duration {
	w.lastCycleUnixNano.Store(w.now().UTC().UnixNano())

	st, err := w.store.Read(ctx)
	if err != nil {
		slog.Error("read state", "error", err.Error())
		w.recordError(err)
		return w.nextInterval(models.DefaultState())
	}

	// Results are written by input index so the persisted order never
	// depends on completion order.
	out := make([]models.TrackedShipment, len(st.Trackers))
	sem := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup
	for i := range st.Trackers {
		tr := st.Trackers[i]
		if tr.Archived {
			out[i] = tr
			continue
		}
		sem <- struct{}{}
		wg.Add(1)
		w.inFlight.Add(1)
		go func(i int, tr models.TrackedShipment) {
			defer func() {
				w.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			out[i] = w.checkOne(ctx, tr, st)
			w.totalChecked.Add(1)
		}(i, tr)
	}
	wg.Wait()

	st.Trackers = out
	if err := w.store.Write(ctx, st); err != nil {
		slog.Error("write state", "error", err.Error())
		w.recordError(err)
	}
	return w.nextInterval(st)
}

// checkOne polls one shipment and returns its updated record. Failures are
// recorded on the record and never propagate; last-known-good status
// fields survive them.
func (w *Watcher) checkOne(ctx context.Context, tr models.TrackedShipment, cfg models.State) models.TrackedShipment {
	now := w.now().UTC()

	if w.rl != nil && w.rateLimitPerMinute > 0 {
		minuteKey := "rl:gls:" + now.Format("200601021504")
		allowed, n, err := w.rl.Allow(ctx, minuteKey, w.rateLimitPerMinute, 70*time.Second)
		if err != nil {
			slog.Warn("rate limiter unavailable", "error", err.Error())
		} else if !allowed {
			// Слишком много запросов в минуту: подождём немного, чтобы разгрузить источник.
			slog.Warn("rate limit exceeded", "count", n)
			time.Sleep(500 * time.Millisecond)
		}
	}

	hist, err := w.carrier.FetchHistory(ctx, tr.TrackingNumber, tr.PostalCode)
	tr.LastCheckedAt = &now

	if err != nil {
		msg := err.Error()
		tr.LastError = &msg
		tr.History = []string{}
		w.totalErrors.Add(1)
		w.recordError(err)
		slog.Warn("check failed", "shipment", label(tr), "error", msg)
		return tr
	}

	tr.LastError = nil
	tr.History = hist.Entries

	ch := gls.DetectChange(tr.LastSignature, hist.LatestWhen, hist.LatestText)
	if !ch.Changed {
		return tr
	}
	w.totalChanged.Add(1)

	sig := ch.Signature
	text := hist.LatestText
	tr.LastSignature = &sig
	tr.LastStatusText = &text
	tr.LastStatusWhen = nil
	if hist.LatestWhen != "" {
		when := hist.LatestWhen
		tr.LastStatusWhen = &when
	}

	title := "GLS status updated"
	if tr.Description != "" {
		title = tr.Description + " — status updated"
	}
	body := hist.LatestText
	if hist.LatestWhen != "" {
		body = hist.LatestWhen + "\n" + hist.LatestText
	}
	w.raise(ctx, title, body, "gls-"+tr.ID)

	if cfg.AutoArchiveDelivered && ch.Delivered {
		tr.Archived = true
		archTitle := tr.Description
		if archTitle == "" {
			archTitle = "GLS"
		}
		w.raise(ctx, archTitle, "Delivered — archived.", "arch-"+tr.ID)
	}
	return tr
}

// raise is fire-and-forget: a notifier failure must never fail the check.
func (w *Watcher) raise(ctx context.Context, title, message, dedupeKey string) {
	if w.notifier == nil {
		return
	}
	if err := w.notifier.Raise(ctx, title, message, dedupeKey); err != nil {
		slog.Warn("notification skipped", "title", title, "error", err.Error())
	}
}

func (w *Watcher) nextInterval(st models.State) time.Duration {
	if w.pollInterval > 0 {
		return w.pollInterval
	}
	m := st.IntervalMinutes
	if m == 0 {
		m = models.DefaultIntervalMinutes
	}
	if m < models.MinIntervalMinutes {
		m = models.MinIntervalMinutes
	}
	return time.Duration(m) * time.Minute
}

func (w *Watcher) recordError(err error) {
	w.lastErrorMu.Lock()
	w.lastError = err.Error()
	w.lastErrorMu.Unlock()
}

func label(tr models.TrackedShipment) string {
	if tr.Description != "" {
		return tr.Description
	}
	return fmt.Sprintf("%s/%s", tr.TrackingNumber, tr.PostalCode)
}
