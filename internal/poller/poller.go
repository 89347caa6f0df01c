package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/imrishuroy/merchant-orderdesk/internal/alerts"
	"github.com/imrishuroy/merchant-orderdesk/internal/metrics"
	"github.com/imrishuroy/merchant-orderdesk/internal/orders"
	"github.com/imrishuroy/merchant-orderdesk/internal/session"
)

// ErrRefreshInProgress is returned when a refresh is dropped because another
// one is still running.
var ErrRefreshInProgress = errors.New("refresh already in progress")

const (
	// DefaultInterval is the poll period.
	DefaultInterval = 30 * time.Second
	// DefaultChimeTimeout bounds one notification.
	DefaultChimeTimeout = 5 * time.Second
)

// OrderSource fetches the authoritative order list.
type OrderSource interface {
	GetMerchantOrders(ctx context.Context, merchantID string) ([]orders.Order, error)
}

// Chime is the new-order notification side effect. merchantID is the
// merchant of the session that fetched the arrivals.
type Chime interface {
	Play(ctx context.Context, merchantID string, arrivals []orders.Order) error
}

// Trigger says what started a refresh.
type Trigger string

const (
	TriggerTimer  Trigger = "timer"
	TriggerManual Trigger = "manual"
)

// Result describes one completed refresh.
type Result struct {
	Trigger    Trigger        `json:"trigger"`
	At         time.Time      `json:"at"`
	Count      int            `json:"count"`
	NewArrived []orders.Order `json:"newArrived"`
	Error      string         `json:"error,omitempty"`
}

// Config tunes a Poller.
type Config struct {
	Interval     time.Duration
	SoundEnabled bool
	FetchTimeout time.Duration // 0 leaves the fetch bounded only by the caller
	ChimeTimeout time.Duration
	Alerts       *alerts.Center // optional; failed manual refreshes are pushed here
}

// Poller keeps the order store approximately fresh by periodic re-fetch.
type Poller struct {
	store   *orders.Store
	source  OrderSource
	session session.Provider
	chime   Chime
	cfg     Config

	busy    atomic.Bool
	sound   atomic.Bool
	mu      sync.Mutex
	last    Result
	nowFunc func() time.Time
}

// New returns a Poller. chime may be nil.
func New(store *orders.Store, source OrderSource, sess session.Provider, chime Chime, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ChimeTimeout <= 0 {
		cfg.ChimeTimeout = DefaultChimeTimeout
	}
	p := &Poller{
		store:   store,
		source:  source,
		session: sess,
		chime:   chime,
		cfg:     cfg,
		nowFunc: time.Now,
	}
	p.sound.Store(cfg.SoundEnabled)
	return p
}

// SetSoundEnabled toggles the notification side effect.
func (p *Poller) SetSoundEnabled(on bool) { p.sound.Store(on) }

// SoundEnabled reports the notification toggle.
func (p *Poller) SoundEnabled() bool { return p.sound.Load() }

// Busy reports whether a refresh is running.
func (p *Poller) Busy() bool { return p.busy.Load() }

// LastResult returns the outcome of the most recent completed refresh.
func (p *Poller) LastResult() Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Run refreshes once immediately and then on every tick until ctx ends.
// Ticks that find a refresh already running are dropped.
func (p *Poller) Run(ctx context.Context) error {
	log.Info().Dur("interval", p.cfg.Interval).Msg("order poller started")
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("order poller stopped")
			return nil
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	_, err := p.refresh(ctx, TriggerTimer)
	switch {
	case err == nil, errors.Is(err, ErrRefreshInProgress), errors.Is(err, context.Canceled):
	case errors.Is(err, session.ErrNoSession):
		log.Warn().Msg("no session, skipping poll until login")
	default:
		log.Error().Err(err).Msg("order poll failed")
	}
}

// Refresh performs a manual out-of-band fetch and reconcile.
func (p *Poller) Refresh(ctx context.Context) (Result, error) {
	return p.refresh(ctx, TriggerManual)
}

func (p *Poller) refresh(ctx context.Context, trigger Trigger) (Result, error) {
	res, merchantID, err := p.reconcile(ctx, trigger)
	if err != nil {
		if trigger == TriggerManual && p.cfg.Alerts != nil &&
			!errors.Is(err, ErrRefreshInProgress) && !errors.Is(err, session.ErrNoSession) {
			p.cfg.Alerts.Push(alerts.KindRefreshFailed, "", "Could not refresh orders. Showing the last loaded list.")
		}
		return res, err
	}
	// busy is already released: a slow chime never drops the next refresh
	if len(res.NewArrived) > 0 && p.sound.Load() {
		p.play(ctx, merchantID, res.NewArrived)
	}
	return res, nil
}

// reconcile fetches and replaces the working set while holding the busy flag.
func (p *Poller) reconcile(ctx context.Context, trigger Trigger) (Result, string, error) {
	if !p.busy.CompareAndSwap(false, true) {
		metrics.Polls.WithLabelValues(string(trigger), "dropped").Inc()
		return Result{}, "", ErrRefreshInProgress
	}
	defer p.busy.Store(false)

	start := p.nowFunc()
	res := Result{Trigger: trigger, At: start.UTC()}

	user, err := p.session.CurrentUser(ctx)
	if err != nil {
		metrics.Polls.WithLabelValues(string(trigger), "no_session").Inc()
		res, err = p.finish(res, err)
		return res, "", err
	}

	fctx := ctx
	if p.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, p.cfg.FetchTimeout)
		defer cancel()
	}
	fetched, err := p.source.GetMerchantOrders(fctx, user.MerchantID)
	if err != nil {
		metrics.Polls.WithLabelValues(string(trigger), "error").Inc()
		res, err = p.finish(res, fmt.Errorf("fetch orders: %w", err))
		return res, "", err
	}

	arrivals := p.store.Reconcile(fetched)
	res.Count = len(fetched)
	res.NewArrived = arrivals
	metrics.Polls.WithLabelValues(string(trigger), "ok").Inc()
	metrics.PollDuration.Observe(float64(p.nowFunc().Sub(start).Milliseconds()))

	if len(arrivals) > 0 {
		metrics.NewOrders.Add(float64(len(arrivals)))
		log.Info().Int("count", len(arrivals)).Str("trigger", string(trigger)).Msg("new orders arrived")
	}
	res, _ = p.finish(res, nil)
	return res, user.MerchantID, nil
}

func (p *Poller) finish(res Result, err error) (Result, error) {
	if err != nil {
		res.Error = err.Error()
	}
	p.mu.Lock()
	p.last = res
	p.mu.Unlock()
	return res, err
}

// play never fails the reconciliation: errors and panics from the chime are
// logged and dropped, and each call is bounded by ChimeTimeout.
func (p *Poller) play(ctx context.Context, merchantID string, arrivals []orders.Order) {
	if p.chime == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ChimeTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			metrics.ChimeFailures.Inc()
			log.Warn().Interface("panic", r).Msg("new order chime panicked")
		}
	}()
	if err := p.chime.Play(ctx, merchantID, arrivals); err != nil {
		metrics.ChimeFailures.Inc()
		log.Warn().Err(err).Msg("new order chime failed")
	}
}
