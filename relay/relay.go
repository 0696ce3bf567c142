// Package relay periodically snapshots the gather source and publishes the
// resulting telemetry frames to a message bus, so dashboards can follow a
// capture without holding a TCP session open.
package relay

import (
	"bytes"
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/gatherd/errors"
	"github.com/c360/gatherd/gather"
	"github.com/c360/gatherd/metric"
	"github.com/c360/gatherd/wire"
)

// DefaultInterval is the publish cadence when config leaves it unset.
const DefaultInterval = time.Second

// Publisher abstracts the bus connection the relay publishes through.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Config holds relay settings.
type Config struct {
	SubjectPrefix string        `json:"subject_prefix"`
	Interval      time.Duration `json:"interval"`
}

// Deps holds runtime dependencies for the relay.
type Deps struct {
	Source          gather.Source
	Publisher       Publisher
	MetricsRegistry *metric.MetricsRegistry // Optional
	Logger          *slog.Logger            // Optional
}

// Relay runs one publish loop per capture mode. The loops share nothing
// but the read-only source and the publisher; either loop failing hard
// stops both.
type Relay struct {
	prefix   string
	interval time.Duration

	src    gather.Source
	pub    Publisher
	logger *slog.Logger

	metrics *Metrics
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a relay from config and dependencies.
func New(cfg Config, deps Deps) *Relay {
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "gather"
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Relay{
		prefix:   prefix,
		interval: interval,
		src:      deps.Source,
		pub:      deps.Publisher,
		logger:   logger.With("component", "relay"),
		metrics:  newMetrics(deps.MetricsRegistry),
	}
}

// Initialize validates dependencies before Start.
func (r *Relay) Initialize() error {
	if r.src == nil {
		return errors.WrapFatal(errors.ErrSourceUnavailable, "relay", "Initialize", "telemetry source check")
	}
	if r.pub == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "relay", "Initialize", "publisher check")
	}
	return nil
}

// Start launches the per-mode publish loops.
func (r *Relay) Start(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "relay", "Start", "state check")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	g, ctx := errgroup.WithContext(ctx)
	for _, m := range []gather.Mode{gather.Servo, gather.Phase} {
		m := m
		g.Go(func() error { return r.publishLoop(ctx, m) })
	}

	go func() {
		defer close(r.done)
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("relay stopped abnormally", "error", err)
		}
	}()

	r.logger.Info("relay started",
		"subject_prefix", r.prefix,
		"interval", r.interval)
	return nil
}

// publishLoop snapshots and publishes one mode on every tick. Publish
// failures are transient (the bus reconnects underneath) and only counted;
// the loop keeps its cadence.
func (r *Relay) publishLoop(ctx context.Context, m gather.Mode) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.publishOnce(m); err != nil {
				r.metrics.countError(m)
				r.logger.Warn("publish failed", "mode", m.String(), "error", err)
			}
		}
	}
}

// publishOnce publishes the mode's type frame, then its data frame when the
// mode has channels configured. Frames carry the exact server wire format
// so bus subscribers and TCP clients parse the same bytes.
func (r *Relay) publishOnce(m gather.Mode) error {
	var buf bytes.Buffer

	hasItems, err := wire.SendTypes(&buf, r.src, m)
	if err != nil {
		return err
	}
	if err := r.pub.Publish(r.subject(m, "types"), buf.Bytes()); err != nil {
		return err
	}
	r.metrics.countPublish(m, "types")

	if !hasItems {
		return nil
	}

	buf.Reset()
	if err := wire.SendData(&buf, r.src, m); err != nil {
		return err
	}
	if err := r.pub.Publish(r.subject(m, "data"), buf.Bytes()); err != nil {
		return err
	}
	r.metrics.countPublish(m, "data")
	return nil
}

func (r *Relay) subject(m gather.Mode, kind string) string {
	return r.prefix + "." + m.String() + "." + kind
}

// Stop cancels the loops and waits for them to exit.
func (r *Relay) Stop(timeout time.Duration) error {
	if !r.running.CompareAndSwap(true, false) {
		return errors.WrapInvalid(errors.ErrNotStarted, "relay", "Stop", "state check")
	}

	r.cancel()
	select {
	case <-r.done:
		r.logger.Info("relay stopped")
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrStopTimeout, "relay", "Stop", "loop drain")
	}
}
