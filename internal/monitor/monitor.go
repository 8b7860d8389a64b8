package monitor

import (
	"context"
	"time"

	"codeberg.org/mutker/powerwallmon/internal/errors"
	"codeberg.org/mutker/powerwallmon/internal/journal"
	"codeberg.org/mutker/powerwallmon/internal/logger"
	"codeberg.org/mutker/powerwallmon/internal/powerwall"
	"codeberg.org/mutker/powerwallmon/internal/telemetry"
)

type Config struct {
	Interval time.Duration
	Backoff  time.Duration
	DryRun   bool
}

// Monitor drives the poll-write lifecycle: connect to both external
// systems, run fetch-transform-write cycles on the configured interval,
// and on any failure drop the sessions, back off and reconnect. It is
// strictly sequential; the only suspension points are the interval
// sleep and the backoff delay, both interruptible via the context.
type Monitor struct {
	cfg      Config
	device   powerwall.Device
	recorder telemetry.Recorder
	journal  journal.Collector
	state    State
	now      func() time.Time
}

func New(cfg Config, device powerwall.Device, recorder telemetry.Recorder, journalCollector journal.Collector) *Monitor {
	return &Monitor{
		cfg:      cfg,
		device:   device,
		recorder: recorder,
		journal:  journalCollector,
		state:    StateDisconnected,
		now:      time.Now,
	}
}

// State returns the loop's current state
func (m *Monitor) State() State {
	return m.state
}

// Run executes the monitoring loop until the context is canceled. All
// runtime failures are absorbed at the cycle boundary; only an invalid
// configuration is returned as an error.
func (m *Monitor) Run(ctx context.Context) error {
	errFactory := errors.New()

	if m.cfg.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, m.cfg.Interval)
	}
	if m.cfg.Backoff <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, m.cfg.Backoff)
	}

	defer m.release()

	for ctx.Err() == nil {
		switch m.state {
		case StateDisconnected:
			m.transition(StateConnecting)

		case StateConnecting:
			if err := m.connect(ctx); err != nil {
				if ctx.Err() != nil {
					continue
				}
				m.fail(ctx, "connect", err)
				continue
			}
			m.transition(StatePolling)

		case StatePolling:
			if err := m.cycle(ctx); err != nil {
				if ctx.Err() != nil {
					continue
				}
				m.fail(ctx, "cycle", err)
				continue
			}
			m.wait(ctx, m.cfg.Interval)

		case StateBackingOff:
			if m.wait(ctx, m.cfg.Backoff) {
				m.transition(StateConnecting)
			}

		case StateTerminated:
			return nil
		}
	}

	m.transition(StateTerminated)

	return nil
}

// connect establishes both sessions. The device session comes first so
// a dead gateway never leaves a half-open database handle behind.
func (m *Monitor) connect(ctx context.Context) error {
	if err := m.device.Connect(ctx); err != nil {
		return err
	}

	if !m.cfg.DryRun {
		if err := m.recorder.Connect(ctx); err != nil {
			m.closeDevice()
			return err
		}
	}

	return nil
}

// cycle runs one fetch-transform-write iteration. The timestamp is
// captured before the fetch so both derived measurements stay
// time-consistent even when the fetch itself is slow.
func (m *Monitor) cycle(ctx context.Context) error {
	captured := m.now()

	reading, err := m.device.Fetch(ctx)
	if err != nil {
		return err
	}
	reading.Timestamp = captured

	if m.cfg.DryRun {
		logger.Info().
			Time("timestamp", reading.Timestamp).
			Float64("grid", reading.Grid).
			Float64("battery", reading.Battery).
			Float64("solar", reading.Solar).
			Float64("home", reading.Home).
			Float64("level", reading.Level).
			Msg("Dry run, skipping write")
	} else {
		if err := m.recorder.Record(ctx, &reading); err != nil {
			return err
		}

		logger.Info().
			Time("timestamp", reading.Timestamp).
			Float64("grid", reading.Grid).
			Float64("battery", reading.Battery).
			Float64("solar", reading.Solar).
			Float64("home", reading.Home).
			Float64("level", reading.Level).
			Msg("Recorded measurements")
	}

	m.recordOutcome(ctx, &journal.Entry{
		Timestamp: captured,
		State:     StatePolling.String(),
		Success:   true,
	})

	return nil
}

// fail absorbs a recoverable failure: log it, journal it, drop both
// sessions and enter backoff. The gateway session may have expired, so
// reconnecting from scratch is cheaper than diagnosing which side died.
func (m *Monitor) fail(ctx context.Context, step string, err error) {
	var domainErr errors.Error
	if errors.As(err, &domainErr) {
		logger.ErrorWithCode(domainErr).Str("step", step).Str("state", m.state.String()).Send()
	} else {
		logger.Error().Err(err).Str("step", step).Str("state", m.state.String()).Send()
	}

	m.release()
	m.transition(StateBackingOff)

	m.recordOutcome(ctx, &journal.Entry{
		Timestamp: m.now(),
		State:     StateBackingOff.String(),
		Success:   false,
		ErrorCode: string(errors.CodeOf(err)),
		Detail:    err.Error(),
	})
}

// wait sleeps for the given duration, returning early with false when
// the context is canceled.
func (m *Monitor) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (m *Monitor) recordOutcome(ctx context.Context, entry *journal.Entry) {
	if m.journal == nil {
		return
	}
	if err := m.journal.Record(ctx, entry); err != nil {
		logger.Warn().Err(err).Msg("Failed to journal cycle outcome")
	}
}

func (m *Monitor) transition(to State) {
	if m.state == to {
		return
	}
	logger.Debug().
		Str("from", m.state.String()).
		Str("to", to.String()).
		Msg("State transition")
	m.state = to
}

func (m *Monitor) closeDevice() {
	if err := m.device.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to release Powerwall session")
	}
}

// release drops both sessions; safe to call with none held
func (m *Monitor) release() {
	m.closeDevice()
	if err := m.recorder.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to release database session")
	}
}
