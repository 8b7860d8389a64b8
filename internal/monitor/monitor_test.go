package monitor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/powerwallmon/internal/errors"
	"codeberg.org/mutker/powerwallmon/internal/journal"
	"codeberg.org/mutker/powerwallmon/internal/monitor"
	"codeberg.org/mutker/powerwallmon/internal/powerwall"
	"codeberg.org/mutker/powerwallmon/internal/telemetry"
)

var errFactory = errors.New()

type fakeDevice struct {
	mu           sync.Mutex
	connectErrs  []error
	fetchErrs    []error
	reading      powerwall.Reading
	connectCalls int
	fetchCalls   int
	closeCalls   int
	fetchTimes   []time.Time
}

func (d *fakeDevice) Connect(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectCalls++
	if len(d.connectErrs) > 0 {
		err := d.connectErrs[0]
		d.connectErrs = d.connectErrs[1:]
		return err
	}
	return nil
}

func (d *fakeDevice) Fetch(_ context.Context) (powerwall.Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fetchCalls++
	d.fetchTimes = append(d.fetchTimes, time.Now())
	if len(d.fetchErrs) > 0 {
		err := d.fetchErrs[0]
		d.fetchErrs = d.fetchErrs[1:]
		if err != nil {
			return powerwall.Reading{}, err
		}
	}
	return d.reading, nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeCalls++
	return nil
}

func (d *fakeDevice) counts() (connects, fetches, closes int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connectCalls, d.fetchCalls, d.closeCalls
}

type fakeRecorder struct {
	mu           sync.Mutex
	connectErrs  []error
	recordErrs   []error
	readings     []powerwall.Reading
	connectCalls int
	closeCalls   int
	recorded     chan struct{}
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{recorded: make(chan struct{}, 64)}
}

func (r *fakeRecorder) Connect(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectCalls++
	if len(r.connectErrs) > 0 {
		err := r.connectErrs[0]
		r.connectErrs = r.connectErrs[1:]
		return err
	}
	return nil
}

func (r *fakeRecorder) Record(_ context.Context, reading *powerwall.Reading) error {
	r.mu.Lock()
	if len(r.recordErrs) > 0 {
		err := r.recordErrs[0]
		r.recordErrs = r.recordErrs[1:]
		if err != nil {
			r.mu.Unlock()
			return err
		}
	}
	r.readings = append(r.readings, *reading)
	r.mu.Unlock()
	r.recorded <- struct{}{}
	return nil
}

func (r *fakeRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeCalls++
	return nil
}

func (r *fakeRecorder) snapshot() []powerwall.Reading {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]powerwall.Reading(nil), r.readings...)
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (j *fakeJournal) Record(_ context.Context, entry *journal.Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, *entry)
	return nil
}

func (j *fakeJournal) Close() error { return nil }

func (j *fakeJournal) snapshot() []journal.Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]journal.Entry(nil), j.entries...)
}

func runMonitor(t *testing.T, m *monitor.Monitor, ctx context.Context) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not shut down in time")
		return nil
	}
}

func TestInvalidInterval(t *testing.T) {
	device := &fakeDevice{}
	recorder := newFakeRecorder()

	m := monitor.New(monitor.Config{Interval: 0, Backoff: time.Second}, device, recorder, nil)
	err := m.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid interval")

	connects, fetches, _ := device.counts()
	assert.Zero(t, connects, "no connection attempts on invalid configuration")
	assert.Zero(t, fetches, "no cycles on invalid configuration")
}

func TestCycleTimestampCapturedBeforeFetch(t *testing.T) {
	device := &fakeDevice{reading: powerwall.Reading{
		Grid: 1500.0, Battery: -800.0, Solar: 3000.0, Home: 2200.0, Level: 76.5,
	}}
	recorder := newFakeRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runMonitor(t, m(device, recorder, nil, time.Hour, time.Hour), ctx)

	select {
	case <-recorder.recorded:
	case <-time.After(2 * time.Second):
		t.Fatal("no reading recorded")
	}
	cancel()
	require.NoError(t, waitDone(t, done))

	readings := recorder.snapshot()
	require.Len(t, readings, 1)
	got := readings[0]

	assert.False(t, got.Timestamp.IsZero(), "reading must be stamped")
	device.mu.Lock()
	fetchTime := device.fetchTimes[0]
	device.mu.Unlock()
	assert.False(t, got.Timestamp.After(fetchTime), "timestamp must be captured before the fetch")

	assert.Equal(t, 1500.0, got.Grid)
	assert.Equal(t, -800.0, got.Battery)
	assert.Equal(t, 3000.0, got.Solar)
	assert.Equal(t, 2200.0, got.Home)
	assert.Equal(t, 76.5, got.Level)
}

func TestDeviceErrorSkipsWriteAndBacksOff(t *testing.T) {
	device := &fakeDevice{
		fetchErrs: []error{errFactory.New(powerwall.ErrFetchFailed)},
	}
	recorder := newFakeRecorder()
	journalSink := &fakeJournal{}

	// A failed cycle must retry after the short backoff, not the long interval.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runMonitor(t, m(device, recorder, journalSink, time.Hour, 20*time.Millisecond), ctx)

	select {
	case <-recorder.recorded:
	case <-time.After(2 * time.Second):
		t.Fatal("no reading recorded after backoff")
	}
	cancel()
	require.NoError(t, waitDone(t, done))

	device.mu.Lock()
	require.GreaterOrEqual(t, len(device.fetchTimes), 2)
	gap := device.fetchTimes[1].Sub(device.fetchTimes[0])
	device.mu.Unlock()
	assert.Less(t, gap, time.Second, "retry must follow the backoff delay, not the interval")

	readings := recorder.snapshot()
	require.Len(t, readings, 1, "the failed cycle must not produce a write")

	connects, _, closes := device.counts()
	assert.GreaterOrEqual(t, connects, 2, "sessions must be re-established after a failure")
	assert.GreaterOrEqual(t, closes, 1, "sessions must be dropped on failure")

	var sawFailure bool
	for _, entry := range journalSink.snapshot() {
		if !entry.Success {
			sawFailure = true
			assert.Equal(t, monitor.StateBackingOff.String(), entry.State)
			assert.Equal(t, string(powerwall.ErrFetchFailed), entry.ErrorCode)
		}
	}
	assert.True(t, sawFailure, "failed cycle must be journaled")
}

func TestAuthFailureRetriesIndefinitely(t *testing.T) {
	device := &fakeDevice{
		connectErrs: []error{
			errFactory.New(powerwall.ErrAuthFailed),
			errFactory.New(powerwall.ErrAuthFailed),
			errFactory.New(powerwall.ErrAuthFailed),
			errFactory.New(powerwall.ErrAuthFailed),
		},
	}
	recorder := newFakeRecorder()

	mon := m(device, recorder, nil, time.Hour, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runMonitor(t, mon, ctx)

	// All scripted failures consumed means Connecting was re-entered
	// after every backoff rather than terminating.
	require.Eventually(t, func() bool {
		connects, _, _ := device.counts()
		return connects >= 5
	}, 2*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, waitDone(t, done), "auth failures must never terminate the loop")
	assert.Equal(t, monitor.StateTerminated, mon.State())
}

func TestStorageErrorDropsSessionsAndRetries(t *testing.T) {
	device := &fakeDevice{}
	recorder := newFakeRecorder()
	recorder.recordErrs = []error{errFactory.New(telemetry.ErrWriteFailed)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runMonitor(t, m(device, recorder, nil, time.Hour, 10*time.Millisecond), ctx)

	select {
	case <-recorder.recorded:
	case <-time.After(2 * time.Second):
		t.Fatal("no successful write after storage failure")
	}
	cancel()
	require.NoError(t, waitDone(t, done))

	_, _, closes := device.counts()
	assert.GreaterOrEqual(t, closes, 1, "device session dropped after storage failure")
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	assert.GreaterOrEqual(t, recorder.connectCalls, 2, "database session re-established after storage failure")
}

func TestInterruptDuringSleepShutsDownPromptly(t *testing.T) {
	device := &fakeDevice{}
	recorder := newFakeRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	done := runMonitor(t, m(device, recorder, nil, time.Hour, time.Hour), ctx)

	select {
	case <-recorder.recorded:
	case <-time.After(2 * time.Second):
		t.Fatal("no reading recorded")
	}

	start := time.Now()
	cancel()
	require.NoError(t, waitDone(t, done))
	assert.Less(t, time.Since(start), time.Second, "shutdown must not wait out the interval")

	_, _, closes := device.counts()
	assert.GreaterOrEqual(t, closes, 1, "device session released on shutdown")
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	assert.GreaterOrEqual(t, recorder.closeCalls, 1, "database session released on shutdown")
}

func TestDryRunNeverWrites(t *testing.T) {
	device := &fakeDevice{reading: powerwall.Reading{Level: 50}}
	recorder := newFakeRecorder()

	mon := monitor.New(
		monitor.Config{Interval: 5 * time.Millisecond, Backoff: 5 * time.Millisecond, DryRun: true},
		device, recorder, nil,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runMonitor(t, mon, ctx)

	require.Eventually(t, func() bool {
		_, fetches, _ := device.counts()
		return fetches >= 2
	}, 2*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, waitDone(t, done))

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	assert.Zero(t, recorder.connectCalls, "dry run must not open a database session")
	assert.Empty(t, recorder.readings, "dry run must not write")
}

// m builds a monitor with test timings.
func m(device powerwall.Device, recorder telemetry.Recorder, journalSink journal.Collector, interval, backoff time.Duration) *monitor.Monitor {
	return monitor.New(monitor.Config{Interval: interval, Backoff: backoff}, device, recorder, journalSink)
}
