package capture_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"timelapse/internal/capture"
	"timelapse/internal/config"
	"timelapse/internal/exposure"
	"timelapse/internal/ledger"
	"timelapse/internal/relay"
)

type fakeCamera struct {
	mu         sync.Mutex
	configured []capture.Format
	applied    []capture.Exposure
	focus      int
	captures   int
	failNext   int
	payload    []byte
	closed     bool
}

func (c *fakeCamera) Configure(_ context.Context, f capture.Format) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configured = append(c.configured, f)
	return nil
}

func (c *fakeCamera) Apply(e capture.Exposure) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applied = append(c.applied, e)
	return nil
}

func (c *fakeCamera) Autofocus(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.focus++
	return nil
}

func (c *fakeCamera) Capture(context.Context, capture.Encoding) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext > 0 {
		c.failNext--
		return nil, errors.New("select timeout")
	}
	c.captures++
	return c.payload, nil
}

func (c *fakeCamera) Close() error {
	c.closed = true
	return nil
}

type scriptedMeter struct {
	values []float64
	err    error
	i      int
}

func (m *scriptedMeter) Brightness([]byte) (float64, error) {
	if m.err != nil {
		return 0, m.err
	}
	v := m.values[min(m.i, len(m.values)-1)]
	m.i++
	return v, nil
}

// fakeClock advances on every Sleep and cancels after a number of sleeps.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
	limit  int
	cancel context.CancelFunc
	hook   func(n int)
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	if c.hook != nil {
		c.hook(len(c.sleeps))
	}
	if len(c.sleeps) >= c.limit {
		c.cancel()
	}
	return ctx.Err()
}

func settings(resolution *string) func() capture.Settings {
	return func() capture.Settings {
		cfg := config.Default()
		cfg.Capture.Resolution = *resolution
		cfg.Capture.IntervalSeconds = 5
		return capture.SettingsFromConfig(&cfg)
	}
}

func runProducer(t *testing.T, cam *fakeCamera, meter capture.Meter, q *relay.Queue, resolution *string, cycles int, hook func(*capture.Producer, int)) (*capture.Producer, *fakeClock, []ledger.Event) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), limit: cycles, cancel: cancel}
	var events []ledger.Event
	p, err := capture.NewProducer(capture.Options{
		DeviceID: "01",
		Camera:   cam,
		Meter:    meter,
		Queue:    q,
		Settings: settings(resolution),
		Sink:     ledger.SinkFunc(func(_ context.Context, ev ledger.Event) { events = append(events, ev) }),
		Now:      clock.Now,
		Sleep:    clock.Sleep,
	})
	if err != nil {
		t.Fatalf("NewProducer: %v", err)
	}
	if hook != nil {
		clock.hook = func(n int) { hook(p, n) }
	}
	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return p, clock, events
}

func TestProducerEnqueuesAndPacesCycles(t *testing.T) {
	cam := &fakeCamera{payload: []byte{0xFF, 0xD8}}
	res := "FHD"
	q := relay.New(10)
	_, clock, events := runProducer(t, cam, &scriptedMeter{values: []float64{64}}, q, &res, 3, nil)

	if q.Len() != 3 {
		t.Fatalf("queued %d, want 3", q.Len())
	}
	if len(cam.configured) != 1 || cam.configured[0] != (capture.Format{Width: 1920, Height: 1080}) {
		t.Fatalf("configured %+v", cam.configured)
	}
	for _, d := range clock.sleeps {
		if d != 5*time.Second {
			t.Fatalf("sleep %s, want interval", d)
		}
	}
	for _, ev := range events {
		if ev.Kind != ledger.KindCaptured {
			t.Fatalf("unexpected event %+v", ev)
		}
	}
	if !cam.closed {
		t.Fatal("camera not closed on exit")
	}
}

func TestProducerCapturesBeforeFirstWait(t *testing.T) {
	cam := &fakeCamera{payload: []byte{0xFF, 0xD8}}
	res := "VGA"
	q := relay.New(4)
	queuedAtSleep := make([]int, 0, 2)
	runProducer(t, cam, &scriptedMeter{values: []float64{64}}, q, &res, 2, func(*capture.Producer, int) {
		queuedAtSleep = append(queuedAtSleep, q.Len())
	})
	if len(queuedAtSleep) != 2 || queuedAtSleep[0] != 1 || queuedAtSleep[1] != 2 {
		t.Fatalf("queue length at each sleep %v, want [1 2]", queuedAtSleep)
	}
}

func TestProducerDropsWhenQueueFull(t *testing.T) {
	cam := &fakeCamera{payload: []byte{0xFF, 0xD8}}
	res := "VGA"
	q := relay.New(2)
	p, _, events := runProducer(t, cam, &scriptedMeter{values: []float64{64}}, q, &res, 3, nil)

	captured, dropped := p.Counts()
	if captured != 2 || dropped != 1 || q.Len() != 2 {
		t.Fatalf("captured=%d dropped=%d queued=%d", captured, dropped, q.Len())
	}
	if events[2].Kind != ledger.KindDropped {
		t.Fatalf("third event %+v, want dropped", events[2])
	}
}

func TestProducerBacksOffOnCaptureError(t *testing.T) {
	cam := &fakeCamera{payload: []byte{0xFF, 0xD8}, failNext: 1}
	res := "VGA"
	q := relay.New(4)
	_, clock, _ := runProducer(t, cam, &scriptedMeter{values: []float64{64}}, q, &res, 2, nil)

	if clock.sleeps[0] != 2*time.Second {
		t.Fatalf("first sleep %s, want 2s backoff", clock.sleeps[0])
	}
	if len(cam.configured) != 2 {
		t.Fatalf("expected reconfigure after capture error, got %d", len(cam.configured))
	}
	if q.Len() != 1 {
		t.Fatalf("queued %d, want 1", q.Len())
	}
}

func TestProducerManualModeExtendsWait(t *testing.T) {
	cam := &fakeCamera{payload: []byte{0xFF, 0xD8}}
	res := "VGA"
	// Dark scene: switch to manual, then keep asking for more exposure.
	meter := &scriptedMeter{values: []float64{10, 1, 1, 1, 1, 1, 1, 1, 1, 1}}
	p, clock, _ := runProducer(t, cam, meter, relay.New(32), &res, 10, nil)

	st := p.Exposure()
	if st.Mode != exposure.Manual {
		t.Fatalf("mode %v, want manual", st.Mode)
	}
	last := clock.sleeps[len(clock.sleeps)-1]
	want := time.Duration(st.ExposureSeconds * float64(time.Second))
	if want > 5*time.Second && last != want {
		t.Fatalf("last sleep %s, want exposure-bound %s", last, want)
	}
	manual := 0
	for _, e := range cam.applied {
		if e.Mode == exposure.Manual {
			manual++
			if e.Gain != 16 {
				t.Fatalf("manual gain %v", e.Gain)
			}
		}
	}
	if manual == 0 {
		t.Fatal("manual exposure never applied")
	}
}

func TestProducerReconfiguresOnResolutionChangeAndHotplug(t *testing.T) {
	cam := &fakeCamera{payload: []byte{0xFF, 0xD8}}
	res := "VGA"
	meter := &scriptedMeter{values: []float64{10, 1, 1, 1, 1, 1}}
	p, _, _ := runProducer(t, cam, meter, relay.New(32), &res, 6, func(p *capture.Producer, n int) {
		switch n {
		case 2:
			res = "UXGA"
		case 4:
			p.RequestReconfigure()
		}
	})
	if len(cam.configured) != 3 {
		t.Fatalf("configured %d times, want 3: %+v", len(cam.configured), cam.configured)
	}
	if cam.configured[1] != (capture.Format{Width: 1600, Height: 1200}) {
		t.Fatalf("second format %+v", cam.configured[1])
	}
	if st := p.Exposure(); st.Mode != exposure.Manual || st.ExposureSeconds > 0.25*1.9*1.9+1e-9 {
		t.Fatalf("exposure state %+v not reset by last reconfigure", st)
	}
}

func TestProducerBrightnessFailureFailsOpen(t *testing.T) {
	cam := &fakeCamera{payload: []byte{0xFF, 0xD8}}
	res := "VGA"
	p, _, _ := runProducer(t, cam, &scriptedMeter{err: errors.New("decode")}, relay.New(8), &res, 4, nil)
	if p.Exposure().Mode != exposure.Auto {
		t.Fatal("decode failures must not push the controller into manual")
	}
}
