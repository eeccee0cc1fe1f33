package daemon_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"timelapse/internal/capture"
	"timelapse/internal/collector"
	"timelapse/internal/config"
	"timelapse/internal/daemon"
	"timelapse/internal/ledger"
	"timelapse/internal/overflow"
	"timelapse/internal/testsupport"
	"timelapse/internal/uploader"
)

type frameCamera struct {
	mu    sync.Mutex
	frame []byte
}

func (c *frameCamera) Configure(context.Context, capture.Format) error { return nil }
func (c *frameCamera) Apply(capture.Exposure) error                    { return nil }
func (c *frameCamera) Autofocus(context.Context) error                 { return nil }
func (c *frameCamera) Close() error                                    { return nil }

func (c *frameCamera) Capture(context.Context, capture.Encoding) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame, nil
}

type constMeter float64

func (m constMeter) Brightness([]byte) (float64, error) { return float64(m), nil }

func plentyOfSpace(string) (overflow.Usage, error) {
	return overflow.Usage{Total: 1 << 30, Free: 1 << 29}, nil
}

func newDaemon(t *testing.T, serverURL string) (*daemon.Daemon, *config.Config, *ledger.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t,
		testsupport.WithServerURL(serverURL),
		testsupport.WithCollectorDevice("01", "test-token", 1),
	)
	// one capture per second keeps names unique
	cfg.Capture.IntervalSeconds = 1
	cfg.Startup.NetworkWaitSeconds = 1
	cfg.Startup.CheckIntervalSeconds = 1
	cfg.Overflow.SweepIntervalSeconds = 1
	led := testsupport.MustOpenLedger(t, cfg)

	d, err := daemon.New(config.NewLive(cfg, ""), nil, daemon.Dependencies{
		Camera:   &frameCamera{frame: testsupport.JPEG(t, 90)},
		Meter:    constMeter(64),
		Uploader: uploader.New(cfg, nil),
		Prober:   uploader.New(cfg, nil),
		Ledger:   led,
		Usage:    plentyOfSpace,
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d, cfg, led
}

func TestDaemonDeliversToCollector(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithCollectorDevice("01", "test-token", 1))
	srv, err := collector.New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	d, dcfg, led := newDaemon(t, ts.URL)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected second start to fail")
	}
	if _, err := daemon.AcquireLock(dcfg); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected lock to be held, got %v", err)
	}

	uploadDir := filepath.Join(cfg.Collector.UploadDir, "01")
	deadline := time.Now().Add(10 * time.Second)
	for {
		entries, _ := os.ReadDir(uploadDir)
		if len(entries) >= 2 && !d.Status().Degraded {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected deliveries, have %d (status %+v)", len(entries), d.Status())
		}
		time.Sleep(50 * time.Millisecond)
	}

	st := d.Status()
	if !st.Running || st.Captured < 2 || st.QueueCap != dcfg.Delivery.QueueCapacity {
		t.Fatalf("unexpected status %+v", st)
	}
	d.Stop()
	if d.Status().Running {
		t.Fatal("expected stopped")
	}
	if locked, err := daemon.Locked(dcfg); err != nil || locked {
		t.Fatalf("lock not released: locked=%v err=%v", locked, err)
	}

	summary, err := led.Summary(context.Background(), time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Counts[ledger.KindCaptured] < 2 || summary.Counts[ledger.KindDelivered] < 2 {
		t.Fatalf("ledger summary %+v", summary.Counts)
	}
}

func TestDaemonBuffersWhileCollectorDown(t *testing.T) {
	ts := httptest.NewServer(nil)
	url := ts.URL
	ts.Close()

	d, cfg, _ := newDaemon(t, url)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(10 * time.Second)
	for d.Status().Pending < 1 {
		if time.Now().After(deadline) {
			t.Fatalf("nothing buffered: %+v", d.Status())
		}
		time.Sleep(50 * time.Millisecond)
	}
	if !d.Status().Degraded {
		t.Fatal("expected degraded while collector is down")
	}
	d.Stop()

	entries, err := os.ReadDir(cfg.OverflowDir())
	if err != nil || len(entries) == 0 {
		t.Fatalf("overflow dir empty after stop: %v", err)
	}
}

func TestNewRequiresAdapters(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := daemon.New(config.NewLive(cfg, ""), nil, daemon.Dependencies{}); err == nil {
		t.Fatal("expected error without adapters")
	}
}
