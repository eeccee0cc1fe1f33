package notifications

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"timelapse/internal/config"
	"timelapse/internal/delivery"
	"timelapse/internal/logging"
)

const userAgent = "timelapse/0.1.0"

// Service defines the notification surface used by the daemon.
type Service interface {
	NotifyDegraded(ctx context.Context, deviceID, reason string) error
	NotifyRecovered(ctx context.Context, deviceID, reason string, downtime time.Duration) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyDegraded(ctx context.Context, deviceID, reason string) error {
	message := fmt.Sprintf("⚠️ Camera %s cannot reach the collector; buffering captures on disk", strings.TrimSpace(deviceID))
	if reason = strings.TrimSpace(reason); reason != "" {
		message += "\n" + reason
	}
	return n.send(ctx, payload{
		title:    "Timelapse - Delivery Degraded",
		message:  message,
		tags:     []string{"timelapse", "delivery", "degraded"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyRecovered(ctx context.Context, deviceID, reason string, downtime time.Duration) error {
	downtime = max(downtime.Round(time.Second), 0)
	message := fmt.Sprintf("✅ Camera %s delivering again after %s", strings.TrimSpace(deviceID), downtime)
	if reason = strings.TrimSpace(reason); reason != "" {
		message += "\n" + reason
	}
	return n.send(ctx, payload{
		title:   "Timelapse - Delivery Recovered",
		message: message,
		tags:    []string{"timelapse", "delivery", "recovered"},
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Timelapse - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"timelapse", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyDegraded(context.Context, string, string) error { return nil }
func (noopService) NotifyRecovered(context.Context, string, string, time.Duration) error {
	return nil
}
func (noopService) TestNotification(context.Context) error { return nil }

// Observer adapts svc to delivery state transitions. Notifications are sent
// on their own goroutine so a slow ntfy server never stalls a worker.
// Recovery from the initial degraded state at startup is not announced.
func Observer(ctx context.Context, svc Service, deviceID string, logger *slog.Logger) delivery.Observer {
	logger = logging.NewComponentLogger(logger, "notifications")
	var (
		mu        sync.Mutex
		enteredAt time.Time
	)
	return func(tr delivery.Transition) {
		var send func(context.Context) error
		mu.Lock()
		if tr.Degraded {
			enteredAt = tr.At
			send = func(ctx context.Context) error { return svc.NotifyDegraded(ctx, deviceID, tr.Reason) }
		} else if !enteredAt.IsZero() {
			downtime := tr.At.Sub(enteredAt)
			send = func(ctx context.Context) error { return svc.NotifyRecovered(ctx, deviceID, tr.Reason, downtime) }
		}
		mu.Unlock()
		if send == nil {
			return
		}
		go func() {
			if err := send(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("notification failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "notification_failed"),
					logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
				)
			}
		}()
	}
}
