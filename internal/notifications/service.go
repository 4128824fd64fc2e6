package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"vidqueue/internal/config"
)

const userAgent = "vidqueue/0.1"

// Event identifies a notification type.
type Event string

const (
	EventJobCompleted Event = "job_completed"
	EventJobFailed    Event = "job_failed"
	EventTest         Event = "test"
)

// Payload carries event fields; keys depend on the event.
type Payload map[string]string

// Service publishes notification events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// Enabled reports whether cfg configures a notification topic.
func Enabled(cfg *config.Config) bool {
	return cfg != nil && cfg.Notifications.NtfyTopic != ""
}

// NewService builds an ntfy publisher, or a no-op one when no topic is set.
func NewService(cfg *config.Config) Service {
	if !Enabled(cfg) {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: cfg.Notifications.NtfyTopic,
		client:   &http.Client{Timeout: timeout},
		success:  cfg.Notifications.NotifySuccess,
		failure:  cfg.Notifications.NotifyFailure,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	success  bool
	failure  bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	input := strings.TrimSpace(payload["input"])
	name := filepath.Base(input)
	switch event {
	case EventJobCompleted:
		if !n.success {
			return message{}, false
		}
		body := fmt.Sprintf("✅ Encoded: %s", name)
		if output := strings.TrimSpace(payload["output"]); output != "" {
			body += "\nOutput: " + output
		}
		if elapsed := strings.TrimSpace(payload["elapsed"]); elapsed != "" {
			body += "\nTook: " + elapsed
		}
		return message{
			title: "vidqueue - Encoded",
			body:  body,
			tags:  []string{"vidqueue", "encode", "completed"},
		}, true
	case EventJobFailed:
		if !n.failure {
			return message{}, false
		}
		reason := strings.TrimSpace(payload["error"])
		if reason == "" {
			reason = "unknown error"
		}
		return message{
			title:    "vidqueue - Encode Failed",
			body:     fmt.Sprintf("❌ Failed: %s\n%s", name, reason),
			tags:     []string{"vidqueue", "encode", "failed"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "vidqueue - Test",
			body:     "🧪 Notification test",
			tags:     []string{"vidqueue", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" {
		req.Header.Set("Priority", msg.priority)
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

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
