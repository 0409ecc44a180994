package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"butler/internal/config"
)

const userAgent = "Butler/0.1.0"

// Event identifies one notification kind.
type Event string

const (
	// EventRuleRunCompleted is one finished rule execution, scheduled or
	// manual. Payload: rule, summary, status ("success"/"failure"),
	// trigger ("scheduled"/"manual").
	EventRuleRunCompleted Event = "rule_run_completed"
	// EventBatchCompleted is one finished multi-rule batch. Payload:
	// scope, total, failed, duration.
	EventBatchCompleted Event = "batch_completed"
	// EventFailure is an operational failure outside a single run.
	// Payload: context, error.
	EventFailure Event = "failure"
	// EventTest verifies the delivery path end to end.
	EventTest Event = "test"
)

// Payload carries an event's preformatted template fields.
type Payload map[string]string

// Service is the notification surface the daemon and scheduler publish to.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when a topic
// is configured, a noop otherwise.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	endpoint := strings.TrimRight(cfg.Notifications.NtfyURL, "/") + "/" + topic
	timeout := time.Duration(cfg.Notifications.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: endpoint,
		name:     cfg.Notifications.ButlerName,
		settings: cfg.Notifications,
		client:   &http.Client{Timeout: timeout},
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
	name     string
	settings config.Notifications
	client   *http.Client
}

// Publish formats and sends one event, or silently drops it when its
// config switch is off.
func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled(event) {
		return nil
	}
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) enabled(event Event) bool {
	switch event {
	case EventRuleRunCompleted:
		return n.settings.NotifyRunSummaries
	case EventBatchCompleted:
		return n.settings.NotifyRunAllSummaries
	case EventFailure:
		return n.settings.NotifyFailures
	case EventTest:
		return true
	}
	return false
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	get := func(key string) string { return strings.TrimSpace(payload[key]) }

	switch event {
	case EventRuleRunCompleted:
		rule := get("rule")
		summary := get("summary")
		if get("status") == "failure" {
			return message{
				title:    n.name + " - Rule Failed",
				body:     fmt.Sprintf("❌ %s: %s", rule, summary),
				tags:     []string{"butler", "rule", "failed"},
				priority: "high",
			}, true
		}
		return message{
			title: n.name + " - Rule Complete",
			body:  fmt.Sprintf("✅ %s: %s", rule, summary),
			tags:  []string{"butler", "rule", "completed"},
		}, true
	case EventBatchCompleted:
		scope := get("scope")
		total := get("total")
		failed := get("failed")
		duration := get("duration")
		if failed == "" || failed == "0" {
			return message{
				title: n.name + " - Batch Complete",
				body:  fmt.Sprintf("Batch complete (%s): %s rules in %s", scope, total, duration),
				tags:  []string{"butler", "batch", "completed"},
			}, true
		}
		return message{
			title: n.name + " - Batch Complete (with errors)",
			body:  fmt.Sprintf("Batch complete (%s): %s of %s rules failed in %s", scope, failed, total, duration),
			tags:  []string{"butler", "batch", "failed"},
		}, true
	case EventFailure:
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if contextLabel := get("context"); contextLabel != "" {
			builder.WriteString(" with ")
			builder.WriteString(contextLabel)
		}
		builder.WriteString(": ")
		if detail := get("error"); detail != "" {
			builder.WriteString(detail)
		} else {
			builder.WriteString("unknown")
		}
		return message{
			title:    n.name + " - Error",
			body:     builder.String(),
			tags:     []string{"butler", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    n.name + " - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"butler", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

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
	if msg.priority != "" && msg.priority != "default" {
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
