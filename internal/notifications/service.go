package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vidcast/internal/config"
)

const userAgent = "Vidcast-Go/0.1.0"

// Service defines the notification surface exposed to the scheduler and the
// account monitor.
type Service interface {
	NotifyTaskQueued(ctx context.Context, title string, priority string) error
	NotifyTaskCompleted(ctx context.Context, title, contentID string) error
	NotifyTaskFailed(ctx context.Context, title, reason string) error
	NotifyTaskCancelled(ctx context.Context, title string) error
	NotifyProgress(ctx context.Context, title string, percent int) error
	NotifyQueueDrained(ctx context.Context, completed, failed int, duration time.Duration) error
	NotifyAccountAlert(ctx context.Context, label, status, summary string) error
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
		endpoint:      topic,
		client:        &http.Client{Timeout: timeout},
		taskEvents:    cfg.Notifications.TaskEvents,
		accountAlerts: cfg.Notifications.AccountAlerts,
		progress:      cfg.Notifications.Progress,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint      string
	client        *http.Client
	taskEvents    bool
	accountAlerts bool
	progress      bool
}

func (n *ntfyService) NotifyTaskQueued(ctx context.Context, title, priority string) error {
	if !n.taskEvents {
		return nil
	}
	data := payload{
		title:   "Vidcast - Queued",
		message: fmt.Sprintf("Queued for upload: %s (%s priority)", strings.TrimSpace(title), priority),
		tags:    []string{"vidcast", "task", "queued"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyTaskCompleted(ctx context.Context, title, contentID string) error {
	if !n.taskEvents {
		return nil
	}
	message := fmt.Sprintf("Upload complete: %s", strings.TrimSpace(title))
	if contentID = strings.TrimSpace(contentID); contentID != "" {
		message = fmt.Sprintf("%s\nContent: %s", message, contentID)
	}
	data := payload{
		title:    "Vidcast - Complete",
		message:  message,
		tags:     []string{"vidcast", "task", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyTaskFailed(ctx context.Context, title, reason string) error {
	if !n.taskEvents {
		return nil
	}
	message := fmt.Sprintf("Upload failed: %s", strings.TrimSpace(title))
	if reason = strings.TrimSpace(reason); reason != "" {
		message = fmt.Sprintf("%s\n%s", message, reason)
	}
	data := payload{
		title:    "Vidcast - Failed",
		message:  message,
		tags:     []string{"vidcast", "task", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyTaskCancelled(ctx context.Context, title string) error {
	if !n.taskEvents {
		return nil
	}
	data := payload{
		title:   "Vidcast - Cancelled",
		message: fmt.Sprintf("Upload cancelled: %s", strings.TrimSpace(title)),
		tags:    []string{"vidcast", "task", "cancelled"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyProgress(ctx context.Context, title string, percent int) error {
	if !n.progress {
		return nil
	}
	data := payload{
		title:    "Vidcast - Progress",
		message:  fmt.Sprintf("%s: %d%% uploaded", strings.TrimSpace(title), percent),
		tags:     []string{"vidcast", "task", "progress"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyQueueDrained(ctx context.Context, completed, failed int, duration time.Duration) error {
	if !n.taskEvents {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	var title, message string
	if failed == 0 {
		title = "Vidcast - Queue Drained"
		message = fmt.Sprintf("Queue drained: %d uploads completed in %s", completed, duration)
	} else {
		title = "Vidcast - Queue Drained (with errors)"
		message = fmt.Sprintf("Queue drained: %d completed, %d failed in %s", completed, failed, duration)
	}

	data := payload{
		title:   title,
		message: message,
		tags:    []string{"vidcast", "queue", "drained"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyAccountAlert(ctx context.Context, label, status, summary string) error {
	if !n.accountAlerts {
		return nil
	}
	message := fmt.Sprintf("Account %s is %s", strings.TrimSpace(label), status)
	if summary = strings.TrimSpace(summary); summary != "" {
		message = fmt.Sprintf("%s\n%s", message, summary)
	}
	data := payload{
		title:    "Vidcast - Account Alert",
		message:  message,
		tags:     []string{"vidcast", "account", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Vidcast - Test",
		message:  "Notification system test",
		tags:     []string{"vidcast", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
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

func (noopService) NotifyTaskQueued(context.Context, string, string) error               { return nil }
func (noopService) NotifyTaskCompleted(context.Context, string, string) error            { return nil }
func (noopService) NotifyTaskFailed(context.Context, string, string) error               { return nil }
func (noopService) NotifyTaskCancelled(context.Context, string) error                    { return nil }
func (noopService) NotifyProgress(context.Context, string, int) error                    { return nil }
func (noopService) NotifyQueueDrained(context.Context, int, int, time.Duration) error    { return nil }
func (noopService) NotifyAccountAlert(context.Context, string, string, string) error     { return nil }
func (noopService) TestNotification(context.Context) error                               { return nil }
