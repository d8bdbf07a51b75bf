// Package alerts records alerts and fans them out to the live in-app hub and
// configured external delivery channels according to urgency.
package alerts

import (
	"context"
	"fmt"
	"log/slog"

	"amble/internal/config"
	"amble/internal/models"
)

// Channel is an external delivery path.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, recipient string, a *models.Alert) error
}

// Publisher is the pub/sub surface the redis channel needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	AlertChannel(userKey string) string
}

// BuildChannels turns the delivery config into channels, skipping disabled
// entries and redis channels when no publisher is available.
func BuildChannels(cfg *config.DeliveryConfig, pub Publisher) []Channel {
	if cfg == nil {
		return nil
	}
	var out []Channel
	for _, cc := range cfg.Channels {
		if cc.Disabled {
			continue
		}
		switch cc.Type {
		case "webhook":
			out = append(out, NewWebhookChannel(cc.Name, cc.URL, cc.Headers, cc.RatePerMinute))
		case "redis":
			if pub == nil {
				slog.Warn("redis delivery channel configured without redis, skipping", "channel", cc.Name)
				continue
			}
			out = append(out, &RedisChannel{name: cc.Name, pub: pub})
		case "log":
			out = append(out, &LogChannel{name: cc.Name})
		}
	}
	return out
}

// RedisChannel publishes alerts on amble:alerts:<userKey>.
type RedisChannel struct {
	name string
	pub  Publisher
}

func NewRedisChannel(name string, pub Publisher) *RedisChannel {
	return &RedisChannel{name: name, pub: pub}
}

func (c *RedisChannel) Name() string { return c.name }

func (c *RedisChannel) Deliver(ctx context.Context, recipient string, a *models.Alert) error {
	payload := map[string]interface{}{
		"recipient": recipient,
		"alert":     a,
	}
	if err := c.pub.Publish(ctx, c.pub.AlertChannel(a.UserKey), payload); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}

// LogChannel writes the alert as a structured log line.
type LogChannel struct {
	name string
}

func NewLogChannel(name string) *LogChannel { return &LogChannel{name: name} }

func (c *LogChannel) Name() string { return c.name }

func (c *LogChannel) Deliver(ctx context.Context, recipient string, a *models.Alert) error {
	slog.InfoContext(ctx, "family alert",
		"channel", c.name,
		"recipient", recipient,
		"user_key", a.UserKey,
		"urgency", string(a.Urgency),
		"category", a.Category,
		"message", a.Message)
	return nil
}
