package alerts

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"amble/internal/config"
	"amble/internal/models"
	"amble/internal/store"
	"amble/internal/telemetry"
)

// Router is the only writer of Alert records.
type Router struct {
	alerts   store.AlertStore
	profiles store.ProfileStore
	hub      *Hub
	metrics  *telemetry.Metrics
	timeout  time.Duration
	now      func() time.Time

	mu         sync.RWMutex
	channels   []Channel
	recipients []string

	wg sync.WaitGroup
}

// RouterOptions wires the optional router collaborators.
type RouterOptions struct {
	Hub             *Hub
	Metrics         *telemetry.Metrics
	DeliveryTimeout time.Duration
}

// NewRouter creates a router writing to alerts and reading recipients from profiles.
func NewRouter(alerts store.AlertStore, profiles store.ProfileStore, opts RouterOptions) *Router {
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = 10 * time.Second
	}
	return &Router{
		alerts:   alerts,
		profiles: profiles,
		hub:      opts.Hub,
		metrics:  opts.Metrics,
		timeout:  opts.DeliveryTimeout,
		now:      time.Now,
	}
}

// SetChannels replaces the external channels and default recipients. It is
// called at startup and on every delivery config reload.
func (r *Router) SetChannels(channels []Channel, recipients []string) {
	r.mu.Lock()
	r.channels = append([]Channel(nil), channels...)
	r.recipients = append([]string(nil), recipients...)
	r.mu.Unlock()

	names := make([]string, len(channels))
	for i, c := range channels {
		names[i] = c.Name()
	}
	log.Printf("✅ [ALERT-ROUTER] %d delivery channel(s) active: %s", len(channels), strings.Join(names, ", "))
}

// ApplyDelivery rebuilds channels from a delivery config.
func (r *Router) ApplyDelivery(cfg *config.DeliveryConfig, pub Publisher) {
	if cfg == nil {
		cfg = &config.DeliveryConfig{}
	}
	r.SetChannels(BuildChannels(cfg, pub), cfg.Recipients)
}

// Route records the alert, publishes it live and starts external delivery.
// delivered reports whether the record was written; external delivery
// outcomes never reach the caller.
func (r *Router) Route(ctx context.Context, userKey, message string, urgency models.Urgency, category string) (bool, *models.Alert, error) {
	if strings.TrimSpace(message) == "" {
		return false, nil, fmt.Errorf("alert message is required")
	}
	if _, err := models.ParseUrgency(string(urgency)); err != nil {
		return false, nil, err
	}
	if category == "" {
		category = models.AlertCategoryWellness
	}

	a := &models.Alert{
		ID:        uuid.New().String(),
		UserKey:   userKey,
		Message:   message,
		Urgency:   urgency,
		Category:  category,
		CreatedAt: r.now().UTC(),
	}
	if err := r.alerts.AddAlert(ctx, a); err != nil {
		return false, nil, fmt.Errorf("failed to record alert: %w", err)
	}
	if r.metrics != nil {
		r.metrics.AlertsRouted.WithLabelValues(string(urgency), category).Inc()
	}

	if r.hub != nil {
		r.hub.Publish(a)
	}

	targets := r.targets(urgency)
	if len(targets) == 0 {
		return true, a, nil
	}

	recipients := r.recipientsFor(ctx, userKey)
	deliveryCtx := context.WithoutCancel(ctx)
	for _, ch := range targets {
		r.wg.Add(1)
		go r.deliver(deliveryCtx, ch, recipients, a)
	}
	return true, a, nil
}

// targets picks external channels by urgency: none for low, the first for
// medium, all for high and critical.
func (r *Router) targets(urgency models.Urgency) []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.channels) == 0 {
		return nil
	}
	switch urgency {
	case models.UrgencyLow:
		return nil
	case models.UrgencyMedium:
		return r.channels[:1]
	default:
		return append([]Channel(nil), r.channels...)
	}
}

func (r *Router) recipientsFor(ctx context.Context, userKey string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	if r.profiles != nil {
		if p, err := r.profiles.GetProfile(ctx, userKey); err == nil {
			add(p.String(models.PrefEmergencyPhone))
			for _, fam := range p.StringList(models.PrefFamilyRecipients) {
				add(fam)
			}
		}
	}

	r.mu.RLock()
	for _, d := range r.recipients {
		add(d)
	}
	r.mu.RUnlock()

	if len(out) == 0 {
		out = []string{"family:" + userKey}
	}
	return out
}

func (r *Router) deliver(ctx context.Context, ch Channel, recipients []string, a *models.Alert) {
	defer r.wg.Done()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	for _, rcpt := range recipients {
		result := "success"
		if err := ch.Deliver(ctx, rcpt, a); err != nil {
			result = "error"
			log.Printf("⚠️ [ALERT-ROUTER] Delivery via %s to %s failed for alert %s: %v", ch.Name(), rcpt, a.ID, err)
		}
		if r.metrics != nil {
			r.metrics.AlertDeliveries.WithLabelValues(ch.Name(), result).Inc()
		}
	}
}

// Wait blocks until in-flight external deliveries finish.
func (r *Router) Wait() {
	r.wg.Wait()
}
