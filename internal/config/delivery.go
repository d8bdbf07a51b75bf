package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// DeliveryConfig lists the external alert channels and default recipients.
//
//	channels:
//	  - name: family-webhook
//	    type: webhook
//	    url: https://example.org/hooks/amble
//	    rate_per_minute: 6
//	  - name: family-pubsub
//	    type: redis
//	recipients:
//	  - family:primary
type DeliveryConfig struct {
	Channels   []ChannelConfig `yaml:"channels"`
	Recipients []string        `yaml:"recipients"`
}

// ChannelConfig describes one external delivery channel.
type ChannelConfig struct {
	Name          string            `yaml:"name"`
	Type          string            `yaml:"type"` // webhook, redis, log
	URL           string            `yaml:"url,omitempty"`
	Headers       map[string]string `yaml:"headers,omitempty"`
	RatePerMinute int               `yaml:"rate_per_minute,omitempty"`
	Disabled      bool              `yaml:"disabled,omitempty"`
}

// LoadDelivery reads the delivery YAML file. A missing file yields an empty config.
func LoadDelivery(filePath string) (*DeliveryConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &DeliveryConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read delivery file: %w", err)
	}

	var cfg DeliveryConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse delivery YAML: %w", err)
	}

	for i, ch := range cfg.Channels {
		if ch.Name == "" {
			return nil, fmt.Errorf("channel %d: name is required", i)
		}
		switch ch.Type {
		case "webhook":
			if ch.URL == "" {
				return nil, fmt.Errorf("channel %s: url is required for webhook", ch.Name)
			}
		case "redis", "log":
		default:
			return nil, fmt.Errorf("channel %s: unknown type %q", ch.Name, ch.Type)
		}
	}
	return &cfg, nil
}

// WatchDelivery reloads the delivery file on change and hands the result to onChange.
// It blocks until ctx is done.
func WatchDelivery(ctx context.Context, filePath string, onChange func(*DeliveryConfig)) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("⚠️  Failed to create file watcher: %v", err)
		return
	}
	defer watcher.Close()

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		log.Printf("⚠️  Failed to get absolute path for %s: %v", filePath, err)
		return
	}

	// Watch the directory; editors replace files rather than writing in place.
	dir := filepath.Dir(absPath)
	filename := filepath.Base(absPath)
	if err := watcher.Add(dir); err != nil {
		log.Printf("⚠️  Failed to watch directory %s: %v", dir, err)
		return
	}

	log.Printf("👁️  Watching %s for changes (hot-reload enabled)", filePath)

	var debounceTimer *time.Timer
	debounceDuration := 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDuration, func() {
				cfg, err := LoadDelivery(filePath)
				if err != nil {
					log.Printf("❌ Failed to reload %s: %v", filePath, err)
					return
				}
				log.Printf("🔄 Reloaded delivery channels from %s (%d channels)", filePath, len(cfg.Channels))
				onChange(cfg)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  File watcher error: %v", err)
		}
	}
}
