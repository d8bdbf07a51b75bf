package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"amble/internal/config"
	"amble/internal/models"
	"amble/internal/store"
)

type fakeProfiles struct {
	keys []string
	err  error
}

func (f *fakeProfiles) GetProfile(context.Context, string) (*models.UserProfile, error) {
	return nil, errors.New("unused")
}
func (f *fakeProfiles) UpsertProfile(context.Context, *models.UserProfile) error { return nil }
func (f *fakeProfiles) UpdateProfileFields(context.Context, string, store.ProfileUpdate) (*models.UserProfile, error) {
	return nil, store.ErrNotFound
}
func (f *fakeProfiles) ListUserKeys(context.Context) ([]string, error)           { return f.keys, f.err }

func baseConfig(t *testing.T) *config.Config {
	return &config.Config{
		DefaultTimezone: "Asia/Kolkata",
		LLMProvider:     "gemini",
		GoogleAPIKeys:   []string{"k1", "k2"},
		SemanticMemory:  "local",
		DeliveryFile:    filepath.Join(t.TempDir(), "delivery.yaml"),
	}
}

func statusOf(results []CheckResult, name string) string {
	for _, r := range results {
		if r.Name == name {
			return r.Status
		}
	}
	return ""
}

func TestRunAll_Healthy(t *testing.T) {
	cfg := baseConfig(t)
	yaml := "channels:\n  - name: family\n    type: log\nrecipients:\n  - family:primary\n"
	if err := os.WriteFile(cfg.DeliveryFile, []byte(yaml), 0o644); err != nil {
		t.Fatalf("Failed to write delivery file: %v", err)
	}

	results := NewChecker(&fakeProfiles{keys: []string{"asha"}}, cfg).RunAll(context.Background())
	if HasFailures(results) {
		t.Fatalf("Expected no failures, got %+v", results)
	}
	for _, r := range results {
		if r.Status != "pass" {
			t.Errorf("Expected %s to pass, got %s (%s)", r.Name, r.Status, r.Message)
		}
	}
}

func TestRunAll_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config, *fakeProfiles)
		check  string
		want   string
	}{
		{"store unreachable", func(_ *config.Config, p *fakeProfiles) { p.err = errors.New("disk I/O error") }, "Record Store", "fail"},
		{"no model keys", func(c *config.Config, _ *fakeProfiles) { c.GoogleAPIKeys = nil }, "Language Model", "fail"},
		{"unknown provider", func(c *config.Config, _ *fakeProfiles) { c.LLMProvider = "llama" }, "Language Model", "fail"},
		{"remote memory without url", func(c *config.Config, _ *fakeProfiles) { c.SemanticMemory = "remote" }, "Semantic Memory", "fail"},
		{"bad timezone", func(c *config.Config, _ *fakeProfiles) { c.DefaultTimezone = "Mars/Olympus" }, "Default Timezone", "warning"},
		{"no delivery file", func(*config.Config, *fakeProfiles) {}, "Alert Delivery", "warning"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig(t)
			profiles := &fakeProfiles{}
			tt.mutate(cfg, profiles)

			results := NewChecker(profiles, cfg).RunAll(context.Background())
			if got := statusOf(results, tt.check); got != tt.want {
				t.Errorf("Expected %s status %q, got %q", tt.check, tt.want, got)
			}
		})
	}
}
