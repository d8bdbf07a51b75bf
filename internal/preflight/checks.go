package preflight

import (
	"context"
	"fmt"
	"log"
	"time"

	"amble/internal/config"
	"amble/internal/store"
)

// CheckResult represents the result of a preflight check
type CheckResult struct {
	Name    string
	Status  string // "pass", "fail", "warning"
	Message string
	Error   error
}

// Checker verifies configuration and the record store before the companion starts serving.
type Checker struct {
	profiles store.ProfileStore
	cfg      *config.Config
}

// NewChecker creates a new preflight checker
func NewChecker(profiles store.ProfileStore, cfg *config.Config) *Checker {
	return &Checker{profiles: profiles, cfg: cfg}
}

// RunAll runs all preflight checks and returns results
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	log.Println("🔍 Running pre-flight checks...")

	results := []CheckResult{
		c.checkRecordStore(ctx),
		c.checkTimezone(),
		c.checkLanguageModel(),
		c.checkSemanticMemory(),
		c.checkDelivery(),
	}

	passed, failed, warnings := 0, 0, 0
	for _, result := range results {
		switch result.Status {
		case "pass":
			log.Printf("   ✅ %s: %s", result.Name, result.Message)
			passed++
		case "fail":
			log.Printf("   ❌ %s: %s", result.Name, result.Message)
			if result.Error != nil {
				log.Printf("      Error: %v", result.Error)
			}
			failed++
		case "warning":
			log.Printf("   ⚠️  %s: %s", result.Name, result.Message)
			warnings++
		}
	}

	log.Printf("📊 Pre-flight summary: %d passed, %d failed, %d warnings", passed, failed, warnings)
	return results
}

// HasFailures returns true if any check failed
func HasFailures(results []CheckResult) bool {
	for _, result := range results {
		if result.Status == "fail" {
			return true
		}
	}
	return false
}

func (c *Checker) checkRecordStore(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	keys, err := c.profiles.ListUserKeys(ctx)
	if err != nil {
		return CheckResult{
			Name:    "Record Store",
			Status:  "fail",
			Message: "Cannot read user profiles",
			Error:   err,
		}
	}
	return CheckResult{
		Name:    "Record Store",
		Status:  "pass",
		Message: fmt.Sprintf("%d user profile(s) stored", len(keys)),
	}
}

func (c *Checker) checkTimezone() CheckResult {
	if _, err := time.LoadLocation(c.cfg.DefaultTimezone); err != nil {
		return CheckResult{
			Name:    "Default Timezone",
			Status:  "warning",
			Message: fmt.Sprintf("Unknown timezone %q, scheduler will use UTC", c.cfg.DefaultTimezone),
			Error:   err,
		}
	}
	return CheckResult{
		Name:    "Default Timezone",
		Status:  "pass",
		Message: c.cfg.DefaultTimezone,
	}
}

func (c *Checker) checkLanguageModel() CheckResult {
	var keys int
	switch c.cfg.LLMProvider {
	case "", "gemini", "google":
		keys = len(c.cfg.GoogleAPIKeys)
	case "openai":
		if c.cfg.OpenAIAPIKey != "" {
			keys = 1
		}
	case "anthropic", "claude":
		if c.cfg.AnthropicAPIKey != "" {
			keys = 1
		}
	default:
		return CheckResult{
			Name:    "Language Model",
			Status:  "fail",
			Message: fmt.Sprintf("Unknown provider %q", c.cfg.LLMProvider),
		}
	}
	if keys == 0 {
		return CheckResult{
			Name:    "Language Model",
			Status:  "fail",
			Message: fmt.Sprintf("No API key configured for %s", c.cfg.LLMProvider),
		}
	}
	return CheckResult{
		Name:    "Language Model",
		Status:  "pass",
		Message: fmt.Sprintf("%s with %d key(s)", c.cfg.LLMProvider, keys),
	}
}

func (c *Checker) checkSemanticMemory() CheckResult {
	if c.cfg.SemanticMemory == "remote" && c.cfg.MemoryServiceURL == "" {
		return CheckResult{
			Name:    "Semantic Memory",
			Status:  "fail",
			Message: "SEMANTIC_MEMORY=remote requires MEMORY_SERVICE_URL",
		}
	}
	if c.cfg.SemanticMemory == "off" {
		return CheckResult{
			Name:    "Semantic Memory",
			Status:  "warning",
			Message: "Disabled, replies will not draw on earlier conversations",
		}
	}
	return CheckResult{
		Name:    "Semantic Memory",
		Status:  "pass",
		Message: c.cfg.SemanticMemory,
	}
}

func (c *Checker) checkDelivery() CheckResult {
	d, err := config.LoadDelivery(c.cfg.DeliveryFile)
	if err != nil {
		return CheckResult{
			Name:    "Alert Delivery",
			Status:  "warning",
			Message: "Delivery file is invalid, alerts are recorded but not sent externally",
			Error:   err,
		}
	}
	if len(d.Channels) == 0 {
		return CheckResult{
			Name:    "Alert Delivery",
			Status:  "warning",
			Message: "No external channels configured, alerts are in-app only",
		}
	}
	return CheckResult{
		Name:    "Alert Delivery",
		Status:  "pass",
		Message: fmt.Sprintf("%d channel(s), %d default recipient(s)", len(d.Channels), len(d.Recipients)),
	}
}
