package bootstrap

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amble/internal/config"
	"amble/internal/memory"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		DatabaseURL:       filepath.Join(dir, "amble.db"),
		JobStateMode:      "sql",
		SemanticMemory:    "local",
		MemoryTopK:        5,
		LLMProvider:       "gemini",
		SessionTTL:        time.Hour,
		DefaultTimezone:   "Asia/Kolkata",
		SchedulerTick:     time.Minute,
		SchedulerGrace:    time.Hour,
		DeliveryFile:      filepath.Join(dir, "missing-delivery.yaml"),
		DeliveryTimeout:   time.Second,
		MaxToolIterations: 6,
		TurnTimeout:       time.Minute,
	}
}

func TestBuildWithoutModel(t *testing.T) {
	app, err := Build(context.Background(), testConfig(t), Options{})
	require.NoError(t, err)
	defer app.Close()

	assert.Nil(t, app.Turns, "no API keys means no conversation engine")
	assert.Equal(t, 18, app.Registry.Count())
	assert.Len(t, app.Scheduler.GetStatus(), 6)
	assert.Nil(t, app.Publisher())
	_, isFTS := app.Semantic.(*memory.FTSIndex)
	assert.True(t, isFTS, "sqlite store hosts the local memory index")
}

func TestBuildRequireModelFails(t *testing.T) {
	_, err := Build(context.Background(), testConfig(t), Options{RequireModel: true})
	require.Error(t, err)
}

func TestBuildWithModel(t *testing.T) {
	cfg := testConfig(t)
	cfg.SemanticMemory = "off"
	cfg.LLMProvider = "openai"
	cfg.OpenAIAPIKey = "sk-test"

	app, err := Build(context.Background(), cfg, Options{RequireModel: true})
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.Turns)
	assert.Equal(t, memory.Noop{}, app.Semantic)
}

func TestBuildRejectsUnknownMemoryMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.SemanticMemory = "vector-db"
	_, err := Build(context.Background(), cfg, Options{})
	assert.Error(t, err)
}
