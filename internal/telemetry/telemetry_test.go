package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsSink(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	ctx := context.Background()

	var sink Sink = Multi{LogSink{}, m}
	sink.Emit(ctx, Event{Kind: ToolCallEnd, Name: "track_mood", Status: "success"})
	sink.Emit(ctx, Event{Kind: ToolCallEnd, Name: "track_mood", Status: "success"})
	sink.Emit(ctx, Event{Kind: ModelCallEnd, Status: "error", Err: errors.New("boom")})
	sink.Emit(ctx, Event{Kind: TurnEnd, Status: "degraded", Duration: time.Second})

	if got := testutil.ToFloat64(m.ToolCalls.WithLabelValues("track_mood", "success")); got != 2 {
		t.Errorf("Expected 2 tool calls, got: %v", got)
	}
	if got := testutil.ToFloat64(m.ModelCalls.WithLabelValues("error")); got != 1 {
		t.Errorf("Expected 1 failed model call, got: %v", got)
	}
	if got := testutil.ToFloat64(m.Turns.WithLabelValues("degraded")); got != 1 {
		t.Errorf("Expected 1 degraded turn, got: %v", got)
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Emit(context.Background(), Event{Kind: TurnStart})
	r.Emit(context.Background(), Event{Kind: TurnEnd})

	kinds := r.Kinds()
	if len(kinds) != 2 || kinds[0] != TurnStart || kinds[1] != TurnEnd {
		t.Errorf("Unexpected kinds: %v", kinds)
	}
}
