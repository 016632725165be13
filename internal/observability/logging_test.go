package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ayesh156/roxeleye-crud/internal/config"
)

func TestLoggerAddsServiceAndSpanIDs(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{Env: "test", OTELServiceName: "roxeleye-test", OTELLogLevel: "info"}
	logger := newLogger(&buf, cfg, nil)

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	logger.InfoContext(ctx, "item created", "item_id", 7)
	span.End()

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if rec["service"] != "roxeleye-test" || rec["env"] != "test" {
		t.Fatalf("missing service attrs: %v", rec)
	}
	if rec["trace_id"] != span.SpanContext().TraceID().String() {
		t.Fatalf("trace_id = %v, want %s", rec["trace_id"], span.SpanContext().TraceID())
	}
	if rec["span_id"] == nil {
		t.Fatalf("span_id missing: %v", rec)
	}
}

func TestLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &config.Config{OTELLogLevel: "warn"}, nil)
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info record written at warn level: %s", buf.String())
	}
	logger.Warn("kept")
	if buf.Len() == 0 {
		t.Fatal("warn record not written")
	}
}

func TestTeeHandlerFansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := teeHandler{jsonHandler(&a, slog.LevelInfo), jsonHandler(&b, slog.LevelError)}
	l := slog.New(h).With("k", "v")
	l.Info("one")
	l.Error("two")
	if got := bytes.Count(a.Bytes(), []byte("\n")); got != 2 {
		t.Fatalf("info sink lines = %d, want 2", got)
	}
	if got := bytes.Count(b.Bytes(), []byte("\n")); got != 1 {
		t.Fatalf("error sink lines = %d, want 1", got)
	}
	if !bytes.Contains(b.Bytes(), []byte(`"k":"v"`)) {
		t.Fatalf("attrs not propagated: %s", b.String())
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{"debug": slog.LevelDebug, " WARN ": slog.LevelWarn, "error": slog.LevelError, "": slog.LevelInfo, "loud": slog.LevelInfo}
	for in, want := range cases {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
