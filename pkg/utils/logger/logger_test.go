package logger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gdbc/pkg/utils/contextkey"
)

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	if _, err := NewLogger(Config{Level: "loud"}); err == nil {
		t.Fatal("expected invalid level error")
	}
}

func TestNewLoggerBadPath(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing", "dir", "app.log")
	if _, err := NewLogger(Config{OutputPath: dir}); err == nil {
		t.Fatal("expected open error")
	}
}

func TestContextFieldsWrittenToFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "app.log")
	errOut := filepath.Join(dir, "error.log")

	l, err := NewLogger(Config{Level: "info", Format: "json", OutputPath: out, ErrorPath: errOut})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	prev := globalLogger
	globalLogger = l
	t.Cleanup(func() { globalLogger = prev })

	ctx := context.WithValue(context.Background(), contextkey.ConnID, "conn-1")
	ctx = context.WithValue(ctx, contextkey.Slot, 4)
	Debug(ctx, "hidden")
	Info(ctx, "spawned")
	Error(ctx, "reap failed")
	_ = Sync()

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	text := string(data)
	if strings.Contains(text, "hidden") {
		t.Fatalf("debug entry written at info level:\n%s", text)
	}
	for _, want := range []string{`"msg":"spawned"`, `"conn_id":"conn-1"`, `"slot":4`, `"msg":"reap failed"`} {
		if !strings.Contains(text, want) {
			t.Fatalf("log missing %s:\n%s", want, text)
		}
	}

	errData, err := os.ReadFile(errOut)
	if err != nil {
		t.Fatalf("read error log: %v", err)
	}
	if strings.Contains(string(errData), "spawned") || !strings.Contains(string(errData), "reap failed") {
		t.Fatalf("error sink content wrong:\n%s", errData)
	}
}

func TestHelpersWithoutInit(t *testing.T) {
	prev := globalLogger
	globalLogger = nil
	t.Cleanup(func() { globalLogger = prev })

	Info(context.Background(), "dropped")
	Infof(context.TODO(), "dropped %d", 1)
	if err := Sync(); err != nil {
		t.Fatalf("Sync without init: %v", err)
	}
}

func TestExtractFieldsNilContext(t *testing.T) {
	var ctx context.Context
	if fields := extractFieldsFromContext(ctx); fields != nil {
		t.Fatalf("fields = %v", fields)
	}
}
