package logging

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
)

func TestInitialize_SilentByDefault(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")
	if err := Initialize("", ""); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if GetLogger().Core().Enabled(zap.ErrorLevel) {
		t.Error("logger should be a no-op when no level is set")
	}
}

func TestInitialize_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	t.Setenv(LogLevelEnvVar, "debug")

	if err := Initialize("", path); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(func() { logger.Store(zap.NewNop()) })

	Info("scan started", zap.String("adapter", "hci0"))
	LogRawBytes("adv", []byte{0x02, 0x01, 0x06})
	Sync()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(b)
	for _, want := range []string{"scan started", "hci0", "02 01 06"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestInitialize_LevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	if err := Initialize("warn", path); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(func() { logger.Store(zap.NewNop()) })

	Info("hidden")
	Warn("visible")
	Sync()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Contains(string(b), "hidden") || !strings.Contains(string(b), "visible") {
		t.Errorf("unexpected log output:\n%s", b)
	}
}

func TestGetLogger_ConcurrentBeforeInitialize(t *testing.T) {
	logger.Store(zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				Debug("tick")
				if GetLogger() == nil {
					t.Error("GetLogger() returned nil")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestLogRawBytes_ReportsFullLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	if err := Initialize("debug", path); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(func() { logger.Store(zap.NewNop()) })

	LogRawBytes("big", make([]byte, 300))
	LogRawBytes("small", []byte{0x01})
	Sync()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 2 {
		t.Fatalf("log lines = %d, want 2:\n%s", len(lines), b)
	}
	tests := []struct {
		line string
		want []string
	}{
		{lines[0], []string{`"length": 300`, `"truncated": true`}},
		{lines[1], []string{`"length": 1`, `"truncated": false`}},
	}
	for i, tt := range tests {
		for _, w := range tt.want {
			if !strings.Contains(tt.line, w) {
				t.Errorf("line %d = %s, missing %s", i, tt.line, w)
			}
		}
	}
}
