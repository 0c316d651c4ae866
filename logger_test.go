package requery

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSimpleLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	l := &SimpleLogger{logger: log.New(&buf, "", 0)}

	l.Info("fetch complete", "key", "pokemon", "attempt", 2)
	line := buf.String()
	for _, want := range []string{"INFO", "fetch complete", "key=pokemon", "attempt=2"} {
		if !strings.Contains(line, want) {
			t.Errorf("Log line %q missing %q", line, want)
		}
	}
}

func TestSimpleLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := &SimpleLogger{logger: log.New(&buf, "", 0)}

	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")

	out := buf.String()
	for _, want := range []string{"DEBUG d", "INFO i", "WARN w", "ERROR e"} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q:\n%s", want, out)
		}
	}
}

func TestSimpleLoggerOddKeyValues(t *testing.T) {
	var buf bytes.Buffer
	l := &SimpleLogger{logger: log.New(&buf, "", 0)}

	l.Debug("lonely", "orphan")
	if !strings.Contains(buf.String(), "orphan=<missing>") {
		t.Errorf("Expected orphan key marker, got %q", buf.String())
	}
}

func TestZerologLoggerAdapter(t *testing.T) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf)
	l := NewZerologLogger(zl)

	l.Info("cache hit", "key", "pokemon/1")
	out := buf.String()
	for _, want := range []string{`"level":"info"`, `"message":"cache hit"`, `"key":"pokemon/1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Zerolog output %q missing %q", out, want)
		}
	}

	buf.Reset()
	l.Error("fetch failed", "attempt", 3)
	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Errorf("Expected error level, got %q", buf.String())
	}
}

func TestDefaultDebugConfig(t *testing.T) {
	cfg := DefaultDebugConfig()
	if cfg.Enabled {
		t.Error("Debug logging must default to off")
	}
	if !cfg.LogFetches || !cfg.LogRetries || !cfg.LogCache || !cfg.LogGC || !cfg.LogSubscriptions {
		t.Error("All log areas must default to on")
	}
}
