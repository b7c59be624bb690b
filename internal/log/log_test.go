package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevelAcceptsKnownLevels(t *testing.T) {
	cases := map[string]bool{
		"trace": true, "debug": true, "info": true, "": true,
		"warn": true, "warning": true, "error": true, "fatal": true,
		"bogus": false,
	}
	for level, wantOK := range cases {
		_, err := parseLevel(level)
		if (err == nil) != wantOK {
			t.Fatalf("parseLevel(%q): err=%v, wanted ok=%v", level, err, wantOK)
		}
	}
}

func TestParseLevelIsCaseInsensitive(t *testing.T) {
	if _, err := parseLevel("WARN"); err != nil {
		t.Fatalf("expected uppercase level to parse, got %v", err)
	}
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	if err := Init("not-a-level", false, ""); err == nil {
		t.Fatalf("expected error initializing with an invalid level")
	}
}

func TestInitJSONOutputProducesParsableLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.log")
	if err := Init("info", true, path); err != nil {
		t.Fatalf("init: %v", err)
	}
	Logger.Info().Str("key", "value").Msg("hello")

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("expected valid JSON log line, got %q: %v", raw, err)
	}
	if decoded["key"] != "value" || decoded["message"] != "hello" {
		t.Fatalf("unexpected decoded fields: %+v", decoded)
	}
}

func TestWithComponentTagsComponentField(t *testing.T) {
	var buf bytes.Buffer
	base := NewJSONLogger(&buf)
	Logger = base
	l := WithComponent("chain")
	l.Info().Msg("tagged")

	if !strings.Contains(buf.String(), `"component":"chain"`) {
		t.Fatalf("expected component field in log output, got %q", buf.String())
	}
}

func TestWithChainIDAddsField(t *testing.T) {
	var buf bytes.Buffer
	base := NewJSONLogger(&buf)
	tagged := WithChainID(base, "regtest")
	tagged.Info().Msg("hi")

	if !strings.Contains(buf.String(), `"chain_id":"regtest"`) {
		t.Fatalf("expected chain_id field in log output, got %q", buf.String())
	}
}

func TestBenchmarkReturnsStoppableFunc(t *testing.T) {
	stop := Benchmark("test-op")
	stop()
}
