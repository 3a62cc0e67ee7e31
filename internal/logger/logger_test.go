package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	old := color.Output
	var buf bytes.Buffer
	color.Output = &buf
	defer func() { color.Output = old }()
	fn()
	return buf.String()
}

func TestInfo_Success_Warn_Error_NoPanic(t *testing.T) {
	out := captureOutput(t, func() {
		Info("TAG", "message")
		Success("TAG", "message")
		Warn("TAG", "message")
		Error("TAG", "message")
	})
	if got := strings.Count(out, "message"); got != 4 {
		t.Errorf("message count = %d, want 4", got)
	}
}

func TestBanner_NoPanic(t *testing.T) {
	out := captureOutput(t, func() {
		Banner("v1.0.0")
		Banner("")
	})
	if !strings.Contains(out, "v1.0.0") || !strings.Contains(out, "dev") {
		t.Errorf("banner output missing versions: %q", out)
	}
}

func TestSectionAndStats_NoPanic(t *testing.T) {
	old := os.Stdout
	_, w, _ := os.Pipe()
	os.Stdout = w
	defer func() { os.Stdout = old }()
	out := captureOutput(t, func() {
		Section("Test")
		Stats("key", 42)
	})
	w.Close()
	if !strings.Contains(out, "key") || !strings.Contains(out, "42") {
		t.Errorf("stats output = %q", out)
	}
}
