package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("Expected default level to be Info, got %s", cfg.Level)
	}

	if cfg.Pretty != false {
		t.Error("Expected default pretty to be false")
	}
}

func TestSetup(t *testing.T) {
	tests := []struct {
		name     string
		level    LogLevel
		testMsg  string
		contains string
	}{
		{
			name:     "info_level",
			level:    LevelInfo,
			testMsg:  "scheduler started",
			contains: "scheduler started",
		},
		{
			name:     "debug_level",
			level:    LevelDebug,
			testMsg:  "cache hit",
			contains: "cache hit",
		},
		{
			name:     "warn_level",
			level:    LevelWarn,
			testMsg:  "provider fetch failed",
			contains: "provider fetch failed",
		},
		{
			name:     "error_level",
			level:    LevelError,
			testMsg:  "cache store unreachable",
			contains: "cache store unreachable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := Setup(Config{Level: tt.level, Output: buf})

			switch tt.level {
			case LevelDebug:
				logger.Debug().Msg(tt.testMsg)
			case LevelInfo:
				logger.Info().Msg(tt.testMsg)
			case LevelWarn:
				logger.Warn().Msg(tt.testMsg)
			case LevelError:
				logger.Error().Msg(tt.testMsg)
			}

			if !strings.Contains(buf.String(), tt.contains) {
				t.Errorf("Expected output to contain %q, got %q", tt.contains, buf.String())
			}
		})
	}
}

func TestSetup_LevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := Setup(Config{Level: LevelWarn, Output: buf})

	logger.Debug().Msg("refresh skipped")
	logger.Info().Msg("refresh succeeded")

	if buf.Len() != 0 {
		t.Errorf("Expected debug/info to be filtered at warn level, got %q", buf.String())
	}

	logger.Warn().Msg("provider fetch failed")
	if !strings.Contains(buf.String(), "provider fetch failed") {
		t.Error("Expected warn message to pass the filter")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input LogLevel
		want  zerolog.Level
	}{
		{LevelDebug, zerolog.DebugLevel},
		{LevelInfo, zerolog.InfoLevel},
		{LevelWarn, zerolog.WarnLevel},
		{LogLevel("warning"), zerolog.WarnLevel},
		{LevelError, zerolog.ErrorLevel},
		{LogLevel("unknown"), zerolog.InfoLevel},
		{LogLevel(""), zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewLogger_Component(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelDebug, Output: buf})

	logger := NewLogger("scheduler")
	logger.Info().Msg("tick")

	out := buf.String()
	if !strings.Contains(out, `"component":"scheduler"`) {
		t.Errorf("Expected component field in output, got %q", out)
	}
}
