package logging

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFilePath(t *testing.T) {
	sessionStart := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	tests := []struct {
		name    string
		logsDir string
		appName string
		want    string
	}{
		{
			name:    "basic path",
			logsDir: "logs",
			appName: "linkbridge",
			want:    filepath.Join("logs", "linkbridge.20260212_213836.log"),
		},
		{
			name:    "relative path with dot",
			logsDir: "./logs",
			appName: "linkbridge",
			want:    filepath.Join(".", "logs", "linkbridge.20260212_213836.log"),
		},
		{
			name:    "absolute path",
			logsDir: filepath.Join("/var", "log", "linkbridge"),
			appName: "linkbridge",
			want:    filepath.Join("/var", "log", "linkbridge", "linkbridge.20260212_213836.log"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LogFilePath(tt.logsDir, tt.appName, sessionStart)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"Warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestSetup_FileAndExtra(t *testing.T) {
	var file, extra bytes.Buffer
	logger := Setup(Options{
		Level: "debug",
		File:  &file,
		Extra: []io.Writer{&extra},
		Context: func(e *zerolog.Event) {
			e.Str("state", "Serving")
		},
	})

	logger.Debug().Str("peer", "127.0.0.1:1").Msg("accepted")

	assert.Contains(t, file.String(), "Logging set up")
	assert.Contains(t, file.String(), "accepted")
	assert.NotContains(t, file.String(), "\x1b[", "file output is uncolored")

	lines := strings.Split(strings.TrimSpace(extra.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], `"peer":"127.0.0.1:1"`)
	assert.Contains(t, lines[1], `"state":"Serving"`)
}

func TestSetup_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Level: "warn", Extra: []io.Writer{&buf}})

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestSetup_NoWriters(t *testing.T) {
	logger := Setup(Options{})
	assert.Equal(t, zerolog.Disabled, logger.GetLevel())
}

func TestSampled(t *testing.T) {
	var buf bytes.Buffer
	logger := Sampled(zerolog.New(&buf))

	for i := 0; i < 50; i++ {
		logger.Info().Int("i", i).Msg("position")
	}

	n := strings.Count(buf.String(), "\n")
	assert.GreaterOrEqual(t, n, 5)
	assert.Less(t, n, 50)
	assert.Contains(t, buf.String(), `"sampled":true`)
}

func TestNewGelfWriter(t *testing.T) {
	w, err := NewGelfWriter("127.0.0.1:12201", "linkbridge")
	require.NoError(t, err)
	assert.Equal(t, "linkbridge", w.Facility)
	require.NoError(t, w.Close())
}
