package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esoteric-oracle/oracle-service/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, false},
		{" WARN ", zerolog.WarnLevel, false},
		{"chatty", zerolog.NoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	out, closer, err := Writer(config.LogConfig{Format: "json"}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	logger := zerolog.New(out)
	logger.Info().Str("sid", "abc").Msg("hello")
	assert.Contains(t, buf.String(), `"sid":"abc"`)
	assert.Contains(t, buf.String(), `"message":"hello"`)
}

func TestWriter_Console(t *testing.T) {
	var buf bytes.Buffer
	out, _, err := Writer(config.LogConfig{Format: "console"}, &buf)
	require.NoError(t, err)

	logger := zerolog.New(out)
	logger.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestWriter_UnsupportedFormat(t *testing.T) {
	_, _, err := Writer(config.LogConfig{Format: "xml"}, &bytes.Buffer{})
	assert.EqualError(t, err, "unsupported log format: xml")
}

func TestWriter_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oracle.log")
	var buf bytes.Buffer
	out, closer, err := Writer(config.LogConfig{Format: "json", File: path}, &buf)
	require.NoError(t, err)

	logger := zerolog.New(out)
	logger.Info().Msg("to both")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both")
	assert.Contains(t, buf.String(), "to both")
}
