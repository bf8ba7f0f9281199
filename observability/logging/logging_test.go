package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupRenamesKeys(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := setup(&buf, "vatd", "test", slog.LevelInfo)
	logger.Debug("hidden")
	logger.Info("ledger ready", "ilks", 2)

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "ledger ready", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "vatd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Contains(t, line, "timestamp")
	require.EqualValues(t, 2, line["ilks"])
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel(" error "))
	require.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestSetupWithFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "vatd.log")
	logger := SetupWithOptions("vatd", "", Options{File: path, MaxSizeMB: 1})
	logger.Info("written to file")
	require.FileExists(t, path)
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("hmacSecret", "s3cret").Value.String())
	require.Equal(t, "vatd", MaskField("service", "vatd").Value.String())
	require.Equal(t, "", MaskField("token", "").Value.String())
	require.True(t, IsCredential("Authorization"))
	require.False(t, IsCredential("ilk"))
}

func TestSetupRedactsCredentials(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := setup(&buf, "vatd", "", slog.LevelInfo)
	logger.Info("issued", "bearerToken", "eyJhbGciOi", "caller", "vat1qqq")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, RedactedValue, line["bearerToken"])
	require.Equal(t, "vat1qqq", line["caller"])
}
