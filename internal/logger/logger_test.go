package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesAuditFile(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.AuditLogPath = filepath.Join(dir, "audit.log")
	cfg.AppLogPath = filepath.Join(dir, "app.log")

	l, err := New(cfg)
	require.NoError(t, err)

	l.Audit.Info("audit event")
	l.App.Info("app event")
	require.NoError(t, l.Close())

	b, err := os.ReadFile(cfg.AuditLogPath)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"message":"audit event"`)
	assert.Contains(t, string(b), `"logger":"audit"`)

	b, err = os.ReadFile(cfg.AppLogPath)
	require.NoError(t, err)
	assert.Contains(t, string(b), "app event")
}

func TestNew_InvalidLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "loud"
	_, err := New(cfg)
	assert.Error(t, err)
}
