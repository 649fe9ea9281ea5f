package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed() (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewZapAdapter(zap.New(core)), logs
}

func TestSensitiveFieldsAreRedacted(t *testing.T) {
	log, logs := observed()

	log.Info("duplicate check", map[string]interface{}{
		"applicationId": int64(42),
		"taxId":         "123456789",
		"birthDate":     "1990-01-01",
		"identityKey":   "ab12",
	})

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, int64(42), fields["applicationId"])
	assert.Equal(t, redacted, fields["taxId"])
	assert.Equal(t, redacted, fields["birthDate"])
	assert.Equal(t, redacted, fields["identityKey"])
}

func TestWithFieldsCarriesContext(t *testing.T) {
	log, logs := observed()

	scoped := log.With(map[string]interface{}{"component": "scheduler"}).WithError(errors.New("store down"))
	scoped.Warn("loan skipped", map[string]interface{}{"applicationId": int64(7)})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "scheduler", fields["component"])
	assert.Equal(t, "store down", fields["error"])
	assert.Equal(t, int64(7), fields["applicationId"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}

func TestNew_LevelGate(t *testing.T) {
	l := New("warn", "json")
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
}
