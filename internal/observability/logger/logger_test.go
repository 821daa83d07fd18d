package logger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromFallsBackToSingleton(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := Replace(zap.New(core))
	defer restore()

	From(context.Background()).Info("hello", ServiceID("wsfe"))
	From(context.TODO()).Info("todo ctx")

	require.Equal(t, 2, logs.Len())
	require.Equal(t, "wsfe", logs.All()[0].ContextMap()["service_id"])
}

func TestToContextScopesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := ToContext(context.Background(), zap.New(core).With(RequestID("r-1")))

	FromWithFields(ctx, Op("Authenticate")).Debug("scoped")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	require.Equal(t, "r-1", fields["request_id"])
	require.Equal(t, "Authenticate", fields["op"])
}

func TestTokenIsMasked(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	zap.New(core).Info("issued", Token("token", "PD94bWwgdmVyc2lvbj0iMS4wIj8+"))
	require.Equal(t, "PD94…Ij8+", logs.All()[0].ContextMap()["token"])
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, zapcore.DebugLevel, parseLevel(" DEBUG "))
	require.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	require.Equal(t, zapcore.InfoLevel, parseLevel("nope"))
}

func TestBuild_ProdWritesJSONWithBaseFields(t *testing.T) {
	out := filepath.Join(t.TempDir(), "log.json")
	l := build(Config{Env: "prod", Level: "warn", ServiceName: "wsaa", Version: "1.2.3", OutputPaths: []string{out}})

	l.Info("dropped")
	l.Warn("kept", ServiceID("wsfe"))
	_ = l.Sync()

	b, err := os.ReadFile(out)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(b, &entry), "exactly one JSON line expected, got %q", b)
	require.Equal(t, "kept", entry["msg"])
	require.Equal(t, "wsaa", entry["service"])
	require.Equal(t, "1.2.3", entry["version"])
	require.Equal(t, "wsfe", entry["service_id"])
}

func TestJSONEnv(t *testing.T) {
	require.True(t, jsonEnv("PROD"))
	require.True(t, jsonEnv("staging"))
	require.False(t, jsonEnv("dev"))
	require.False(t, jsonEnv(""))
}
