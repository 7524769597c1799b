package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_ContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := Logger(&buf, true, slog.LevelInfo)
	ctx := AppendCtx(context.Background(), slog.String("run", "a"))
	ctx = AppendCtx(ctx, slog.Group("codec", slog.String("name", "htj2k")))

	l.InfoContext(ctx, "hello", "n", 1)
	l.DebugContext(ctx, "hidden")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "a", rec["run"])
	assert.Equal(t, map[string]any{"name": "htj2k"}, rec["codec"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestAppendCtx_DoesNotShare(t *testing.T) {
	base := AppendCtx(context.Background(), slog.String("a", "1"))
	left := AppendCtx(base, slog.String("b", "2"))
	right := AppendCtx(base, slog.String("c", "3"))

	assert.Len(t, base.Value(ctxKey{}), 1)
	assert.Equal(t, "b", left.Value(ctxKey{}).([]slog.Attr)[1].Key)
	assert.Equal(t, "c", right.Value(ctxKey{}).([]slog.Attr)[1].Key)
}

func TestLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	l := Logger(&buf, false, slog.LevelDebug).With("tile", 3)
	l.DebugContext(AppendCtx(context.Background(), slog.Int("pass", 2)), "coded")
	assert.Contains(t, buf.String(), "msg=coded")
	assert.Contains(t, buf.String(), "tile=3")
	assert.Contains(t, buf.String(), "pass=2")
}

func TestRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "htj.log")
	w := RotatingFile(path)
	l := Logger(w, false, slog.LevelInfo)
	l.Info("written")
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written")
}
