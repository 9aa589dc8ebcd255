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
	log := Logger(&buf, true, slog.LevelInfo)
	ctx := AppendCtx(context.Background(), slog.String("name", "ctl"))
	ctx = AppendCtx(ctx, slog.Group("build", slog.String("git", "abc")))

	log.InfoContext(ctx, "hello", slog.Int("n", 1))
	log.DebugContext(ctx, "dropped")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "ctl", rec["name"])
	assert.Equal(t, float64(1), rec["n"])
	assert.Equal(t, map[string]any{"git": "abc"}, rec["build"])
}

func TestLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	log := Logger(&buf, false, slog.LevelDebug).With(slog.String("component", "codec"))
	log.DebugContext(AppendCtx(context.Background(), slog.Int("frame", 2)), "decoded")
	out := buf.String()
	assert.Contains(t, out, "msg=decoded")
	assert.Contains(t, out, "component=codec")
	assert.Contains(t, out, "frame=2")
}

func TestFileWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dcmjxl.log")
	w := FileWriter(path, 0, 1)
	log := Logger(w, false, slog.LevelInfo)
	log.Info("to file")
	require.NoError(t, w.Close())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}
