package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	b2uploader "github.com/goliatone/go-b2uploader"
	"github.com/goliatone/go-b2uploader/config"
)

func TestProgressPrinterThrottles(t *testing.T) {
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetErr(&out)

	printer := newProgressPrinter(cmd, time.Hour)
	printer.report("a.bin", b2uploader.ComputeProgress(time.Second, 10, 100))
	printer.report("a.bin", b2uploader.ComputeProgress(time.Second, 20, 100))
	printer.report("b.bin", b2uploader.ComputeProgress(time.Second, 5, 100))
	printer.report("a.bin", b2uploader.ComputeProgress(time.Second, 100, 100))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "a.bin "))
	assert.True(t, strings.HasPrefix(lines[1], "b.bin "))
	assert.True(t, strings.HasPrefix(lines[2], "a.bin "))
}

func TestBuildManagerRejectsBadSizes(t *testing.T) {
	cfg := config.Config{PartSize: "nope", SingleThreshold: "1MiB"}
	_, err := buildManager(cfg, nil, &b2uploader.DefaultLogger{}, false)
	assert.Error(t, err)

	cfg.PartSize = "5MiB"
	cfg.PartsPerWorker = 2
	cfg.MaxAttempts = 1
	manager, err := buildManager(cfg, nil, &b2uploader.DefaultLogger{}, false)
	require.NoError(t, err)
	assert.NotNil(t, manager.Sessions())
}

func TestUploadCommandRequiresFiles(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"upload"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	assert.Error(t, root.Execute())
}

func TestUploadCommandLocalTransport(t *testing.T) {
	root := t.TempDir()
	t.Setenv("B2_TRANSPORT", config.TransportLocal)
	t.Setenv("B2_LOCAL_ROOT", root)
	t.Setenv("B2_BUCKET_ID", "mirror")
	t.Setenv("UPLOAD_RETRY_DELAY", "1ms")

	src := filepath.Join(t.TempDir(), "clip.txt")
	require.NoError(t, os.WriteFile(src, []byte("local transport"), 0o600))

	var stdout bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"upload", "--config", t.TempDir(), "--prefix", "clips", "--meta", "author=jane", src})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, stdout.String(), "clips/clip.txt")

	stored, err := os.ReadFile(filepath.Join(root, "mirror", "clips", "clip.txt"))
	require.NoError(t, err)
	assert.Equal(t, "local transport", string(stored))
}
