package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/h5geotiff/internal/adapter/geotiff"
	"github.com/couchcryptid/h5geotiff/internal/adapter/hdf5"
	"github.com/couchcryptid/h5geotiff/internal/config"
	"github.com/couchcryptid/h5geotiff/internal/domain"
	"github.com/couchcryptid/h5geotiff/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- stub container ---

type stubContainer struct {
	globals map[string]any
	node    map[string]any
	data    []int16
}

// scenarioContainer is a 2x2 product at (10N, 20E) with one missing sample.
func scenarioContainer() *stubContainer {
	return &stubContainer{
		globals: map[string]any{
			domain.AttrProduct:  "DSSF",
			domain.AttrRows:     2,
			domain.AttrCols:     2,
			domain.AttrFirstLat: 10,
			domain.AttrFirstLon: 20,
		},
		node: map[string]any{
			domain.AttrMissingValue:  -9999,
			domain.AttrScalingFactor: 100.0,
		},
		data: []int16{1000, -9999, 500, 2000},
	}
}

type stubOpener map[string]*stubContainer

func (o stubOpener) Open(path string) (domain.AttributeReader, error) {
	c, ok := o[path]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, domain.ErrIO)
	}
	return c, nil
}

func (c *stubContainer) GlobalString(name string) (string, error) {
	s, ok := c.globals[name].(string)
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrMissingAttribute, name)
	}
	return s, nil
}

func (c *stubContainer) GlobalInt(name string) (int, error) {
	v, ok := c.globals[name].(int)
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrMissingAttribute, name)
	}
	return v, nil
}

func (c *stubContainer) NodeInt(_, name string) (int, error) {
	v, ok := c.node[name].(int)
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrMissingAttribute, name)
	}
	return v, nil
}

func (c *stubContainer) NodeFloat(_, name string) (float64, error) {
	v, ok := c.node[name].(float64)
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrMissingAttribute, name)
	}
	return v, nil
}

func (c *stubContainer) ReadArray(string) ([]int16, []int, error) {
	return c.data, []int{len(c.data)}, nil
}

func (c *stubContainer) Close() error { return nil }

// --- helpers ---

type testApp struct {
	*app
	stdout, stderr *bytes.Buffer
}

// bufferLogger honours the configured level but writes text to w instead of
// replacing the process-wide default logger.
func bufferLogger(w io.Writer) func(*config.Config) *slog.Logger {
	return func(cfg *config.Config) *slog.Logger {
		var level slog.Level
		_ = level.UnmarshalText([]byte(cfg.LogLevel))
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	}
}

func newTestApp(opener domain.ContainerOpener) *testApp {
	var stdout, stderr bytes.Buffer
	return &testApp{
		app: &app{
			stdout:     &stdout,
			stderr:     &stderr,
			opener:     opener,
			newLogger:  bufferLogger(&stderr),
			newMetrics: observability.NewMetricsForTesting,
		},
		stdout: &stdout,
		stderr: &stderr,
	}
}

func (a *testApp) run(args ...string) int {
	return a.execute(context.Background(), args)
}

// --- tests ---

func TestRun_ConvertsAndLogsProgress(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "out", "nested")
	metricsPath := filepath.Join(t.TempDir(), "h5geotiff.prom")
	a := newTestApp(stubOpener{"/in/a.h5": scenarioContainer(), "/in/b.h5": scenarioContainer()})

	code := a.run("--log-level", "debug", "--metrics-textfile", metricsPath, outDir, "/in/a.h5", "/in/b.h5")
	require.Equal(t, 0, code, a.stderr.String())

	logs := a.stderr.String()
	assert.Contains(t, logs, "creating output directory")
	assert.Contains(t, logs, "Processing file (1/2) /in/a.h5")
	assert.Contains(t, logs, "Processing file (2/2) /in/b.h5")
	assert.Contains(t, logs, "wrote raster")

	r, err := geotiff.Read(filepath.Join(outDir, "a.h5.tif"))
	require.NoError(t, err)
	assert.Equal(t, []int16{10, -9999, 5, 20}, r.Data)
	assert.Equal(t, domain.GeoTransformFromCenter(10, 20, 0.05), r.GeoTransform)
	assert.Equal(t, 4326, r.EPSG)
	assert.InDelta(t, -9999.0, r.NoData, 0)
	assert.FileExists(t, filepath.Join(outDir, "b.h5.tif"))

	body, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(body), "h5geotiff_files_converted_total 2")
}

func TestRun_ToleranceFlag(t *testing.T) {
	src := scenarioContainer()
	src.data = []int16{-9998, -9999, 500, 2000}

	outDir := t.TempDir()
	a := newTestApp(stubOpener{"/in/a.h5": src})
	require.Equal(t, 0, a.run(outDir, "/in/a.h5"), a.stderr.String())
	r, err := geotiff.Read(filepath.Join(outDir, "a.h5.tif"))
	require.NoError(t, err)
	assert.Equal(t, int16(-99), r.Data[0], "default tolerance treats -9998 as valid")

	a = newTestApp(stubOpener{"/in/a.h5": src})
	require.Equal(t, 0, a.run("--tolerance", "1", outDir, "/in/a.h5"), a.stderr.String())
	r, err = geotiff.Read(filepath.Join(outDir, "a.h5.tif"))
	require.NoError(t, err)
	assert.Equal(t, int16(-9999), r.Data[0])
}

func TestRun_ProfileFlag(t *testing.T) {
	profile := filepath.Join(t.TempDir(), "profile.toml")
	require.NoError(t, os.WriteFile(profile, []byte("pixel_size = 0.25\n"), 0o600))

	outDir := t.TempDir()
	a := newTestApp(stubOpener{"/in/a.h5": scenarioContainer()})
	require.Equal(t, 0, a.run("--config", profile, outDir, "/in/a.h5"), a.stderr.String())

	r, err := geotiff.Read(filepath.Join(outDir, "a.h5.tif"))
	require.NoError(t, err)
	assert.Equal(t, domain.GeoTransformFromCenter(10, 20, 0.25), r.GeoTransform)
}

func TestRun_TooFewArgs(t *testing.T) {
	a := newTestApp(stubOpener{})
	assert.Equal(t, 1, a.run(t.TempDir()))
	assert.Contains(t, a.stderr.String(), "requires at least 2 arg(s)")
}

func TestRun_UncreatableOutputDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	a := newTestApp(stubOpener{"/in/a.h5": scenarioContainer()})
	code := a.run(filepath.Join(blocker, "out"), "/in/a.h5")

	assert.Equal(t, 1, code)
	assert.Contains(t, a.stderr.String(), "cannot create output directory")
	assert.Contains(t, a.stderr.String(), "kind=configuration")
	assert.NotContains(t, a.stderr.String(), "Processing file")
}

func TestRun_MissingScalingFactorWritesNothing(t *testing.T) {
	src := scenarioContainer()
	delete(src.node, domain.AttrScalingFactor)

	outDir := t.TempDir()
	a := newTestApp(stubOpener{"/in/a.h5": src, "/in/b.h5": scenarioContainer()})
	code := a.run(outDir, "/in/a.h5", "/in/b.h5")

	assert.Equal(t, 1, code)
	assert.Contains(t, a.stderr.String(), "kind=missing_attribute")
	assert.NoFileExists(t, filepath.Join(outDir, "a.h5.tif"))
	assert.NoFileExists(t, filepath.Join(outDir, "b.h5.tif"), "the batch stops at the first failure")
}

func TestRun_UnreadableInput(t *testing.T) {
	outDir := t.TempDir()
	a := newTestApp(hdf5.NewOpener())
	code := a.run(outDir, filepath.Join(t.TempDir(), "absent.h5"))

	assert.Equal(t, 1, code)
	assert.Contains(t, a.stderr.String(), "kind=io")
	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_InvalidLogFormat(t *testing.T) {
	a := newTestApp(stubOpener{})
	assert.Equal(t, 1, a.run("--log-format", "xml", t.TempDir(), "/in/a.h5"))
	assert.Contains(t, a.stderr.String(), "LOG_FORMAT must be json or text")
}

func TestRun_Help(t *testing.T) {
	a := newTestApp(stubOpener{})
	assert.Equal(t, 0, a.run("--help"))
	assert.Contains(t, a.stdout.String(), "h5geotiff [flags] <output-dir> <input>...")
	assert.NotContains(t, a.stdout.String(), "Available Commands")
}

func TestRun_OutputDirNamedVerify(t *testing.T) {
	t.Chdir(t.TempDir())

	a := newTestApp(stubOpener{"/in/a.h5": scenarioContainer()})
	code := a.run("verify", "/in/a.h5")
	require.Equal(t, 0, code, a.stderr.String())

	r, err := geotiff.Read(filepath.Join("verify", "a.h5.tif"))
	require.NoError(t, err)
	assert.Equal(t, []int16{10, -9999, 5, 20}, r.Data)
}
