//go:build integration

package integration_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/h5geotiff/internal/adapter/geotiff"
	"github.com/couchcryptid/h5geotiff/internal/adapter/hdf5"
	"github.com/couchcryptid/h5geotiff/internal/domain"
	"github.com/couchcryptid/h5geotiff/internal/observability"
	"github.com/couchcryptid/h5geotiff/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	gohdf5 "github.com/robert-malhotra/go-hdf5/hdf5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// globalsOverlay serves root-group attributes from a map and everything else
// from a real HDF5 file. The HDF5 writer used for fixtures cannot attach
// attributes to the root group.
type globalsOverlay struct {
	*hdf5.Reader
	globals map[string]any
}

func (g *globalsOverlay) GlobalString(name string) (string, error) {
	if s, ok := g.globals[name].(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: %s", domain.ErrMissingAttribute, name)
}

func (g *globalsOverlay) GlobalInt(name string) (int, error) {
	if v, ok := g.globals[name].(int); ok {
		return v, nil
	}
	return 0, fmt.Errorf("%w: %s", domain.ErrMissingAttribute, name)
}

type overlayOpener map[string]map[string]any

func (o overlayOpener) Open(path string) (domain.AttributeReader, error) {
	r, err := hdf5.Open(path)
	if err != nil {
		return nil, err
	}
	return &globalsOverlay{Reader: r, globals: o[path]}, nil
}

// writeDSSF writes a product dataset with its node attributes and returns the
// path together with the matching root attributes.
func writeDSSF(t *testing.T, dir, name string, rows, cols, firstLat, firstLon int, data []int16) (string, map[string]any) {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := gohdf5.Create(path)
	require.NoError(t, err)
	_, err = f.Root().CreateDataset("DSSF", data,
		gohdf5.WithAttribute(domain.AttrMissingValue, int32(-1)),
		gohdf5.WithAttribute(domain.AttrScalingFactor, float64(10)),
	)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	return path, map[string]any{
		domain.AttrProduct:  "DSSF",
		domain.AttrRows:     rows,
		domain.AttrCols:     cols,
		domain.AttrFirstLat: firstLat,
		domain.AttrFirstLon: firstLon,
	}
}

func TestConvertPipeline_HDF5ToGeoTIFF(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2010, time.January, 1, 12, 15, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })

	inDir, outDir := t.TempDir(), t.TempDir()

	const rows, cols = 40, 60
	disk := make([]int16, rows*cols)
	for i := range disk {
		switch {
		case i%7 == 0:
			disk[i] = -1
		default:
			disk[i] = int16(i % 9000)
		}
	}
	diskPath, diskGlobals := writeDSSF(t, inDir, "HDF5_LSASAF_MSG_DSSF_MSG-Disk_201001011200", rows, cols, 70, -70, disk)
	smallPath, smallGlobals := writeDSSF(t, inDir, "HDF5_LSASAF_MSG_DSSF_Euro_201001011200", 2, 2, 10, 20, []int16{100, -1, 50, 200})

	opener := overlayOpener{diskPath: diskGlobals, smallPath: smallGlobals}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	metrics := observability.NewMetricsForTesting()

	conv, err := pipeline.NewConverter(opener, geotiff.NewCreator(""), domain.DefaultGridProfile(), logger, metrics)
	require.NoError(t, err)
	summary, err := pipeline.New(conv, logger, metrics).Run(context.Background(), outDir, []string{diskPath, smallPath})
	require.NoError(t, err)
	require.Equal(t, 2, summary.Converted())

	t.Run("disk product", func(t *testing.T) {
		res := summary.Results[0]
		raster, err := geotiff.Read(res.OutputPath)
		require.NoError(t, err)

		want := make([]int16, len(disk))
		for i, v := range disk {
			if v == -1 {
				want[i] = -1
				continue
			}
			want[i] = v / 10
		}
		if diff := cmp.Diff(want, raster.Data); diff != "" {
			t.Errorf("pixel mismatch (-want +got):\n%s", diff)
		}
		assert.Equal(t, cols, raster.Width)
		assert.Equal(t, rows, raster.Height)
		assert.Equal(t, domain.GeoTransformFromCenter(70, -70, 0.05), raster.GeoTransform)
		assert.Equal(t, "2010:01:01 12:15:00", raster.DateTime)
		assert.Equal(t, geotiff.DefaultSoftware, raster.Software)
		assert.Equal(t, res.ValidCount, res.Width*res.Height-res.MissingCount)
		assert.Contains(t, raster.Metadata, "STATISTICS_MEAN")
	})

	t.Run("small product", func(t *testing.T) {
		raster, err := geotiff.Read(filepath.Join(outDir, "HDF5_LSASAF_MSG_DSSF_Euro_201001011200.tif"))
		require.NoError(t, err)
		assert.Equal(t, []int16{10, -1, 5, 20}, raster.Data)
		assert.InDelta(t, -1.0, raster.NoData, 0)
		assert.Equal(t, "5", raster.Metadata["STATISTICS_MINIMUM"])
		assert.Equal(t, "20", raster.Metadata["STATISTICS_MAXIMUM"])
	})

	assert.InDelta(t, 2.0, testutil.ToFloat64(metrics.FilesConverted), 0)
	assert.InDelta(t, float64(summary.Results[0].MissingCount+1), testutil.ToFloat64(metrics.Samples.WithLabelValues("missing")), 0)
}

func TestConvertPipeline_MissingNodeAttributeLeavesNoOutput(t *testing.T) {
	inDir, outDir := t.TempDir(), t.TempDir()

	path := filepath.Join(inDir, "HDF5_LSASAF_MSG_DSSF_MSG-Disk_201001011230")
	f, err := gohdf5.Create(path)
	require.NoError(t, err)
	_, err = f.Root().CreateDataset("DSSF", []int16{1, 2, 3, 4},
		gohdf5.WithAttribute(domain.AttrMissingValue, int32(-1)),
	)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	opener := overlayOpener{path: {
		domain.AttrProduct:  "DSSF",
		domain.AttrRows:     2,
		domain.AttrCols:     2,
		domain.AttrFirstLat: 0,
		domain.AttrFirstLon: 0,
	}}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	metrics := observability.NewMetricsForTesting()
	conv, err := pipeline.NewConverter(opener, geotiff.NewCreator(""), domain.DefaultGridProfile(), logger, metrics)
	require.NoError(t, err)

	_, err = pipeline.New(conv, logger, metrics).Run(context.Background(), outDir, []string{path})
	require.ErrorIs(t, err, domain.ErrMissingAttribute)
	assert.Contains(t, err.Error(), domain.AttrScalingFactor)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.ConversionErrors.WithLabelValues("missing_attribute")), 0)
}
