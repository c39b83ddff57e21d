package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/couchcryptid/h5geotiff/internal/domain"
	"github.com/couchcryptid/h5geotiff/internal/observability"
	"github.com/ctessum/geom"
)

// OutputSuffix is appended to the input base name to form the output name.
const OutputSuffix = ".tif"

// Result describes one completed conversion.
type Result struct {
	InputPath    string
	OutputPath   string
	Product      string
	Width        int
	Height       int
	ValidCount   int
	MissingCount int
	GeoTransform domain.GeoTransform
	Bounds       *geom.Bounds
	Statistics   domain.BandStatistics
	HasStats     bool
	Duration     time.Duration
}

// Converter turns one HDF5 container into one GeoTIFF.
type Converter struct {
	opener  domain.ContainerOpener
	creator domain.RasterCreator
	profile domain.GridProfile
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewConverter creates a Converter. The profile is validated once here.
func NewConverter(opener domain.ContainerOpener, creator domain.RasterCreator, profile domain.GridProfile, logger *slog.Logger, metrics *observability.Metrics) (*Converter, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return &Converter{
		opener:  opener,
		creator: creator,
		profile: profile,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// OutputPath returns <outputDir>/<basename(inputPath)>.tif.
func OutputPath(inputPath, outputDir string) string {
	return filepath.Join(outputDir, filepath.Base(inputPath)+OutputSuffix)
}

// Convert reads inputPath, rescales its product array and writes the
// georeferenced result into outputDir. The input is closed before the output
// is created. On error nothing is left at the output path.
func (c *Converter) Convert(ctx context.Context, inputPath, outputDir string) (Result, error) {
	res, err := c.convert(ctx, inputPath, outputDir)
	if err != nil {
		c.metrics.ConversionErrors.WithLabelValues(domain.ErrorKind(err)).Inc()
		return Result{}, err
	}
	c.metrics.FilesConverted.Inc()
	c.metrics.Samples.WithLabelValues("valid").Add(float64(res.ValidCount))
	c.metrics.Samples.WithLabelValues("missing").Add(float64(res.MissingCount))
	c.metrics.ConversionDuration.Observe(res.Duration.Seconds())
	return res, nil
}

func (c *Converter) convert(ctx context.Context, inputPath, outputDir string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	elapsed := domain.StartTimer()
	outputPath := OutputPath(inputPath, outputDir)

	grid, err := c.readGrid(inputPath)
	if err != nil {
		return Result{}, err
	}
	band, err := domain.Rescale(grid, c.profile.Tolerance)
	if err != nil {
		return Result{}, fmt.Errorf("rescale %s: %w", inputPath, err)
	}
	stats, hasStats := domain.ComputeStatistics(band, domain.Mask(grid, c.profile.Tolerance))
	gt := domain.GeoTransformFromCenter(float64(grid.FirstLat), float64(grid.FirstLon), c.profile.PixelSize)

	c.logger.Debug("writing raster",
		"output", outputPath,
		"product", grid.Product,
		"width", band.Width,
		"height", band.Height,
		"valid", band.ValidCount,
		"missing", band.MissingCount,
	)
	if err := c.writeRaster(outputPath, band, gt, stats, hasStats); err != nil {
		return Result{}, err
	}

	return Result{
		InputPath:    inputPath,
		OutputPath:   outputPath,
		Product:      grid.Product,
		Width:        band.Width,
		Height:       band.Height,
		ValidCount:   band.ValidCount,
		MissingCount: band.MissingCount,
		GeoTransform: gt,
		Bounds:       gt.Bounds(band.Width, band.Height),
		Statistics:   stats,
		HasStats:     hasStats,
		Duration:     elapsed(),
	}, nil
}

// readGrid reads everything needed from the input and closes it.
func (c *Converter) readGrid(path string) (domain.SourceGrid, error) {
	r, err := c.opener.Open(path)
	if err != nil {
		return domain.SourceGrid{}, err
	}
	grid, err := domain.ReadSourceGrid(r)
	if cerr := r.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return domain.SourceGrid{}, fmt.Errorf("read %s: %w", path, err)
	}
	return grid, nil
}

func (c *Converter) writeRaster(path string, band domain.Band, gt domain.GeoTransform, stats domain.BandStatistics, hasStats bool) error {
	w, err := c.creator.Create(path, band.Width, band.Height, c.profile.DataType)
	if err != nil {
		return err
	}
	if err := fillRaster(w, band, gt, c.profile.CRS, stats, hasStats); err != nil {
		if derr := w.Discard(); derr != nil {
			c.logger.Warn("discard partial raster failed", "output", path, "error", derr)
		}
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func fillRaster(w domain.RasterWriter, band domain.Band, gt domain.GeoTransform, crs string, stats domain.BandStatistics, hasStats bool) error {
	if err := w.WriteBand(band.Values); err != nil {
		return err
	}
	if err := w.SetGeoTransform(gt); err != nil {
		return err
	}
	if err := w.SetProjection(crs); err != nil {
		return err
	}
	if err := w.SetNoDataValue(band.NoData); err != nil {
		return err
	}
	if !hasStats {
		return nil
	}
	md := stats.Metadata()
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if err := w.SetMetadata(k, md[k]); err != nil {
			return err
		}
	}
	return nil
}
