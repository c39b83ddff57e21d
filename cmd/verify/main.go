// Command verify checks a GeoTIFF written by h5geotiff against the HDF5
// product it was converted from: dimensions, pixel values, georeference,
// coordinate system and no-data value.
//
// Usage:
//
//	verify [flags] <input.h5> <output.tif>
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/h5geotiff/internal/adapter/geotiff"
	"github.com/couchcryptid/h5geotiff/internal/adapter/hdf5"
	"github.com/couchcryptid/h5geotiff/internal/config"
	"github.com/couchcryptid/h5geotiff/internal/domain"
	"github.com/couchcryptid/h5geotiff/internal/observability"
	"github.com/spf13/cobra"
)

// geoTransformEpsilon bounds the difference allowed between the expected and
// stored geotransform coefficients.
const geoTransformEpsilon = 1e-9

// maxReportedSamples caps the per-sample detail lines of the pixel phase.
const maxReportedSamples = 10

var errVerifyFailed = errors.New("verification failed")

// phase tracks pass/fail for a verification phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type flags struct {
	configPath string
	logLevel   string
	logFormat  string
	tolerance  float64
}

type app struct {
	stdout io.Writer
	stderr io.Writer

	opts      flags
	cfg       *config.Config
	logger    *slog.Logger
	opener    domain.ContainerOpener
	newLogger func(*config.Config) *slog.Logger
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{
		stdout:    stdout,
		stderr:    stderr,
		opener:    hdf5.NewOpener(),
		newLogger: observability.NewLogger,
	}
	return a.execute(ctx, args)
}

func (a *app) execute(ctx context.Context, args []string) int {
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		if a.logger != nil {
			a.logger.Error("verify failed", "kind", domain.ErrorKind(err), "error", err)
		} else {
			fmt.Fprintf(a.stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "verify [flags] <input.h5> <output.tif>",
		Short: "Check a converted GeoTIFF against its HDF5 source",
		Long: `verify recomputes the band h5geotiff would write for <input.h5> under the
same grid profile and compares it with <output.tif>. It prints a PASS/FAIL table
and exits non-zero when any check fails.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE:       a.setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.verify(cmd.OutOrStdout(), args[0], args[1])
		},
	}

	f := root.Flags()
	f.StringVar(&a.opts.configPath, "config", "", "TOML grid profile used for the conversion (overrides H5GEOTIFF_PROFILE)")
	f.StringVar(&a.opts.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	f.StringVar(&a.opts.logFormat, "log-format", "", "log format: json or text (overrides LOG_FORMAT)")
	f.Float64Var(&a.opts.tolerance, "tolerance", domain.DefaultTolerance, "missing-value match tolerance used for the conversion")
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	overrides := config.Overrides{
		ProfilePath: a.opts.configPath,
		LogLevel:    a.opts.logLevel,
		LogFormat:   a.opts.logFormat,
	}
	if cmd.Flags().Changed("tolerance") {
		overrides.Tolerance = &a.opts.tolerance
	}
	if err := cfg.Apply(overrides); err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = a.newLogger(cfg)
	return nil
}

func (a *app) verify(out io.Writer, inputPath, outputPath string) error {
	r, err := a.opener.Open(inputPath)
	if err != nil {
		return err
	}
	grid, err := domain.ReadSourceGrid(r)
	if cerr := r.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", inputPath, err)
	}

	raster, err := geotiff.Read(outputPath)
	if err != nil {
		return err
	}

	phases, err := verifyRaster(grid, a.cfg.Profile, raster)
	if err != nil {
		return err
	}
	if !report(out, inputPath, outputPath, phases) {
		return fmt.Errorf("%w: %s", errVerifyFailed, outputPath)
	}
	a.logger.Debug("verification passed", "input", inputPath, "output", outputPath)
	return nil
}

// verifyRaster recomputes the expected band for grid under profile and
// compares it with raster.
func verifyRaster(grid domain.SourceGrid, profile domain.GridProfile, raster *geotiff.Raster) ([]*phase, error) {
	band, err := domain.Rescale(grid, profile.Tolerance)
	if err != nil {
		return nil, err
	}
	wantEPSG, err := geotiff.EPSGCode(profile.CRS)
	if err != nil {
		return nil, err
	}
	gt := domain.GeoTransformFromCenter(float64(grid.FirstLat), float64(grid.FirstLon), profile.PixelSize)

	return []*phase{
		checkDimensions(raster, band),
		checkValues(raster, band),
		checkGeoreference(raster, band, gt),
		checkCRS(raster, wantEPSG),
		checkNoData(raster, band),
	}, nil
}

func checkDimensions(raster *geotiff.Raster, band domain.Band) *phase {
	p := &phase{name: "Dimensions"}
	if raster.Width != band.Width || raster.Height != band.Height {
		p.errorf("raster is %dx%d, source grid is %dx%d (NC x NL)", raster.Width, raster.Height, band.Width, band.Height)
	}
	return p
}

func checkValues(raster *geotiff.Raster, band domain.Band) *phase {
	p := &phase{name: "Pixel values"}
	if len(raster.Data) != len(band.Values) {
		p.errorf("raster has %d samples, expected %d", len(raster.Data), len(band.Values))
		return p
	}
	mismatches := 0
	for i, want := range band.Values {
		if raster.Data[i] == want {
			continue
		}
		if mismatches < maxReportedSamples {
			p.errorf("row %d col %d: got %d, want %d", i/band.Width, i%band.Width, raster.Data[i], want)
		}
		mismatches++
	}
	if mismatches > maxReportedSamples {
		p.errorf("... %d mismatching samples in total", mismatches)
	}
	return p
}

func checkGeoreference(raster *geotiff.Raster, band domain.Band, gt domain.GeoTransform) *phase {
	p := &phase{name: "Georeference"}
	if !raster.HasGeoTransform {
		p.errorf("raster carries no geotransform")
		return p
	}
	for i := range gt {
		if math.Abs(raster.GeoTransform[i]-gt[i]) > geoTransformEpsilon {
			p.errorf("geotransform[%d]: got %v, want %v", i, raster.GeoTransform[i], gt[i])
		}
	}
	got := raster.GeoTransform.Bounds(raster.Width, raster.Height)
	want := gt.Bounds(band.Width, band.Height)
	if math.Abs(got.Min.X-want.Min.X) > geoTransformEpsilon || math.Abs(got.Min.Y-want.Min.Y) > geoTransformEpsilon ||
		math.Abs(got.Max.X-want.Max.X) > geoTransformEpsilon || math.Abs(got.Max.Y-want.Max.Y) > geoTransformEpsilon {
		p.errorf("extent %v, want %v", *got, *want)
	}
	return p
}

func checkCRS(raster *geotiff.Raster, wantEPSG int) *phase {
	p := &phase{name: "Coordinate system"}
	if raster.EPSG != wantEPSG {
		p.errorf("GeographicTypeGeoKey %d, want %d", raster.EPSG, wantEPSG)
	}
	return p
}

func checkNoData(raster *geotiff.Raster, band domain.Band) *phase {
	p := &phase{name: "No-data value"}
	switch {
	case !raster.HasNoData:
		p.errorf("raster carries no no-data value")
	case raster.NoData != band.NoData:
		p.errorf("no-data %v, want %s=%v", raster.NoData, domain.AttrMissingValue, band.NoData)
	}
	return p
}

// report prints the PASS/FAIL table followed by details of failed phases and
// returns whether every phase passed.
func report(out io.Writer, inputPath, outputPath string, phases []*phase) bool {
	fmt.Fprintf(out, "=== Verifying %s against %s ===\n\n", outputPath, inputPath)

	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-24s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll checks passed.")
	} else {
		fmt.Fprintln(out, "\nVerification FAILED.")
	}
	return allPassed
}
