// Command h5geotiff converts DSSF HDF5 products into georeferenced GeoTIFFs.
//
// Usage:
//
//	h5geotiff [flags] <output-dir> <input.h5>...
//
// Converted rasters can be checked against their sources with cmd/verify.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/h5geotiff/internal/adapter/geotiff"
	"github.com/couchcryptid/h5geotiff/internal/adapter/hdf5"
	"github.com/couchcryptid/h5geotiff/internal/config"
	"github.com/couchcryptid/h5geotiff/internal/domain"
	"github.com/couchcryptid/h5geotiff/internal/observability"
	"github.com/couchcryptid/h5geotiff/internal/pipeline"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// flags holds command-line overrides. Empty strings mean "not given".
type flags struct {
	configPath      string
	logLevel        string
	logFormat       string
	tolerance       float64
	metricsTextfile string
}

type app struct {
	stdout io.Writer
	stderr io.Writer

	opts       flags
	cfg        *config.Config
	logger     *slog.Logger
	opener     domain.ContainerOpener
	newLogger  func(*config.Config) *slog.Logger
	newMetrics func() *observability.Metrics
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{
		stdout:     stdout,
		stderr:     stderr,
		opener:     hdf5.NewOpener(),
		newLogger:  observability.NewLogger,
		newMetrics: observability.NewMetrics,
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
			a.logger.Error("h5geotiff failed", "kind", domain.ErrorKind(err), "error", err)
		} else {
			fmt.Fprintf(a.stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "h5geotiff [flags] <output-dir> <input>...",
		Short: "Convert DSSF HDF5 products to GeoTIFF",
		Long: `h5geotiff reads the product array named by each input's PRODUCT attribute,
divides valid samples by SCALING_FACTOR, keeps MISSING_VALUE samples as no-data and
writes <output-dir>/<input-name>.tif georeferenced on a regular latitude/longitude grid.`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE:       a.setup,
		RunE:          a.convert,
	}

	f := root.Flags()
	f.StringVar(&a.opts.configPath, "config", "", "TOML grid profile (overrides H5GEOTIFF_PROFILE)")
	f.StringVar(&a.opts.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	f.StringVar(&a.opts.logFormat, "log-format", "", "log format: json or text (overrides LOG_FORMAT)")
	f.Float64Var(&a.opts.tolerance, "tolerance", domain.DefaultTolerance, "missing-value match tolerance (overrides the profile)")
	f.StringVar(&a.opts.metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file after the run")
	return root
}

// setup loads configuration, applies flag overrides and builds the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	overrides := config.Overrides{
		ProfilePath:     a.opts.configPath,
		LogLevel:        a.opts.logLevel,
		LogFormat:       a.opts.logFormat,
		MetricsTextfile: a.opts.metricsTextfile,
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

func (a *app) convert(cmd *cobra.Command, args []string) error {
	outDir, inputs := args[0], args[1:]

	a.logger.Debug("creating output directory", "dir", outDir)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("%w: cannot create output directory %s: %w", domain.ErrConfiguration, outDir, err)
	}

	metrics := a.newMetrics()
	conv, err := pipeline.NewConverter(a.opener, geotiff.NewCreator(""), a.cfg.Profile, a.logger, metrics)
	if err != nil {
		return err
	}
	p := pipeline.New(conv, a.logger, metrics)

	summary, runErr := p.Run(cmd.Context(), outDir, inputs)
	for _, res := range summary.Results {
		a.logger.Info("wrote raster",
			"output", res.OutputPath,
			"width", res.Width,
			"height", res.Height,
			"min_lon", res.Bounds.Min.X,
			"min_lat", res.Bounds.Min.Y,
			"max_lon", res.Bounds.Max.X,
			"max_lat", res.Bounds.Max.Y,
		)
	}

	if a.cfg.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(a.cfg.MetricsTextfile); err != nil {
			a.logger.Warn("metrics textfile not written", "path", a.cfg.MetricsTextfile, "error", err)
		}
	}
	return runErr
}
