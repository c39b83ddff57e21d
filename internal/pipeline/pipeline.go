package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/h5geotiff/internal/domain"
	"github.com/couchcryptid/h5geotiff/internal/observability"
)

// FileConverter converts a single input file into outputDir.
type FileConverter interface {
	Convert(ctx context.Context, inputPath, outputDir string) (Result, error)
}

// Summary describes a batch run. Results holds one entry per file converted
// before the run ended.
type Summary struct {
	Results  []Result
	Duration time.Duration
}

// Converted returns the number of files written.
func (s Summary) Converted() int { return len(s.Results) }

// Pipeline drives a batch of conversions in input order.
type Pipeline struct {
	converter FileConverter
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a Pipeline with the given converter and observability.
func New(c FileConverter, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		converter: c,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run converts inputs one at a time. It stops at the first failing file and
// returns that file's error along with the results gathered so far. The
// context is checked before each file.
func (p *Pipeline) Run(ctx context.Context, outputDir string, inputs []string) (Summary, error) {
	p.logger.Info("pipeline started", "files", len(inputs), "output_dir", outputDir)
	p.metrics.BatchRunning.Set(1)
	defer p.metrics.BatchRunning.Set(0)

	elapsed := domain.StartTimer()
	var summary Summary
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			p.logger.Info("pipeline stopping", "reason", err, "remaining", len(inputs)-i)
			summary.Duration = elapsed()
			return summary, err
		}

		p.logger.Info(fmt.Sprintf("Processing file (%d/%d) %s", i+1, len(inputs), in))
		res, err := p.converter.Convert(ctx, in, outputDir)
		if err != nil {
			p.logger.Error("conversion failed",
				"input", in,
				"kind", domain.ErrorKind(err),
				"error", err,
			)
			summary.Duration = elapsed()
			return summary, fmt.Errorf("convert %s: %w", in, err)
		}
		p.logger.Debug("conversion finished",
			"output", res.OutputPath,
			"valid", res.ValidCount,
			"missing", res.MissingCount,
			"duration", res.Duration,
		)
		summary.Results = append(summary.Results, res)
	}

	summary.Duration = elapsed()
	p.logger.Info("pipeline finished", "converted", summary.Converted(), "duration", summary.Duration)
	return summary, nil
}
