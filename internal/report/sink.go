package report

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/schollz/progressbar/v3"

	"github.com/rickgao/stock-data/internal/model"
)

// LogSink logs one line per outcome.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger uses slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(o model.RunOutcome) {
	if o.Succeeded() {
		s.logger.Info("unit succeeded",
			"symbol", o.Unit.Symbol,
			"endpoint", o.Unit.Endpoint.String(),
			"rows", o.RowsWritten,
			"attempts", o.Attempts,
			"duration", o.Duration,
		)
		return
	}
	s.logger.Error("unit failed",
		"symbol", o.Unit.Symbol,
		"endpoint", o.Unit.Endpoint.String(),
		"stage", o.Stage,
		"reason", o.Reason,
		"attempts", o.Attempts,
		"duration", o.Duration,
	)
}

// ProgressSink advances a terminal progress bar per outcome.
type ProgressSink struct {
	bar *progressbar.ProgressBar
}

// NewProgressSink creates a bar sized for total units, drawn on w.
func NewProgressSink(w io.Writer, total int) *ProgressSink {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Loading"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	return &ProgressSink{bar: bar}
}

func (s *ProgressSink) Record(o model.RunOutcome) {
	s.bar.Describe(fmt.Sprintf("Loading %s", o.Unit))
	_ = s.bar.Add(1)
}

// Close finishes the bar.
func (s *ProgressSink) Close() error {
	return s.bar.Finish()
}

// MultiSink fans an outcome out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Record(o model.RunOutcome) {
	for _, s := range m {
		if s != nil {
			s.Record(o)
		}
	}
}
