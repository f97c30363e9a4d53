package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"
)

// WriteSummary prints the per-unit table followed by run totals.
func (r *Report) WriteSummary(w io.Writer) error {
	outcomes := r.Outcomes()

	bw := &errWriter{w: w}
	rule := strings.Repeat("=", 72)

	bw.printf("%s\n", rule)
	bw.printf("ETL SUMMARY  run %s\n", r.RunID)
	bw.printf("%s\n", rule)

	tw := tabwriter.NewWriter(bw, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tENDPOINT\tSTATUS\tROWS\tATTEMPTS\tDURATION\tDETAIL")
	for _, o := range outcomes {
		detail := ""
		if !o.Succeeded() {
			detail = fmt.Sprintf("%s: %s", o.Stage, o.Reason)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			o.Unit.Symbol,
			o.Unit.Endpoint,
			o.Status,
			o.RowsWritten,
			o.Attempts,
			o.Duration.Round(time.Millisecond),
			detail,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	bw.printf("%s\n", rule)
	bw.printf("units: %d  succeeded: %d  failed: %d  rows: %d  duration: %s\n",
		len(outcomes), r.Succeeded(), r.Failed(), r.RowsWritten(), r.Duration().Round(time.Millisecond))
	return bw.err
}

// errWriter keeps the first write error and drops later writes.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}

func (e *errWriter) printf(format string, args ...any) {
	fmt.Fprintf(e, format, args...)
}
