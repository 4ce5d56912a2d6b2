package ingest

import "github.com/prometheus/client_golang/prometheus/testutil"

// BatchesCount returns the number of batches counted with result.
func (p Processor) BatchesCount(result string) float64 {
	return testutil.ToFloat64(p.batches.WithLabelValues(result))
}
