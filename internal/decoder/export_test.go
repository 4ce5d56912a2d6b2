package decoder

import "github.com/prometheus/client_golang/prometheus/testutil"

// EventsCount returns the number of events counted with category and result.
func (d *Decoder) EventsCount(category, result string) float64 {
	return testutil.ToFloat64(d.events.WithLabelValues(category, result))
}
