package authkit

func (e *Engine) metricInc(id MetricID) {
	if e.metrics != nil {
		e.metrics.Inc(id)
	}
}

// MetricsSnapshot returns a point-in-time copy of all engine counters. The
// returned snapshot is safe to retain.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}
