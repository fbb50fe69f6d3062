package metrics

import (
	"context"
	"time"

	"video-pipeline/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats(ctx context.Context) (Stats, error)
}

// Stats holds the current pipeline statistics.
type Stats struct {
	QueueDepth   int
	JobsInFlight int
	JobsByStatus map[string]int
}

// Collector periodically collects and updates gauge metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.interval)
	defer cancel()

	stats, err := c.statsProvider.GetStats(ctx)
	if err != nil {
		logging.Warn("metrics collection failed: %v", err)
		return
	}

	WorkerQueueDepth.Set(float64(stats.QueueDepth))
	JobsInFlight.Set(float64(stats.JobsInFlight))
	for status, n := range stats.JobsByStatus {
		JobsByStatus.WithLabelValues(status).Set(float64(n))
	}
}
