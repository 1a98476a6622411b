package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ryanbastic/go-pixelwall/internal/ledger"
)

// StatsSource is the read side of the ledger the collector scrapes.
type StatsSource interface {
	Stats() ledger.Stats
}

// LedgerCollector exports ledger occupancy at scrape time. Sessions is
// optional and reports the number of live interactive sessions.
type LedgerCollector struct {
	ledger   StatsSource
	sessions func() int

	liveCells   *prometheus.Desc
	records     *prometheus.Desc
	gridSize    *prometheus.Desc
	sessionsNow *prometheus.Desc
}

// NewLedgerCollector creates a collector for l. sessions may be nil.
func NewLedgerCollector(l StatsSource, sessions func() int) *LedgerCollector {
	return &LedgerCollector{
		ledger:   l,
		sessions: sessions,
		liveCells: prometheus.NewDesc(namespace+"_ledger_live_cells",
			"Cells currently held by an unexpired claim.", nil, nil),
		records: prometheus.NewDesc(namespace+"_ledger_records",
			"Ownership records kept by the ledger.", nil, nil),
		gridSize: prometheus.NewDesc(namespace+"_ledger_grid_size",
			"Side length of the square grid.", nil, nil),
		sessionsNow: prometheus.NewDesc(namespace+"_sessions_active",
			"Interactive sessions currently open.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *LedgerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.liveCells
	ch <- c.records
	ch <- c.gridSize
	if c.sessions != nil {
		ch <- c.sessionsNow
	}
}

// Collect implements prometheus.Collector.
func (c *LedgerCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.ledger.Stats()
	ch <- prometheus.MustNewConstMetric(c.liveCells, prometheus.GaugeValue, float64(s.LiveCells))
	ch <- prometheus.MustNewConstMetric(c.records, prometheus.GaugeValue, float64(s.Records))
	ch <- prometheus.MustNewConstMetric(c.gridSize, prometheus.GaugeValue, float64(s.GridSize))
	if c.sessions != nil {
		ch <- prometheus.MustNewConstMetric(c.sessionsNow, prometheus.GaugeValue, float64(c.sessions()))
	}
}
