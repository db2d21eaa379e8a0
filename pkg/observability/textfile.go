package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Sumatoshi-tech/covarchive/pkg/coverage"
)

const (
	gaugeNamespace = "covarchive"

	labelApplication = "application"
	labelTarget      = "target"
)

// CoverageGauges exposes the latest archived report per target as
// Prometheus gauges.
type CoverageGauges struct {
	ratio      *prometheus.GaugeVec
	executable *prometheus.GaugeVec
	covered    *prometheus.GaugeVec
}

// NewCoverageGauges creates the gauges and registers them with reg.
func NewCoverageGauges(reg prometheus.Registerer) (*CoverageGauges, error) {
	labels := []string{labelApplication, labelTarget}

	g := &CoverageGauges{
		ratio: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: gaugeNamespace,
			Name:      "target_coverage_ratio",
			Help:      "Covered to executable line ratio of a target, 0 when it has no executable lines.",
		}, labels),
		executable: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: gaugeNamespace,
			Name:      "target_executable_lines",
			Help:      "Executable lines of a target.",
		}, labels),
		covered: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: gaugeNamespace,
			Name:      "target_covered_lines",
			Help:      "Covered lines of a target.",
		}, labels),
	}

	for _, c := range []prometheus.Collector{g.ratio, g.executable, g.covered} {
		err := reg.Register(c)
		if err != nil {
			return nil, fmt.Errorf("register coverage gauge: %w", err)
		}
	}

	return g, nil
}

// Observe replaces the gauge values for application with the targets of meta.
func (g *CoverageGauges) Observe(meta coverage.MetaReport) {
	if g == nil {
		return
	}

	app := meta.FileInfo.Application

	for _, vec := range []*prometheus.GaugeVec{g.ratio, g.executable, g.covered} {
		vec.DeletePartialMatch(prometheus.Labels{labelApplication: app})
	}

	for _, target := range meta.Coverage.Targets {
		g.ratio.WithLabelValues(app, target.Name).Set(target.Coverage())
		g.executable.WithLabelValues(app, target.Name).Set(float64(target.ExecutableLines()))
		g.covered.WithLabelValues(app, target.Name).Set(float64(target.CoveredLines()))
	}
}

// WriteTextfile writes everything gathered by g to path in the text
// exposition format, atomically.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	err := prometheus.WriteToTextfile(path, g)
	if err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}

	return nil
}
