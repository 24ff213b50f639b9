package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	metrictestutil "github.com/epivar-cloud/epivar/internal/metrics/testutil"
)

type MetricsSuite struct {
	suite.Suite
	registry *prometheus.Registry
}

func TestMetricsSuite(t *testing.T) {
	suite.Run(t, new(MetricsSuite))
}

func (s *MetricsSuite) SetupTest() {
	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		StudyRunsTotal,
		StageRunsTotal,
		StageDurationSeconds,
		AnalysisRunsTotal,
		WorkerClaimsTotal,
		WorkerClaimContentionTotal,
		WorkerLeaseExpirationsTotal,
	)
}

func (s *MetricsSuite) TearDownTest() {
	s.registry.Unregister(StudyRunsTotal)
	s.registry.Unregister(StageRunsTotal)
	s.registry.Unregister(StageDurationSeconds)
	s.registry.Unregister(AnalysisRunsTotal)
	s.registry.Unregister(WorkerClaimsTotal)
	s.registry.Unregister(WorkerClaimContentionTotal)
	s.registry.Unregister(WorkerLeaseExpirationsTotal)
}

func (s *MetricsSuite) TestStudyRunsTotalIncrements() {
	before := metrictestutil.CounterValue(s.T(), StudyRunsTotal, "association", "passed")
	StudyRunsTotal.WithLabelValues("association", "passed").Inc()
	after := metrictestutil.CounterValue(s.T(), StudyRunsTotal, "association", "passed")
	s.Equal(before+1, after)
}

func (s *MetricsSuite) TestStageRunsTotalIncrements() {
	before := metrictestutil.CounterValue(s.T(), StageRunsTotal, "intersect-reference", "failed")
	StageRunsTotal.WithLabelValues("intersect-reference", "failed").Inc()
	after := metrictestutil.CounterValue(s.T(), StageRunsTotal, "intersect-reference", "failed")
	s.Equal(before+1, after)
}

func (s *MetricsSuite) TestWorkerCountersIncrement() {
	before := metrictestutil.CounterValue(s.T(), WorkerClaimsTotal, "node-a")
	WorkerClaimsTotal.WithLabelValues("node-a").Inc()
	after := metrictestutil.CounterValue(s.T(), WorkerClaimsTotal, "node-a")
	s.Equal(before+1, after)
}
