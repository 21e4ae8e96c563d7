package obs_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-grocery/internal/obs"
)

func TestDomainMetricsHelpers(t *testing.T) {
	obs.MustRegisterDomainMetrics("grocery", prometheus.NewRegistry())

	before := testutil.ToFloat64(obs.DiscountEvaluationsTotal.WithLabelValues("BOGO", "applied"))
	obs.IncDiscountEvaluation("BOGO", "applied")
	require.Equal(t, before+1, testutil.ToFloat64(obs.DiscountEvaluationsTotal.WithLabelValues("BOGO", "applied")))

	before = testutil.ToFloat64(obs.StoreLookupsTotal.WithLabelValues("nearest", "empty"))
	obs.IncStoreLookup("nearest", "empty")
	require.Equal(t, before+1, testutil.ToFloat64(obs.StoreLookupsTotal.WithLabelValues("nearest", "empty")))

	obs.ObserveStoreDirectoryLatency(42)
	require.NotZero(t, testutil.CollectAndCount(obs.StoreDirectoryLatency))
}
