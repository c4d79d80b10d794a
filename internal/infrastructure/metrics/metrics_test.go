package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/siga-gateway/internal/domain/entity"
	"github.com/jhoicas/siga-gateway/internal/infrastructure/metrics"
)

func TestRecorder(t *testing.T) {
	r := metrics.NewRecorder()

	r.SigningStarted(entity.SigningTypeMobileID)
	r.SigningStarted(entity.SigningTypeMobileID)
	r.SigningCompleted(entity.SigningTypeMobileID)
	r.SigningRejected(entity.SigningTypeRemote, "invalid_state")
	r.ProviderStatus(entity.SigningTypeSmartID, entity.StatusOutstandingTransaction)
	r.ContainerImported(1, 0)
	r.ContainerExported(2048)
	r.ContainerRejected("read")
	r.SessionsExpired(3)

	n, err := testutil.GatherAndCount(r.Registry(),
		"siga_signing_started_total", "siga_signing_completed_total", "siga_signing_rejected_total",
		"siga_provider_status_total", "siga_container_imported_total", "siga_container_exported_bytes",
		"siga_container_rejected_total", "siga_session_expired_total")
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	families, err := r.Registry().Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				values[mf.GetName()] += c.GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, values["siga_signing_started_total"])
	assert.Equal(t, 1.0, values["siga_signing_completed_total"])
	assert.Equal(t, 3.0, values["siga_session_expired_total"])
}
