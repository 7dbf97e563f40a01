package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_RegistersAndIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg, "products")

	r.CacheHit()
	r.CacheHit()
	r.CacheMiss()
	r.LockAcquired()
	r.LockStolen()
	r.LoaderInvoked()
	r.LoaderDuration(250 * time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(r.hits))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.misses))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.lockAcquired))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.lockStolen))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.loaderInvoked))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}

func TestRecorder_DuplicateNameInSeparateRegistriesIsFine(t *testing.T) {
	regA := prometheus.NewRegistry()
	regB := prometheus.NewRegistry()

	assert.NotPanics(t, func() {
		NewRecorder(regA, "products")
		NewRecorder(regB, "products")
	})
}
