package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_CountsOutcomes(t *testing.T) {
	r := New()

	r.Reconciled("latest", OutcomeChanged, "", 2*time.Second)
	r.Reconciled("latest", OutcomeUnchanged, "", time.Second)
	r.Reconciled("present", OutcomeFailed, "OCCUPIED_PATH", time.Millisecond)
	r.Reconciled("present", OutcomeFailed, "", time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.reconciliations.WithLabelValues("latest", OutcomeChanged)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.reconciliations.WithLabelValues("latest", OutcomeUnchanged)))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.reconciliations.WithLabelValues("present", OutcomeFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.failures.WithLabelValues("OCCUPIED_PATH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.failures.WithLabelValues("UNKNOWN")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.duration))
}

func TestRecorder_CountsActions(t *testing.T) {
	r := New()
	r.Action("clone")
	r.Action("fetch")
	r.Action("fetch")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.actions.WithLabelValues("clone")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.actions.WithLabelValues("fetch")))
}

func TestRecorder_RegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.Action("clone")

	assert.Equal(t, 0.0, testutil.ToFloat64(b.actions.WithLabelValues("clone")))
}

func TestRecorder_NilIsSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Action("clone")
		r.Reconciled("present", OutcomeFailed, "TIMEOUT", time.Second)
	})
	assert.Nil(t, r.Registry())
	assert.NoError(t, r.WriteTextfile(filepath.Join(t.TempDir(), "unused.prom")))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := New()
	r.Action("checkout")

	path := filepath.Join(t.TempDir(), "vcsrepo.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `vcsrepo_actions_total{action="checkout"} 1`)
}
