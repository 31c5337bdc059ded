package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dameikle/tika/internal/driver"
	"github.com/dameikle/tika/internal/types"
)

func TestObserveNode(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := New(reg)

	ok := types.NewMetadata()
	ok.Add(types.KeyParsedBy, "ole.Ole10NativeTranslator")
	ok.Add(types.KeyParsedBy, "text.Extractor")
	o.ObserveNode(&driver.Node{
		Path:     []int{0},
		State:    driver.StateCompleted,
		Format:   "text/plain; charset=UTF-8",
		Metadata: ok,
	}, 20*time.Millisecond)

	failed := types.NewMetadata()
	failed.Add(types.WarningKey(types.NoExtractorAvailable), "no extractor for application/octet-stream")
	failed.Add(types.WarningKey(types.MalformedInput), "one")
	failed.Add(types.WarningKey(types.MalformedInput), "two")
	o.ObserveNode(&driver.Node{
		State:    driver.StateFailed,
		Format:   types.FormatOctetStream,
		Metadata: failed,
	}, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(o.nodes.WithLabelValues("text/plain", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.nodes.WithLabelValues("application/octet-stream", "failed-non-fatal")))
	assert.Equal(t, 2.0, testutil.ToFloat64(o.warnings.WithLabelValues("MalformedInputError")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.warnings.WithLabelValues("NoExtractorAvailable")))

	n, err := testutil.GatherAndCount(reg, "tika_node_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one series per extractor label")
	assert.Equal(t, 1, testutil.CollectAndCount(o.depth))
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
