package metrics

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacoelho/weffo"
)

func TestObserverCountsTransitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, c, err := NewObserver(reg)
	require.NoError(t, err)

	p := weffo.New(weffo.WithObserver(obs))
	var buf bytes.Buffer
	require.NoError(t, p.OutputFromPrototype(
		weffo.StringSource(`<a id="a">x</a>`, "view.xml"),
		weffo.StringSource(`<a>y</a>`, "model.xml"),
		weffo.ToWriter(&buf),
	))
	assert.Equal(t, `<a id="a">y</a>`, buf.String())

	for _, state := range []string{"META_APPLIED", "INTERMEDIATE_PARSED", "TEMPLATE_COMPILED", "MODEL_APPLIED", "OUTPUT_WRITTEN"} {
		assert.InDelta(t, 1, testutil.ToFloat64(c.Transitions.WithLabelValues(state)), 0, state)
	}

	_, err = p.Compile(weffo.StringSource(`<a>`, "broken.xml"))
	require.Error(t, err)
	assert.InDelta(t, 1, testutil.ToFloat64(c.Failures.WithLabelValues("meta-apply", "weffo-parse")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.Transitions.WithLabelValues("FAILED")), 0)

	n, err := testutil.GatherAndCount(reg, "weffo_stage_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestNewObserverRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, _, err := NewObserver(reg)
	require.NoError(t, err)
	_, _, err = NewObserver(reg)
	assert.Error(t, err)
}
