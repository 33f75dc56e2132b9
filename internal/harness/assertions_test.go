package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Step: 1, Kind: KindCmd, Text: "pay"},
		{Step: 1, Kind: KindPour, Text: "#1 cola unit=1 outcome=completed"},
		{Step: 1, Kind: KindPour, Text: "#2 cola unit=2 outcome=underfilled"},
		{Step: 1, Kind: KindOrder, Text: "order-1 partial"},
	}
}

func TestAssertTraceContains(t *testing.T) {
	assert.NoError(t, assertTraceContains(sampleTrace(), Assertion{Text: "underfilled"}))

	err := assertTraceContains(sampleTrace(), Assertion{Text: "hardware_fault"})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertTraceContains, ae.Type)
	assert.Contains(t, err.Error(), "Full trace:")
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Texts: []string{"pay", "completed", "partial"}}))
	assert.Error(t, assertTraceOrder(trace, Assertion{Texts: []string{"partial", "pay"}}))
	assert.Error(t, assertTraceOrder(trace, Assertion{Texts: []string{"pay", "estop"}}))
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Kind: KindPour, Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Kind: KindEstop, Count: 0}))
	assert.Error(t, assertTraceCount(trace, Assertion{Kind: KindPour, Count: 1}))
}
