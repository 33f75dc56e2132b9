package harness

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareGolden(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "golden")
	result := NewResult()
	result.AddTrace(1, KindCmd, "checkout")
	result.AddTrace(1, KindState, "selecting lines=0 units=0 total=0.00")

	require.NoError(t, CompareGolden(dir, "demo", result, true))
	data, err := os.ReadFile(filepath.Join(dir, "demo.golden"))
	require.NoError(t, err)
	assert.Equal(t, "scenario: demo\n01 cmd        checkout\n01 state      selecting lines=0 units=0 total=0.00\n", string(data))

	require.NoError(t, CompareGolden(dir, "demo", result, false))

	result.AddTrace(2, KindCmd, "pay")
	err = CompareGolden(dir, "demo", result, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGoldenMismatch))
	assert.Contains(t, err.Error(), "line 4")
}

func TestCompareGolden_MissingFile(t *testing.T) {
	err := CompareGolden(t.TempDir(), "absent", NewResult(), false)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrGoldenMismatch))
}
