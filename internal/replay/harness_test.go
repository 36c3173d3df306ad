package replay

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/policy-eval/internal/eval"
	"github.com/danielpatrickdp/policy-eval/internal/policy"
	"github.com/danielpatrickdp/policy-eval/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// #region fixture-tests

// TestFixture_TwoWindows is the regression baseline for the L1 reduction.
// Only horizon index 0 is scored, so the 9s in the first chunk never count.
func TestFixture_TwoWindows(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "two_windows.json"))
	require.NoError(t, err)

	res, err := Rescore(f.ToWindows(), Options{HorizonIndex: f.HorizonIndex})
	require.NoError(t, err)

	ok, reason := Check(res, f.Expected)
	assert.True(t, ok, reason)
	require.Len(t, res.PerWindow, 2)
	assert.InDelta(t, 0.4/3, res.PerWindow[0], 1e-6)
	assert.InDelta(t, 1.0/3, res.PerWindow[1], 1e-6)
}

func TestLoadFixture_NotFound(t *testing.T) {
	_, err := LoadFixture("testdata/nonexistent.json")
	assert.Error(t, err)
}

func TestLoadFixture_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not valid json}"), 0o644))
	_, err := LoadFixture(path)
	assert.Error(t, err)
}

func TestFixture_WriteAndReload(t *testing.T) {
	windows := []store.WindowRecord{
		{WindowIndex: 0, Step: 1, Predicted: [][]float32{{1, 2}}, Truth: []float32{1, 1}},
		{WindowIndex: 1, Step: 2, Predicted: [][]float32{{0, 0}}, Truth: []float32{0, 0}},
	}
	f := FromWindows("run-1", 0, windows, 0.25)
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, WriteFixture(path, f))

	g, err := LoadFixture(path)
	require.NoError(t, err)
	assert.Equal(t, "run-1", g.RunID)
	assert.Equal(t, 2, g.Expected.Windows)

	res, err := Rescore(g.ToWindows(), Options{})
	require.NoError(t, err)
	ok, reason := Check(res, g.Expected)
	assert.True(t, ok, reason)
}

// #endregion fixture-tests

// #region rescore-tests

func TestRescore_Unnormalize(t *testing.T) {
	windows := []store.WindowRecord{
		{Predicted: [][]float32{{0, 0}}, Truth: []float32{1, 2}},
	}
	stats := &policy.ActionStatistics{Mean: []float32{1, 2}, Std: []float32{1, 1}}

	raw, err := Rescore(windows, Options{})
	require.NoError(t, err)
	assert.InDelta(t, 1.5, raw.Summary.L1, 1e-9)

	un, err := Rescore(windows, Options{Unnormalize: stats})
	require.NoError(t, err)
	assert.Equal(t, 0.0, un.Summary.L1)
}

func TestRescore_Errors(t *testing.T) {
	_, err := Rescore(nil, Options{})
	assert.True(t, errors.Is(err, eval.ErrEmpty))

	windows := []store.WindowRecord{{Predicted: [][]float32{{1}}, Truth: []float32{1}}}
	_, err = Rescore(windows, Options{HorizonIndex: 2})
	assert.True(t, errors.Is(err, eval.ErrShapeMismatch))
}

func TestRescore_ZeroWidthFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty_dims.json")
	doc := `{"horizon_index": 0, "windows": [{"step": 1, "predicted": [[]], "truth": []}], "expected": {"l1": 0}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	f, err := LoadFixture(path)
	require.NoError(t, err)
	_, err = Rescore(f.ToWindows(), Options{})
	assert.True(t, errors.Is(err, eval.ErrEmpty))
}

func TestCheck_Drift(t *testing.T) {
	res := Result{Summary: eval.Summary{L1: 0.5, Windows: 3}}

	ok, _ := Check(res, FixtureExpected{L1: 0.5, Windows: 3})
	assert.True(t, ok)

	ok, reason := Check(res, FixtureExpected{L1: 0.4, Windows: 3, Tolerance: 0.01})
	assert.False(t, ok)
	assert.Contains(t, reason, "l1")

	ok, reason = Check(res, FixtureExpected{L1: 0.5, Windows: 4})
	assert.False(t, ok)
	assert.Contains(t, reason, "windows")
}

// #endregion rescore-tests
