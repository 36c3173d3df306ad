package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/policy-eval/internal/store"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a rescoring fixture.
type Fixture struct {
	Description  string          `json:"description"`
	RunID        string          `json:"run_id,omitempty"`
	HorizonIndex int             `json:"horizon_index"`
	Windows      []FixtureWindow `json:"windows"`
	Expected     FixtureExpected `json:"expected"`
}

// FixtureWindow mirrors store.WindowRecord with JSON tags.
type FixtureWindow struct {
	Step      int         `json:"step"`
	Predicted [][]float32 `json:"predicted"`
	Truth     []float32   `json:"truth"`
}

// FixtureExpected is the reference score of a fixture.
type FixtureExpected struct {
	L1        float64 `json:"l1"`
	Windows   int     `json:"windows"`
	Tolerance float64 `json:"tolerance"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// WriteFixture writes f as indented JSON.
func WriteFixture(path string, f *Fixture) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// ToWindows converts fixture windows to store records.
func (f *Fixture) ToWindows() []store.WindowRecord {
	out := make([]store.WindowRecord, len(f.Windows))
	for i, w := range f.Windows {
		out[i] = store.WindowRecord{
			RunID:       f.RunID,
			WindowIndex: i,
			Step:        w.Step,
			Predicted:   w.Predicted,
			Truth:       w.Truth,
		}
	}
	return out
}

// FromWindows builds a fixture from stored windows and their recorded score.
func FromWindows(runID string, horizonIndex int, windows []store.WindowRecord, l1 float64) *Fixture {
	f := &Fixture{
		Description:  fmt.Sprintf("exported from run %s", runID),
		RunID:        runID,
		HorizonIndex: horizonIndex,
		Windows:      make([]FixtureWindow, len(windows)),
		Expected:     FixtureExpected{L1: l1, Windows: len(windows), Tolerance: 1e-6},
	}
	for i, w := range windows {
		f.Windows[i] = FixtureWindow{Step: w.Step, Predicted: w.Predicted, Truth: w.Truth}
	}
	return f
}

// #endregion fixture-loader
