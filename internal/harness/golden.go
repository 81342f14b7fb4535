package harness

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders a scenario run as text: the scenario name, one line
// per trace event and the final view.
//
//	scenario vote_toggle
//	step 1 intent load_city city=sf
//	step 2 settle city.resolve
//	--- view
//	city sf "San Francisco"
//	...
func Snapshot(name string, r *Result) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "scenario %s\n", name)
	for _, ev := range r.Trace {
		fmt.Fprintf(&buf, "%s\n", ev)
	}
	buf.WriteString("--- view\n")
	if r.View != nil {
		if err := r.View.WriteText(&buf); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}

	snapshot, err := Snapshot(scenario.Name, result)
	if err != nil {
		return nil, fmt.Errorf("render snapshot: %w", err)
	}
	AssertGolden(t, scenario.Name, snapshot)
	return result, nil
}

// AssertGolden compares data against testdata/golden/{name}.golden.
func AssertGolden(t *testing.T, name string, data []byte) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
