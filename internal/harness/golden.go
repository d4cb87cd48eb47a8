package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Transcript renders a result as the plain-text trace kept in golden files:
// every step with its outcome, every frame each connection was sent, and
// the group's final members and items.
func Transcript(result *Result) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "scenario: %s\n", result.Scenario)
	fmt.Fprintf(&b, "group: %s\n", result.Group)

	b.WriteString("\nsteps:\n")
	for _, s := range result.Steps {
		fmt.Fprintf(&b, "  %d. %s -> %s", s.Index, s.Line, s.Outcome)
		if s.Detail != "" {
			fmt.Fprintf(&b, " %s", s.Detail)
		}
		b.WriteString("\n")
	}

	for _, c := range result.Conns {
		fmt.Fprintf(&b, "\nframes %s:\n", c.Name)
		if len(c.Frames) == 0 {
			b.WriteString("  (none)\n")
		}
		for _, f := range c.Frames {
			fmt.Fprintf(&b, "  %s\n", f.Summary)
		}
	}

	b.WriteString("\nmembers:")
	if len(result.Members) == 0 {
		b.WriteString(" (none)")
	}
	for _, m := range result.Members {
		fmt.Fprintf(&b, " %s", m.MemberID)
	}
	b.WriteString("\n")

	b.WriteString("items:")
	if len(result.Items) == 0 {
		b.WriteString(" (none)")
	}
	b.WriteString("\n")
	for _, item := range result.Items {
		fmt.Fprintf(&b, "  %s %q %s qty=%d\n", item.ID, item.Name, item.Potency, item.Quantity)
	}

	return []byte(b.String())
}

// RunWithGolden executes a scenario and compares its transcript against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the transcript doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an already computed result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Transcript(result))
}
