package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/famshelf/internal/inventory"
	"github.com/roach88/famshelf/internal/protocol"
)

// DefaultGroup is used when a scenario does not name one.
const DefaultGroup = "FAMILY01"

// Scenario is one scripted conversation in a single group.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Group is the group code every join and mutation targets.
	Group string `yaml:"group,omitempty"`

	// Steps run in order; each completes before the next starts.
	Steps []Step `yaml:"steps"`

	// Assertions validate the recorded frames and the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step actions.
const (
	StepConnect    = "connect"
	StepJoin       = "join"
	StepAdd        = "add"
	StepResolve    = "resolve"
	StepUpdate     = "update"
	StepDelete     = "delete"
	StepDisconnect = "disconnect"
	StepFailSends  = "fail_sends"
)

// Step is one action in a scenario. Which fields apply depends on Do.
type Step struct {
	Do string `yaml:"do"`

	// Conn names the connection acting. Optional for mutations.
	Conn string `yaml:"conn,omitempty"`

	// Encoding is the wire encoding for connect: json (default) or cbor.
	Encoding string `yaml:"encoding,omitempty"`

	// Member and Name identify who joins, or who a connectionless
	// mutation is attributed to.
	Member string `yaml:"member,omitempty"`
	Name   string `yaml:"name,omitempty"`

	Item       *ItemSpec  `yaml:"item,omitempty"`
	ItemID     string     `yaml:"item_id,omitempty"`
	Existing   string     `yaml:"existing,omitempty"`
	Resolution string     `yaml:"resolution,omitempty"`
	Patch      *PatchSpec `yaml:"patch,omitempty"`

	// Fail toggles send failures for fail_sends.
	Fail bool `yaml:"fail,omitempty"`

	// Expect is the expected outcome: ok (default), duplicate, skipped or
	// an error code.
	Expect string `yaml:"expect,omitempty"`
}

// ItemSpec is an item as written in a scenario.
type ItemSpec struct {
	Name        string `yaml:"name,omitempty"`
	Potency     string `yaml:"potency,omitempty"`
	Company     string `yaml:"company,omitempty"`
	Location    string `yaml:"location,omitempty"`
	SubLocation string `yaml:"sub_location,omitempty"`
	BottleSize  string `yaml:"bottle_size,omitempty"`
	Quantity    int    `yaml:"quantity,omitempty"`
}

// Item converts the step item into a mutation candidate.
func (s ItemSpec) Item() inventory.Item {
	return inventory.Item{
		Name:        s.Name,
		Potency:     s.Potency,
		Company:     s.Company,
		Location:    s.Location,
		SubLocation: s.SubLocation,
		BottleSize:  s.BottleSize,
		Quantity:    s.Quantity,
	}
}

// matches is a subset match: only fields set here are compared.
func (s ItemSpec) matches(item inventory.Item) bool {
	fields := []struct{ want, got string }{
		{s.Name, item.Name},
		{s.Potency, item.Potency},
		{s.Company, item.Company},
		{s.Location, item.Location},
		{s.SubLocation, item.SubLocation},
		{s.BottleSize, item.BottleSize},
	}
	for _, f := range fields {
		if f.want != "" && f.want != f.got {
			return false
		}
	}
	return s.Quantity == 0 || s.Quantity == item.Quantity
}

// PatchSpec is a partial update as written in a scenario.
type PatchSpec struct {
	Name        *string `yaml:"name,omitempty"`
	Potency     *string `yaml:"potency,omitempty"`
	Company     *string `yaml:"company,omitempty"`
	Location    *string `yaml:"location,omitempty"`
	SubLocation *string `yaml:"sub_location,omitempty"`
	BottleSize  *string `yaml:"bottle_size,omitempty"`
	Quantity    *int    `yaml:"quantity,omitempty"`
}

// Patch converts the step patch into an inventory patch.
func (p PatchSpec) Patch() inventory.Patch {
	return inventory.Patch{
		Name:        p.Name,
		Potency:     p.Potency,
		Company:     p.Company,
		Location:    p.Location,
		SubLocation: p.SubLocation,
		BottleSize:  p.BottleSize,
		Quantity:    p.Quantity,
	}
}

// Assertion validates recorded frames or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "receives": conn was sent Message at least once
	// - "count": conn was sent Message exactly Count times
	// - "order": conn was sent Messages in this relative order
	// - "members": the live members are exactly Members, in join order
	// - "items": the final items match Items, in list order
	Type string `yaml:"type"`

	Conn    string `yaml:"conn,omitempty"`
	Message string `yaml:"message,omitempty"`

	// Contains narrows receives and count to frames whose summary
	// contains this text.
	Contains string `yaml:"contains,omitempty"`

	Count    int        `yaml:"count,omitempty"`
	Messages []string   `yaml:"messages,omitempty"`
	Members  []string   `yaml:"members,omitempty"`
	Items    []ItemSpec `yaml:"items,omitempty"`
}

// Assertion type constants.
const (
	AssertReceives = "receives"
	AssertCount    = "count"
	AssertOrder    = "order"
	AssertMembers  = "members"
	AssertItems    = "items"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and that every
// step refers to a connection opened by an earlier step.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	opened := make(map[string]bool)
	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i], opened); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, opened); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step *Step, opened map[string]bool) error {
	needConn := func() error {
		if step.Conn == "" {
			return fmt.Errorf("steps[%d]: conn is required for %s", index, step.Do)
		}
		if !opened[step.Conn] {
			return fmt.Errorf("steps[%d]: conn %q is not connected", index, step.Conn)
		}
		return nil
	}
	optionalConn := func() error {
		if step.Conn != "" && !opened[step.Conn] {
			return fmt.Errorf("steps[%d]: conn %q is not connected", index, step.Conn)
		}
		return nil
	}

	switch step.Do {
	case StepConnect:
		if step.Conn == "" {
			return fmt.Errorf("steps[%d]: conn is required for connect", index)
		}
		if opened[step.Conn] {
			return fmt.Errorf("steps[%d]: conn %q is already connected", index, step.Conn)
		}
		if _, err := protocol.Lookup(step.Encoding); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
		opened[step.Conn] = true
		return nil
	case StepJoin:
		if err := needConn(); err != nil {
			return err
		}
		if step.Member == "" {
			return fmt.Errorf("steps[%d]: member is required for join", index)
		}
	case StepAdd:
		if step.Item == nil {
			return fmt.Errorf("steps[%d]: item is required for add", index)
		}
		return optionalConn()
	case StepResolve:
		if step.Item == nil {
			return fmt.Errorf("steps[%d]: item is required for resolve", index)
		}
		if _, err := inventory.ParseResolution(step.Resolution); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
		return optionalConn()
	case StepUpdate:
		if step.ItemID == "" || step.Patch == nil {
			return fmt.Errorf("steps[%d]: item_id and patch are required for update", index)
		}
		return optionalConn()
	case StepDelete:
		if step.ItemID == "" {
			return fmt.Errorf("steps[%d]: item_id is required for delete", index)
		}
		return optionalConn()
	case StepDisconnect, StepFailSends:
		return needConn()
	case "":
		return fmt.Errorf("steps[%d]: do is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown step %q", index, step.Do)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, opened map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertReceives, AssertCount, AssertOrder:
		if !opened[a.Conn] {
			return fmt.Errorf("assertions[%d]: conn %q is not connected by any step", index, a.Conn)
		}
		if a.Type == AssertOrder {
			if len(a.Messages) == 0 {
				return fmt.Errorf("assertions[%d]: messages list is required for order", index)
			}
			return nil
		}
		if a.Message == "" {
			return fmt.Errorf("assertions[%d]: message is required for %s", index, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertMembers, AssertItems:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
