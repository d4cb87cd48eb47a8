package inventory

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaCUE string

// fieldOrder fixes which field is reported first when several are invalid.
var fieldOrder = []string{"name", "potency", "company", "location", "subLocation", "bottleSize", "quantity"}

var fieldMessages = map[string]string{
	"name":        "name is required",
	"potency":     "potency is required",
	"company":     "company is required",
	"location":    "location is required",
	"subLocation": "subLocation must be a string",
	"bottleSize":  "bottleSize must be a string",
	"quantity":    "quantity must be >= 0",
}

// validator holds the compiled schema. cue.Context is not safe for
// concurrent use, so every Validate call holds mu.
type validator struct {
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
}

var (
	defaultValidator     *validator
	defaultValidatorOnce sync.Once
	defaultValidatorErr  error
)

func loadValidator() (*validator, error) {
	defaultValidatorOnce.Do(func() {
		ctx := cuecontext.New()
		root := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
		if err := root.Err(); err != nil {
			defaultValidatorErr = fmt.Errorf("compile item schema: %w", err)
			return
		}
		schema := root.LookupPath(cue.ParsePath("#Item"))
		if !schema.Exists() {
			defaultValidatorErr = fmt.Errorf("compile item schema: #Item not defined")
			return
		}
		defaultValidator = &validator{ctx: ctx, schema: schema}
	})
	return defaultValidator, defaultValidatorErr
}

// Validate checks the member-supplied fields of item against schema.cue.
// The returned error is a *Error with ErrCodeValidation naming the first
// offending field in fieldOrder.
func Validate(item Item) error {
	v, err := loadValidator()
	if err != nil {
		return err
	}
	return v.validate(item)
}

func (v *validator) validate(item Item) error {
	fields := map[string]any{
		"name":     item.Name,
		"potency":  item.Potency,
		"company":  item.Company,
		"location": item.Location,
		"quantity": item.Quantity,
	}
	if item.SubLocation != "" {
		fields["subLocation"] = item.SubLocation
	}
	if item.BottleSize != "" {
		fields["bottleSize"] = item.BottleSize
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	value := v.ctx.Encode(fields)
	err := v.schema.Unify(value).Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	bad := make(map[string]bool)
	for _, e := range cueerrors.Errors(err) {
		path := e.Path()
		if len(path) == 0 {
			continue
		}
		bad[path[len(path)-1]] = true
	}
	for _, field := range fieldOrder {
		if bad[field] {
			return NewValidationError(field, fieldMessages[field])
		}
	}
	// Error not attributable to a known field; surface CUE's own text.
	return NewValidationError("", strings.TrimSpace(cueerrors.Details(err, nil)))
}
