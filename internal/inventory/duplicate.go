package inventory

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DuplicateDescriptor pairs an existing item with an incoming candidate that
// looks like the same product. The caller must pick a Resolution.
type DuplicateDescriptor struct {
	Existing  Item `json:"existing"`
	Candidate Item `json:"candidate"`
}

// Resolution is the caller's answer to a DuplicateDescriptor.
type Resolution string

const (
	// ResolveMerge adds the candidate's quantity to the existing item.
	ResolveMerge Resolution = "merge"

	// ResolveKeepBoth inserts the candidate as a new row, skipping detection.
	ResolveKeepBoth Resolution = "keep-both"

	// ResolveSkip drops the candidate. No store mutation, no event.
	ResolveSkip Resolution = "skip"
)

// ParseResolution validates a wire or flag value.
func ParseResolution(s string) (Resolution, error) {
	switch r := Resolution(strings.ToLower(strings.TrimSpace(s))); r {
	case ResolveMerge, ResolveKeepBoth, ResolveSkip:
		return r, nil
	default:
		return "", NewValidationError("resolution",
			fmt.Sprintf("unknown resolution %q: must be merge, keep-both or skip", s))
	}
}

// foldKey produces the comparison form of a free-text field: trimmed, NFC
// normalized and Unicode case folded.
//
// A fresh Caser per call: cases.Caser is stateful and not safe to share.
func foldKey(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

// NamesOverlap reports whether either name contains the other after case
// folding. Empty names never overlap.
func NamesOverlap(a, b string) bool {
	fa, fb := foldKey(a), foldKey(b)
	if fa == "" || fb == "" {
		return false
	}
	return strings.Contains(fa, fb) || strings.Contains(fb, fa)
}

// PotencyMatches compares potencies ignoring surrounding space and case
// ("30C" == "30c").
func PotencyMatches(a, b string) bool {
	return foldKey(a) == foldKey(b)
}

// IsDuplicate reports whether candidate looks like existing.
func IsDuplicate(existing, candidate Item) bool {
	return PotencyMatches(existing.Potency, candidate.Potency) &&
		NamesOverlap(existing.Name, candidate.Name)
}

// FindDuplicate scans items in order and returns the first one the
// candidate duplicates.
func FindDuplicate(items []Item, candidate Item) (*DuplicateDescriptor, bool) {
	for _, existing := range items {
		if IsDuplicate(existing, candidate) {
			return &DuplicateDescriptor{Existing: existing, Candidate: candidate}, true
		}
	}
	return nil, false
}
