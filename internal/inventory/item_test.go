package inventory

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPatch_ApplyOnlyTouchesSetFields(t *testing.T) {
	item := Item{ID: "i1", GroupID: "ABC12345", Name: "Arnica", Potency: "30C", Company: "Boiron", Location: "Kitchen", Quantity: 2}
	location := "  Bathroom "

	got := Patch{Location: &location, Quantity: intPtr(5)}.Apply(item)

	assert.Equal(t, "Bathroom", got.Location)
	assert.Equal(t, 5, got.Quantity)
	assert.Equal(t, "Arnica", got.Name)
	assert.Equal(t, "ABC12345", got.GroupID)
	assert.Equal(t, "i1", got.ID)
}

func TestPatch_IsEmpty(t *testing.T) {
	assert.True(t, Patch{}.IsEmpty())
	assert.False(t, QuantityPatch(0).IsEmpty())
}

func TestItem_Normalized(t *testing.T) {
	got := Item{Name: " Arnica ", Potency: "30C\n", SubLocation: "  "}.Normalized()
	assert.Equal(t, "Arnica", got.Name)
	assert.Equal(t, "30C", got.Potency)
	assert.Equal(t, "", got.SubLocation)
}

func TestErrorHelpers(t *testing.T) {
	nf := NewNotFoundError("ABC12345", "missing")
	assert.True(t, IsNotFound(nf))
	assert.True(t, errors.Is(nf, ErrNotFound))
	assert.Contains(t, nf.Error(), "item=missing")

	assert.True(t, IsNotFound(fmt.Errorf("update: %w", ErrNotFound)))

	se := NewStoreError("insert item", errors.New("disk full"))
	assert.True(t, IsStoreError(fmt.Errorf("wrapped: %w", se)))
	assert.False(t, IsValidation(se))
	assert.Equal(t, ErrCodeStore, CodeOf(se))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
}

func intPtr(v int) *int { return &v }
