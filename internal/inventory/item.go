package inventory

import (
	"strings"
	"time"
)

// Item is one inventory row owned by a group.
//
// SubLocation and BottleSize are optional; the empty string means absent.
type Item struct {
	ID          string    `json:"id"`
	GroupID     string    `json:"groupId"`
	Name        string    `json:"name"`
	Potency     string    `json:"potency"`
	Company     string    `json:"company"`
	Location    string    `json:"location"`
	SubLocation string    `json:"subLocation,omitempty"`
	BottleSize  string    `json:"bottleSize,omitempty"`
	Quantity    int       `json:"quantity"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Normalized returns a copy with surrounding whitespace removed from every
// free-text field. Candidates are normalized before validation and storage.
func (i Item) Normalized() Item {
	i.Name = strings.TrimSpace(i.Name)
	i.Potency = strings.TrimSpace(i.Potency)
	i.Company = strings.TrimSpace(i.Company)
	i.Location = strings.TrimSpace(i.Location)
	i.SubLocation = strings.TrimSpace(i.SubLocation)
	i.BottleSize = strings.TrimSpace(i.BottleSize)
	return i
}

// Patch is a partial update. Nil fields are left untouched.
//
// There is deliberately no GroupID, ID or CreatedAt field: those are fixed
// for the lifetime of an item.
type Patch struct {
	Name        *string `json:"name,omitempty"`
	Potency     *string `json:"potency,omitempty"`
	Company     *string `json:"company,omitempty"`
	Location    *string `json:"location,omitempty"`
	SubLocation *string `json:"subLocation,omitempty"`
	BottleSize  *string `json:"bottleSize,omitempty"`
	Quantity    *int    `json:"quantity,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.Potency == nil && p.Company == nil &&
		p.Location == nil && p.SubLocation == nil && p.BottleSize == nil &&
		p.Quantity == nil
}

// Apply returns item with the patch's non-nil fields written over it.
func (p Patch) Apply(item Item) Item {
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Potency != nil {
		item.Potency = *p.Potency
	}
	if p.Company != nil {
		item.Company = *p.Company
	}
	if p.Location != nil {
		item.Location = *p.Location
	}
	if p.SubLocation != nil {
		item.SubLocation = *p.SubLocation
	}
	if p.BottleSize != nil {
		item.BottleSize = *p.BottleSize
	}
	if p.Quantity != nil {
		item.Quantity = *p.Quantity
	}
	return item.Normalized()
}

// QuantityPatch builds a patch that only sets the quantity.
func QuantityPatch(quantity int) Patch {
	return Patch{Quantity: &quantity}
}
