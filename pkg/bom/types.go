// Package bom defines the editable bill-of-materials for a furniture order
// and the change classification that decides whether an edit can be saved
// as-is or invalidates the derived manufacturing data.
package bom

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// FurnitureType identifies the kind of furniture the specification describes.
type FurnitureType string

const (
	// FurnitureCabinet is a standard carcass cabinet.
	FurnitureCabinet FurnitureType = "cabinet"

	// FurnitureWardrobe is a full-height wardrobe.
	FurnitureWardrobe FurnitureType = "wardrobe"

	// FurnitureShelf is an open shelving unit.
	FurnitureShelf FurnitureType = "shelf"

	// FurnitureDrawerUnit is a drawer stack.
	FurnitureDrawerUnit FurnitureType = "drawer_unit"
)

// Validate checks if the furniture type is valid.
func (t FurnitureType) Validate() error {
	switch t {
	case FurnitureCabinet, FurnitureWardrobe, FurnitureShelf, FurnitureDrawerUnit:
		return nil
	default:
		return fmt.Errorf("invalid furniture type: %s", t)
	}
}

// Dimensions are the outer dimensions of the furniture body in millimeters.
type Dimensions struct {
	// WidthMM is the outer width in millimeters.
	WidthMM float64 `json:"width_mm" validate:"required,gt=0"`

	// HeightMM is the outer height in millimeters.
	HeightMM float64 `json:"height_mm" validate:"required,gt=0"`

	// DepthMM is the outer depth in millimeters.
	DepthMM float64 `json:"depth_mm" validate:"required,gt=0"`
}

// BodyMaterial describes the sheet material the body panels are cut from.
type BodyMaterial struct {
	// Type is the material type (e.g., "chipboard", "mdf", "plywood").
	Type string `json:"type" validate:"required"`

	// ThicknessMM is the sheet thickness in millimeters.
	ThicknessMM float64 `json:"thickness_mm" validate:"required,gt=0"`
}

// Panel is a single board to be cut from sheet material.
// Panels are derived from the structural fields by the remote
// recalculation and may afterwards receive incidental tweaks.
type Panel struct {
	// Name is the human-readable panel name (e.g., "side_left", "shelf_2").
	Name string `json:"name" validate:"required"`

	// WidthMM is the panel width in millimeters.
	WidthMM float64 `json:"width_mm" validate:"gt=0"`

	// HeightMM is the panel height in millimeters.
	HeightMM float64 `json:"height_mm" validate:"gt=0"`

	// ThicknessMM is the panel thickness in millimeters.
	ThicknessMM float64 `json:"thickness_mm" validate:"gt=0"`

	// Material is the material the panel is cut from.
	Material string `json:"material"`

	// Quantity is how many identical panels are needed.
	Quantity int `json:"quantity" validate:"gte=1"`
}

// HardwareItem is a piece of hardware (hinge, slide, handle) on the order.
type HardwareItem struct {
	// Name is the hardware article name.
	Name string `json:"name" validate:"required"`

	// SKU is the supplier article number.
	SKU string `json:"sku,omitempty"`

	// Quantity is the number of pieces.
	Quantity int `json:"quantity" validate:"gte=1"`

	// UnitPrice is the per-piece price.
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
}

// Fastener is a connector used to assemble the body (confirmat, dowel, cam lock).
type Fastener struct {
	// Type is the fastener type.
	Type string `json:"type" validate:"required"`

	// Size is the fastener size designation (e.g., "7x50").
	Size string `json:"size,omitempty"`

	// Quantity is the number of pieces.
	Quantity int `json:"quantity" validate:"gte=1"`
}

// EdgeBand is a run of edge banding applied to panel edges.
type EdgeBand struct {
	// Material is the banding material (e.g., "pvc", "abs").
	Material string `json:"material" validate:"required"`

	// ThicknessMM is the banding thickness in millimeters.
	ThicknessMM float64 `json:"thickness_mm" validate:"gt=0"`

	// LengthMM is the total banding length in millimeters.
	LengthMM float64 `json:"length_mm" validate:"gte=0"`
}

// Summary holds totals derived from the specification. It is recomputed
// locally after every edit and is never an input to classification.
type Summary struct {
	// PanelCount is the total number of panels including quantities.
	PanelCount int `json:"panel_count"`

	// PanelAreaM2 is the total panel area in square meters.
	PanelAreaM2 float64 `json:"panel_area_m2"`

	// EdgeBandLengthMM is the total edge banding length in millimeters.
	EdgeBandLengthMM float64 `json:"edge_band_length_mm"`

	// HardwareCost is the total hardware cost.
	HardwareCost float64 `json:"hardware_cost"`
}

// Specification is the editable bill-of-materials for one furniture order.
// It is owned exclusively by the active editing session and mutated only
// through classified edits.
type Specification struct {
	// OrderID is the order this specification belongs to.
	OrderID string `json:"order_id" validate:"required"`

	// Dimensions are the outer body dimensions. Structural.
	Dimensions Dimensions `json:"dimensions" validate:"required"`

	// FurnitureType is the furniture kind. Structural.
	FurnitureType FurnitureType `json:"furniture_type" validate:"required"`

	// BodyMaterial is the body sheet material. Structural.
	BodyMaterial BodyMaterial `json:"body_material" validate:"required"`

	// Panels are the boards to cut. Incidental.
	Panels []Panel `json:"panels" validate:"dive"`

	// Hardware are the hardware items. Incidental.
	Hardware []HardwareItem `json:"hardware" validate:"dive"`

	// Fasteners are the assembly connectors. Incidental.
	Fasteners []Fastener `json:"fasteners" validate:"dive"`

	// EdgeBands are the edge banding runs. Incidental.
	EdgeBands []EdgeBand `json:"edge_bands" validate:"dive"`

	// Summary holds derived totals.
	Summary Summary `json:"summary"`
}

// validate is the shared validator instance for specification checks.
var validate = validator.New()

// Validate checks the specification against its field constraints.
// It is called before any persist or recalculation attempt.
func (s *Specification) Validate() error {
	if err := s.FurnitureType.Validate(); err != nil {
		return err
	}
	return validate.Struct(s)
}

// Clone returns a deep copy of the specification. The copy shares no
// slices with the original, so a baseline snapshot taken via Clone can
// never observe later edits.
func (s *Specification) Clone() *Specification {
	if s == nil {
		return nil
	}
	c := *s
	c.Panels = append([]Panel(nil), s.Panels...)
	c.Hardware = append([]HardwareItem(nil), s.Hardware...)
	c.Fasteners = append([]Fastener(nil), s.Fasteners...)
	c.EdgeBands = append([]EdgeBand(nil), s.EdgeBands...)
	return &c
}

// ComputeSummary recomputes the derived totals from the current fields.
func (s *Specification) ComputeSummary() Summary {
	sum := Summary{}
	for _, p := range s.Panels {
		sum.PanelCount += p.Quantity
		sum.PanelAreaM2 += p.WidthMM * p.HeightMM * float64(p.Quantity) / 1e6
	}
	for _, e := range s.EdgeBands {
		sum.EdgeBandLengthMM += e.LengthMM
	}
	for _, h := range s.Hardware {
		sum.HardwareCost += h.UnitPrice * float64(h.Quantity)
	}
	return sum
}
