package api

import (
	"github.com/camline/camline/pkg/bom"
	"github.com/camline/camline/pkg/jobs"
)

// SheetConstraints describe the raw sheet the layout job nests panels onto.
type SheetConstraints struct {
	// WidthMM is the sheet width in millimeters.
	WidthMM float64 `json:"width_mm"`

	// HeightMM is the sheet height in millimeters.
	HeightMM float64 `json:"height_mm"`

	// TrimMM is the edge trim allowance in millimeters.
	TrimMM float64 `json:"trim_mm,omitempty"`
}

// LayoutParams are the inputs to a cutting layout / DXF job.
type LayoutParams struct {
	// OrderID is the order the layout belongs to.
	OrderID string `json:"order_id"`

	// Panels is the panel list to nest.
	Panels []bom.Panel `json:"panels"`

	// Sheet is the sheet constraint set.
	Sheet SheetConstraints `json:"sheet"`
}

// GCodeParams are the inputs to a CNC cutting program job.
type GCodeParams struct {
	// OrderID is the order the program belongs to.
	OrderID string `json:"order_id"`

	// LayoutRef is the artifact reference of a completed layout job.
	LayoutRef string `json:"layout_reference"`

	// MachineProfile selects the target CNC controller dialect.
	MachineProfile string `json:"machine_profile"`

	// CutDepthMM is the per-pass cut depth in millimeters.
	CutDepthMM float64 `json:"cut_depth_mm,omitempty"`
}

// DrillingParams are the inputs to a CNC drilling/presetting program job.
type DrillingParams struct {
	// OrderID is the order the program belongs to.
	OrderID string `json:"order_id"`

	// MachineProfile selects the target CNC controller dialect.
	MachineProfile string `json:"machine_profile"`
}

// Settings are the machine profile and sheet defaults held by the remote
// service. They are consumed as configuration input, not owned here.
type Settings struct {
	// MachineProfile is the selected CNC controller profile, empty when
	// none has been chosen yet.
	MachineProfile string `json:"machine_profile,omitempty"`

	// Sheet is the default sheet constraint set.
	Sheet SheetConstraints `json:"sheet"`
}

// createJobRequest is the wire shape of a job creation request.
type createJobRequest struct {
	Kind   jobs.Kind   `json:"kind"`
	Params interface{} `json:"params"`
}

// createJobResponse is the wire shape of a job creation response.
type createJobResponse struct {
	JobID string `json:"job_id"`
}

// errorResponse is the wire shape of a server-reported error.
type errorResponse struct {
	Error string `json:"error"`
}
