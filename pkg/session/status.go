package session

import "fmt"

// SaveStatus is the user-visible persistence indicator of the session.
type SaveStatus string

const (
	// SaveStatusIdle means there is nothing in flight and nothing recent
	// to report.
	SaveStatusIdle SaveStatus = "idle"

	// SaveStatusSaving means a persist call is in flight.
	SaveStatusSaving SaveStatus = "saving"

	// SaveStatusSaved means the last persist succeeded. Reverts to idle
	// after the display window.
	SaveStatusSaved SaveStatus = "saved"

	// SaveStatusError means the last persist failed. Sticks until the
	// next edit.
	SaveStatusError SaveStatus = "error"
)

// Validate checks if the save status is valid.
func (s SaveStatus) Validate() error {
	switch s {
	case SaveStatusIdle, SaveStatusSaving, SaveStatusSaved, SaveStatusError:
		return nil
	default:
		return fmt.Errorf("invalid save status: %s", s)
	}
}
