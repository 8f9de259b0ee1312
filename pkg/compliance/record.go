// Package compliance defines the core system IMEI record schema and derives
// a device compliance verdict from it.
package compliance

import (
	"errors"
	"fmt"
)

// ErrMalformedRecord is returned when a core system record lacks a field the
// classification depends on.
var ErrMalformedRecord = errors.New("malformed core record")

// Flag is the tri-state provisional_only value used by the core system for
// both stolen and registration status.
type Flag int

const (
	// FlagNull means provisional_only was null: not stolen / not registered.
	FlagNull Flag = iota

	// FlagPending means provisional_only was true: the request is pending.
	FlagPending

	// FlagConfirmed means provisional_only was false: stolen / registered.
	FlagConfirmed
)

// String returns a short label for logs.
func (f Flag) String() string {
	switch f {
	case FlagPending:
		return "pending"
	case FlagConfirmed:
		return "confirmed"
	default:
		return "null"
	}
}

// ProvisionalStatus wraps the provisional_only tri-state.
type ProvisionalStatus struct {
	ProvisionalOnly *bool `json:"provisional_only"`
}

// Flag maps the raw value to a Flag. A nil status reads as FlagNull.
func (s *ProvisionalStatus) Flag() Flag {
	if s == nil || s.ProvisionalOnly == nil {
		return FlagNull
	}
	if *s.ProvisionalOnly {
		return FlagPending
	}
	return FlagConfirmed
}

// Condition is a single classification condition evaluated by the core system.
type Condition struct {
	Name string `json:"condition_name"`
	Met  bool   `json:"condition_met"`
}

// ClassificationState holds the blocking and informative conditions.
type ClassificationState struct {
	BlockingConditions    []Condition `json:"blocking_conditions"`
	InformativeConditions []Condition `json:"informative_conditions"`
}

// RealtimeChecks holds network observation results.
type RealtimeChecks struct {
	EverObservedOnNetwork bool `json:"ever_observed_on_network"`
}

// Record is one entry of the imei-batch "results" array.
type Record struct {
	IMEINorm            string               `json:"imei_norm"`
	StolenStatus        *ProvisionalStatus   `json:"stolen_status"`
	RegistrationStatus  *ProvisionalStatus   `json:"registration_status"`
	ClassificationState *ClassificationState `json:"classification_state"`
	RealtimeChecks      *RealtimeChecks      `json:"realtime_checks"`
	BlockDate           *string              `json:"block_date,omitempty"`
}

// Validate reports ErrMalformedRecord if a required section is missing.
func (r *Record) Validate() error {
	var missing string
	switch {
	case r.IMEINorm == "":
		missing = "imei_norm"
	case r.StolenStatus == nil:
		missing = "stolen_status"
	case r.RegistrationStatus == nil:
		missing = "registration_status"
	case r.ClassificationState == nil:
		missing = "classification_state"
	case r.RealtimeChecks == nil:
		missing = "realtime_checks"
	default:
		return nil
	}
	return fmt.Errorf("%w: imei %q: missing %s", ErrMalformedRecord, r.IMEINorm, missing)
}

// Stolen returns the stolen status flag.
func (r *Record) Stolen() Flag {
	return r.StolenStatus.Flag()
}

// Registration returns the registration status flag.
func (r *Record) Registration() Flag {
	return r.RegistrationStatus.Flag()
}

// SeenOnNetwork reports whether the device was ever observed on the network.
func (r *Record) SeenOnNetwork() bool {
	return r.RealtimeChecks != nil && r.RealtimeChecks.EverObservedOnNetwork
}

// BlockingConditions returns the blocking conditions, nil-safe.
func (r *Record) BlockingConditions() []Condition {
	if r.ClassificationState == nil {
		return nil
	}
	return r.ClassificationState.BlockingConditions
}

// InformativeConditions returns the informative conditions, nil-safe.
func (r *Record) InformativeConditions() []Condition {
	if r.ClassificationState == nil {
		return nil
	}
	return r.ClassificationState.InformativeConditions
}

// StolenLabel is the human-readable stolen status written to reports.
func (r *Record) StolenLabel() string {
	switch r.Stolen() {
	case FlagPending:
		return "Pending Stolen Verification"
	case FlagConfirmed:
		return "Stolen"
	default:
		return "Not Stolen"
	}
}
