package compliance

import (
	"encoding/json"
	"strings"
)

// Mode selects the verdict shape expected by the caller.
type Mode string

const (
	// ModeBulk produces a flat object carrying imei and block_date.
	ModeBulk Mode = "bulk"

	// ModeBasic wraps the verdict under a "compliant" key.
	ModeBasic Mode = "basic"
)

// Base compliance states. Compliant states get an Active/Inactive suffix.
const (
	StatusCompliant                 = "Compliant"
	StatusProvisionallyCompliant    = "Provisionally Compliant"
	StatusProvisionallyNonCompliant = "Provisionally non compliant"
	StatusNonCompliant              = "Non compliant"

	suffixActive   = " (Active)"
	suffixInactive = " (Inactive)"
)

// Base reasons attached to non compliant verdicts.
const (
	ReasonStolenPending = "Your device stolen report is pending"
	ReasonStolen        = "Your device is stolen"
	ReasonNotRegistered = "Your device is not registered"
)

// BlockDateUnknown is reported when a record carries no block date.
const BlockDateUnknown = "N/A"

// Reason maps a blocking condition name to the text shown to users.
type Reason struct {
	Name   string `json:"name" yaml:"name"`
	Reason string `json:"reason" yaml:"reason"`
}

// Verdict is the compliance outcome for one record.
type Verdict struct {
	Mode              Mode
	IMEI              string
	Status            string
	BlockDate         string
	InactivityReasons []string
}

// Compliant reports whether the verdict is Compliant or Provisionally Compliant.
func (v Verdict) Compliant() bool {
	return strings.HasPrefix(v.Status, StatusCompliant) ||
		strings.HasPrefix(v.Status, StatusProvisionallyCompliant)
}

type verdictBody struct {
	Status            string   `json:"status"`
	IMEI              string   `json:"imei,omitempty"`
	BlockDate         string   `json:"block_date,omitempty"`
	InactivityReasons []string `json:"inactivity_reasons,omitempty"`
}

// MarshalJSON renders the bulk (flat) or basic (wrapped) shape.
func (v Verdict) MarshalJSON() ([]byte, error) {
	body := verdictBody{Status: v.Status}
	if !v.Compliant() {
		body.BlockDate = v.BlockDate
		body.InactivityReasons = v.InactivityReasons
	}

	if v.Mode == ModeBulk {
		body.IMEI = v.IMEI
		return json.Marshal(body)
	}
	return json.Marshal(map[string]verdictBody{"compliant": body})
}

// Classifier derives compliance verdicts using a reason-code table.
type Classifier struct {
	reasons []Reason
}

// NewClassifier creates a classifier. The reason table order decides the
// order in which condition reasons are appended.
func NewClassifier(reasons []Reason) *Classifier {
	return &Classifier{reasons: append([]Reason(nil), reasons...)}
}

// Classify evaluates a record. It is total over the nine combinations of
// registration and stolen flags.
func (c *Classifier) Classify(rec Record, mode Mode) Verdict {
	v := Verdict{
		Mode:      mode,
		IMEI:      rec.IMEINorm,
		BlockDate: BlockDateUnknown,
	}
	if rec.BlockDate != nil && *rec.BlockDate != "" {
		v.BlockDate = *rec.BlockDate
	}

	stolen := rec.Stolen()
	switch rec.Registration() {
	case FlagPending:
		switch stolen {
		case FlagPending:
			c.block(&v, rec, StatusProvisionallyNonCompliant, ReasonStolenPending)
		case FlagConfirmed:
			c.block(&v, rec, StatusNonCompliant, ReasonStolen)
		default:
			v.Status = withActivity(StatusProvisionallyCompliant, rec.SeenOnNetwork())
		}
	case FlagNull:
		c.block(&v, rec, StatusNonCompliant, ReasonNotRegistered)
	default:
		switch stolen {
		case FlagPending:
			c.block(&v, rec, StatusProvisionallyNonCompliant, ReasonStolenPending)
		case FlagConfirmed:
			c.block(&v, rec, StatusNonCompliant, ReasonStolen)
		default:
			v.Status = withActivity(StatusCompliant, rec.SeenOnNetwork())
		}
	}
	return v
}

func (c *Classifier) block(v *Verdict, rec Record, status, base string) {
	v.Status = status
	v.InactivityReasons = c.Reasons(rec.BlockingConditions(), base)
}

// Reasons returns base followed by the configured reason of every met
// blocking condition, in reason table order.
func (c *Classifier) Reasons(blocking []Condition, base ...string) []string {
	violated := make(map[string]struct{}, len(blocking))
	for _, cond := range blocking {
		if cond.Met {
			violated[cond.Name] = struct{}{}
		}
	}

	reasons := append([]string(nil), base...)
	for _, r := range c.reasons {
		if _, ok := violated[r.Name]; ok {
			reasons = append(reasons, r.Reason)
		}
	}
	return reasons
}

func withActivity(status string, seen bool) string {
	if seen {
		return status + suffixActive
	}
	return status + suffixInactive
}
