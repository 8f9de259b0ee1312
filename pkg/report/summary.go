package report

import "encoding/json"

// Summary is the aggregate returned to the web application. The JSON keys
// (including the "complaint" spellings) are part of its contract.
type Summary struct {
	ProvisionalStolen       int            `json:"provisional_stolen"`
	VerifiedIMEI            int            `json:"verified_imei"`
	CountPerCondition       map[string]int `json:"count_per_condition"`
	NonCompliant            int            `json:"non_complaint"`
	Compliant               int            `json:"complaint"`
	ProvisionalNonCompliant int            `json:"provisional_non_compliant"`
	ProvisionalCompliant    int            `json:"provisional_compliant"`
	SeenOnNetwork           int            `json:"seen_on_network"`
	Stolen                  int            `json:"stolen"`
	CompliantReportName     string         `json:"compliant_report_name"`
	UserReportName          string         `json:"user_report_name"`
	UnprocessedIMEI         int            `json:"unprocessed_imei"`
}

// Empty reports whether no record was aggregated.
func (s Summary) Empty() bool {
	return s.VerifiedIMEI == 0
}

// MarshalJSON renders an empty summary as {}, carrying only
// unprocessed_imei when identifiers were dropped.
func (s Summary) MarshalJSON() ([]byte, error) {
	if s.Empty() {
		if s.UnprocessedIMEI == 0 {
			return []byte("{}"), nil
		}
		return json.Marshal(map[string]int{"unprocessed_imei": s.UnprocessedIMEI})
	}

	type summary Summary
	out := summary(s)
	if out.CountPerCondition == nil {
		out.CountPerCondition = map[string]int{}
	}
	return json.Marshal(out)
}

// Tally holds the per-bucket counts and file names of one report.
type Tally struct {
	NonCompliant            int
	Compliant               int
	ProvisionalNonCompliant int
	ProvisionalCompliant    int
	ReportName              string
	UserReportName          string
}
