package report

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Sternrassler/drs-bulk-compliance/pkg/compliance"
	"github.com/Sternrassler/drs-bulk-compliance/pkg/logging"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// ErrInvalidTrackingID is returned for tracking ids that are not a single
// path element.
var ErrInvalidTrackingID = errors.New("invalid tracking id")

// Compliance buckets used in metrics.
const (
	BucketCompliant                 = "compliant"
	BucketNonCompliant              = "non_compliant"
	BucketProvisionallyCompliant    = "provisionally_compliant"
	BucketProvisionallyNonCompliant = "provisionally_non_compliant"
)

const (
	reportPrefix     = "compliant_report_"
	userReportPrefix = "user_report-"
)

var (
	complianceStatusTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drs_compliance_status_total",
			Help: "Total number of classified records by compliance bucket",
		},
		[]string{"bucket"},
	)

	reportsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drs_reports_written_total",
		Help: "Total number of report files written",
	})
)

// Aggregator builds summaries and reports for one uploads directory.
type Aggregator struct {
	classifier *compliance.Classifier
	uploads    string
	newID      func() string
	logger     zerolog.Logger
}

// NewAggregator creates an aggregator writing below uploadsDir.
func NewAggregator(classifier *compliance.Classifier, uploadsDir string) *Aggregator {
	return &Aggregator{
		classifier: classifier,
		uploads:    uploadsDir,
		newID:      uuid.NewString,
		logger:     logging.NewLogger("aggregator"),
	}
}

// BuildSummary aggregates records and writes both reports. Any malformed
// record fails the whole summary with compliance.ErrMalformedRecord.
// An empty record list yields an empty Summary and writes nothing.
func (a *Aggregator) BuildSummary(records []compliance.Record, trackingID string) (Summary, error) {
	if len(records) == 0 {
		return Summary{}, nil
	}
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return Summary{}, err
		}
	}

	var s Summary
	for i := range records {
		switch records[i].Stolen() {
		case compliance.FlagPending:
			s.ProvisionalStolen++
		case compliance.FlagConfirmed:
			s.Stolen++
		}
		if records[i].SeenOnNetwork() {
			s.SeenOnNetwork++
		}
	}

	blocking := ConditionRows(records, (*compliance.Record).BlockingConditions)
	informative := ConditionRows(records, (*compliance.Record).InformativeConditions)
	s.CountPerCondition = CountConditions(nil, blocking)
	s.CountPerCondition = CountConditions(s.CountPerCondition, informative)

	a.logger.Debug().
		Str("tracking_id", trackingID).
		Int("blocking_unmet", NoConditionCount(blocking)).
		Int("informative_unmet", NoConditionCount(informative)).
		Msg("Counted conditions")

	tally, err := a.GenerateCompliantReport(records, trackingID)
	if err != nil {
		return Summary{}, err
	}

	s.VerifiedIMEI = len(records)
	s.NonCompliant = tally.NonCompliant
	s.Compliant = tally.Compliant
	s.ProvisionalNonCompliant = tally.ProvisionalNonCompliant
	s.ProvisionalCompliant = tally.ProvisionalCompliant
	s.CompliantReportName = tally.ReportName
	s.UserReportName = tally.UserReportName

	a.logger.Info().
		Str("tracking_id", trackingID).
		Int("verified_imei", s.VerifiedIMEI).
		Int("compliant", s.Compliant).
		Int("non_compliant", s.NonCompliant).
		Str("report", s.CompliantReportName).
		Msg("Summary built")

	return s, nil
}

// GenerateCompliantReport classifies every record in bulk mode, tallies the
// compliance buckets and writes the full and user reports.
func (a *Aggregator) GenerateCompliantReport(records []compliance.Record, trackingID string) (Tally, error) {
	dir, err := a.trackingDir(trackingID)
	if err != nil {
		return Tally{}, err
	}

	var tally Tally
	full := make([][]string, 0, len(records))
	user := make([][]string, 0, len(records))
	for i := range records {
		v := a.classifier.Classify(records[i], compliance.ModeBulk)
		if bucket := tally.add(v.Status); bucket != "" {
			complianceStatusTotal.WithLabelValues(bucket).Inc()
		}

		row := NewRow(&records[i], v)
		full = append(full, row.full())
		user = append(user, row.user())
	}

	tally.ReportName = reportPrefix + a.newID() + ".tsv"
	tally.UserReportName = userReportPrefix + tally.ReportName

	if err := writeTSV(filepath.Join(dir, tally.ReportName), fullColumns, full); err != nil {
		return Tally{}, fmt.Errorf("compliant report: %w", err)
	}
	reportsWrittenTotal.Inc()

	if err := writeTSV(filepath.Join(dir, tally.UserReportName), userColumns, user); err != nil {
		return Tally{}, fmt.Errorf("user report: %w", err)
	}
	reportsWrittenTotal.Inc()

	return tally, nil
}

// ReportPath returns the path of a report written for trackingID.
func (a *Aggregator) ReportPath(trackingID, name string) (string, error) {
	dir, err := a.trackingDir(trackingID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.Base(name)), nil
}

func (a *Aggregator) trackingDir(trackingID string) (string, error) {
	if trackingID == "" || trackingID == "." || trackingID == ".." ||
		strings.ContainsAny(trackingID, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTrackingID, trackingID)
	}
	return filepath.Join(a.uploads, trackingID), nil
}

// add counts status in its bucket and returns the bucket name.
func (t *Tally) add(status string) string {
	switch {
	case strings.Contains(status, compliance.StatusProvisionallyCompliant):
		t.ProvisionalCompliant++
		return BucketProvisionallyCompliant
	case strings.Contains(status, compliance.StatusProvisionallyNonCompliant):
		t.ProvisionalNonCompliant++
		return BucketProvisionallyNonCompliant
	case status == compliance.StatusCompliant+" (Active)" || status == compliance.StatusCompliant+" (Inactive)":
		t.Compliant++
		return BucketCompliant
	case status == compliance.StatusNonCompliant:
		t.NonCompliant++
		return BucketNonCompliant
	}
	return ""
}
