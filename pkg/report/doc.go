// Package report aggregates core system records into a compliance summary
// and writes the per-job TSV reports.
//
// Two files are written under {uploads}/{trackingID}/ for every job:
//
//	compliant_report_<uuid>.tsv               imei, status, block_date, inactivity_reasons, stolen_status, seen_on_network
//	user_report-compliant_report_<uuid>.tsv   imei, status, inactivity_reasons
//
// The tracking directory must already exist.
package report
