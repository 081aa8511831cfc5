package domain

import "strings"

// ProcessingStats aggregates the result of one batch run.
type ProcessingStats struct {
	TotalRecords      int      `json:"total_records"`
	SuccessfulRecords int      `json:"successful_records"`
	FailedRecords     int      `json:"failed_records"`
	Errors            []string `json:"errors"`
}

// NewProcessingStats starts a stats accumulator for total records.
func NewProcessingStats(total int) ProcessingStats {
	return ProcessingStats{
		TotalRecords: total,
		Errors:       []string{},
	}
}

// RecordSuccess counts a committed record.
func (s *ProcessingStats) RecordSuccess() {
	s.SuccessfulRecords++
}

// RecordFailure counts a rolled back record and keeps its description.
func (s *ProcessingStats) RecordFailure(message string) {
	s.FailedRecords++
	s.Errors = append(s.Errors, message)
}

// FinalStatus is completed when no record failed, otherwise partial_success.
func (s ProcessingStats) FinalStatus() ProcessingStatus {
	if s.FailedRecords == 0 {
		return ProcessingStatusCompleted
	}
	return ProcessingStatusPartialSuccess
}

// ErrorSummary joins the first limit errors. Nil when there were none.
func (s ProcessingStats) ErrorSummary(limit int) *string {
	if len(s.Errors) == 0 {
		return nil
	}
	errs := s.Errors
	if limit > 0 && len(errs) > limit {
		errs = errs[:limit]
	}
	summary := strings.Join(errs, "; ")
	return &summary
}
