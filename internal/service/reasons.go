package service

import "github.com/campusops/course-request-api/internal/models"

// submissionReasons are the predefined justifications students pick from when
// filing a request. Free text is still accepted at finalization.
var submissionReasons = map[models.RequestType][]string{
	models.RequestTypeAdd: {
		"Grade unavailable during enlistment",
		"Prerequisite course marked NG during enlistment",
		"Underload – requesting additional units",
		"Course not offered during enlistment",
		"Schedule conflict resolved",
		"Graduation requirement",
		"Curriculum adjustment (newly added or reclassified course)",
		"Replacement for dropped/cancelled course",
		"Academic advisor recommendation",
		"Elective choice within allowed units",
		"Transfer credit evaluation pending",
		"Enrollment error during enlistment",
		"Repetition of a failed course",
		"Change in study plan/major",
	},
	models.RequestTypeChange: {
		"Schedule conflict with another required course",
		"Instructor or section change requested/approved",
		"Shift in academic track or major",
		"Academic Adviser/Dean recommendation for better progression",
		"Time/room adjustment for accessibility or personal circumstances",
		"Error correction in initial enlistment",
	},
	models.RequestTypeDrop: {
		"Course dissolved or cancelled by the department",
		"Schedule conflict unresolved",
		"Course repetition not needed (already passed via transfer/credit)",
		"Financial or scholarship unit limit compliance",
		"Academic advisor recommendation to lighten the load",
		"Course not required for graduation after curriculum review",
		"Instructor approval to withdraw",
		"Health or personal reasons",
		"Enrollment error correction",
	},
}

// rejectionReasons are the predefined grounds staff pick from when rejecting.
var rejectionReasons = map[models.RequestType][]string{
	models.RequestTypeAdd: {
		"Exceeds unit load",
		"Course full",
		"Prerequisite not met",
		"Grade pending",
		"Not in the curriculum",
		"Deadline passed",
		"Schedule conflict",
		"Scholarship/financial restriction",
		"No approval",
		"Duplicate enrollment",
	},
	models.RequestTypeChange: {
		"Section full",
		"Schedule conflict",
		"Exceeds unit load",
		"Part of a block section",
		"Not offered this term",
		"Deadline passed",
		"No approval",
		"Curriculum restriction",
		"Overload/underload issue",
		"Not applicable",
	},
	models.RequestTypeDrop: {
		"Below minimum load",
		"Required for graduation",
		"Scholarship/financial restriction",
		"No approval",
		"Part of a block section",
		"Drop limit exceeded",
		"Policy restriction",
		"Deadline passed",
		"Not applicable",
	},
}

func init() {
	// add_with_exception shares the add catalogs.
	submissionReasons[models.RequestTypeAddWithException] = submissionReasons[models.RequestTypeAdd]
	rejectionReasons[models.RequestTypeAddWithException] = rejectionReasons[models.RequestTypeAdd]
}

// SubmissionReasons returns the predefined per-type submission reasons.
func SubmissionReasons() map[models.RequestType][]string {
	return submissionReasons
}

// RejectionReasons returns the predefined per-type rejection reasons.
func RejectionReasons() map[models.RequestType][]string {
	return rejectionReasons
}
