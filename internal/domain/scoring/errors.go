package scoring

import "errors"

// Sentinel kinds for scoring errors.
var (
	ErrInvalidGradeScale = errors.New("invalid grade scale")
	ErrReportEncoding    = errors.New("report encoding failed")
)
