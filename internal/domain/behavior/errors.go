package behavior

import "errors"

// Sentinel kinds for behavior errors.
var (
	ErrInvalidThresholds = errors.New("invalid behavior thresholds")
)
