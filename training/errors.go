package training

import "errors"

// ErrInvalidConfig marks every configuration error: out-of-range
// hyperparameters, unsorted boundaries or milestones, unknown modes and
// malformed scheduler documents. Check with errors.Is.
var ErrInvalidConfig = errors.New("training: invalid scheduler configuration")
