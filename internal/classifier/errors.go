package classifier

import "errors"

var (
	// ErrNotFitted is returned when predict is called before a successful Fit.
	ErrNotFitted = errors.New("classifier is not fitted")

	// ErrSizeMismatch is returned when samples and labels differ in length.
	ErrSizeMismatch = errors.New("training samples and labels size mismatch")

	// ErrTrain wraps failures during training.
	ErrTrain = errors.New("training failed")
)
