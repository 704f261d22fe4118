package service

import (
	"errors"
	"fmt"

	"github.com/okian/drivescore/internal/adapters/repository"
	"github.com/okian/drivescore/internal/domain/model"
)

// ErrBusy is returned when asynchronous work cannot be accepted.
var ErrBusy = errors.New("service busy")

// storageErr classifies a persistence failure. Not-found is left to callers,
// which know whether it means an invalid session or a missing one.
func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", model.ErrStorageFailure, op, err)
}

// lookupErr maps a failed session lookup onto the domain taxonomy.
func lookupErr(id string, notFound error, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return storageErr("get session", err)
}

func invalidParam(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{model.ErrInvalidParameter}, args...)...)
}
