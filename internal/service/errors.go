package service

import (
	"errors"

	"github.com/ifuryst/kiosksync/internal/drive"
	"github.com/ifuryst/kiosksync/internal/repository"
	"github.com/ifuryst/kiosksync/internal/storage"
)

var (
	ErrJobNotPending     = errors.New("upload job is not pending")
	ErrJobNotRequeueable = errors.New("only failed or cancelled upload jobs can be requeued")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrNoActiveProvider  = repository.ErrNoActiveProvider
)

// errorKind is the classification recorded on a failed job.
func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, storage.ErrObjectNotFound), errors.Is(err, repository.ErrNotFound):
		return string(drive.KindNotFound)
	}
	return string(drive.KindOf(err))
}

// isPermanent reports whether err means the provider config is unusable
// until an operator fixes it.
func isPermanent(err error) bool {
	var de *drive.Error
	return errors.As(err, &de) && de.Kind.Permanent()
}
