package repository

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
)

var (
	// ErrDuplicate is returned when a unique constraint rejects a write
	ErrDuplicate = errors.New("duplicate record")
	// ErrNotFound is returned by updates that matched no row
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a row is not in the state a transition requires
	ErrConflict = errors.New("record state conflict")
)

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgerrcode.UniqueViolation {
		return ErrDuplicate
	}
	return err
}
