package membership

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("membership not found")
	ErrVersionConflict = errors.New("membership was modified concurrently")
)

// PersistenceError means a transaction failed and its decision was discarded.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("membership %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
