package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownModule is returned when a required module was never installed.
	ErrUnknownModule = errors.New("unknown module")
	// ErrFetchFailure is returned when a module source could not be downloaded.
	ErrFetchFailure = errors.New("fetch failure")
	// ErrLockMismatch is returned in frozen mode when a module's content
	// differs from the hash pinned in the lock file.
	ErrLockMismatch = errors.New("lock mismatch")
)

// UnknownModuleError names the missing module and, when known, the module
// whose require() asked for it.
type UnknownModuleError struct {
	ID         ModuleID
	RequiredBy ModuleID
}

func (e *UnknownModuleError) Error() string {
	if e.RequiredBy != "" {
		return fmt.Sprintf("module %s (required by %s) is not installed", e.ID, e.RequiredBy)
	}
	return fmt.Sprintf("module %s is not installed", e.ID)
}

func (e *UnknownModuleError) Is(target error) bool { return target == ErrUnknownModule }

// FetchError describes a failed download.
type FetchError struct {
	ID     ModuleID
	URL    string
	Status int // HTTP status, zero when the request itself failed
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetching %s from %s: HTTP %d", e.ID, e.URL, e.Status)
	}
	return fmt.Sprintf("fetching %s from %s: %v", e.ID, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetchFailure }
