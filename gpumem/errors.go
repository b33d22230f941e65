package gpumem

import (
	"errors"
	"fmt"
	"strings"
)

// Resource manager errors.
var (
	// ErrNotFound is returned when a handle or function is not registered.
	ErrNotFound = errors.New("gpumem: resource not found")

	// ErrOpen is returned when a dataset cannot be opened.
	ErrOpen = errors.New("gpumem: open failed")

	// ErrDecode is returned when an image, transfer function or brick cannot
	// be decoded or uploaded.
	ErrDecode = errors.New("gpumem: decode failed")

	// ErrCompile is returned when a shader program fails to build.
	ErrCompile = errors.New("gpumem: shader compilation failed")

	// ErrCreate is returned when the device refuses to create a resource.
	ErrCreate = errors.New("gpumem: resource creation failed")

	// ErrMemoryBudgetExceeded is returned when a brick does not fit the
	// memory ceilings even after evicting every idle brick.
	ErrMemoryBudgetExceeded = errors.New("gpumem: memory budget exceeded")

	// ErrResidualMemory is returned by Close when committed totals are not
	// zero after every resource was freed.
	ErrResidualMemory = errors.New("gpumem: residual committed memory after teardown")

	// ErrClosed is returned when using a closed manager.
	ErrClosed = errors.New("gpumem: manager closed")
)

// Leak describes a resource still owned at teardown.
type Leak struct {
	Kind   Kind
	Name   string
	Owners int
	Size   Footprint
}

// String returns a one-line description of the leak.
func (l Leak) String() string {
	return fmt.Sprintf("%s %s (%d owners, %s)", l.Kind, l.Name, l.Owners, l.Size)
}

// LeakError reports resources that were acquired and never released.
// It indicates unpaired acquire and release calls.
type LeakError struct {
	Leaks []Leak
}

func (e *LeakError) Error() string {
	parts := make([]string, len(e.Leaks))
	for i, l := range e.Leaks {
		parts[i] = l.String()
	}
	return fmt.Sprintf("gpumem: %d leaked resources: %s", len(e.Leaks), strings.Join(parts, "; "))
}
