package msf

import "fmt"

// StateError reports an operation attempted outside the builder phase
// that allows it. Streams can only be registered before finalization, and
// a container can only be finalized once.
type StateError struct {
	Op    string // Attempted operation
	Phase string // Phase the builder was in
}

func (e *StateError) Error() string {
	return fmt.Sprintf("msf: %s not allowed in %s phase", e.Op, e.Phase)
}

// CapacityError reports that a stream or the container would exceed the
// format's addressable size limits.
type CapacityError struct {
	What  string // What overflowed (stream, directory, container)
	Size  uint64 // Requested size
	Limit uint64 // Format limit
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("msf: %s size %d exceeds format limit %d", e.What, e.Size, e.Limit)
}
