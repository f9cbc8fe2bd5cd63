package offline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind is the mutation type of a queued operation.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Valid reports whether k is a known mutation kind.
func (k Kind) Valid() bool {
	switch k {
	case KindCreate, KindUpdate, KindDelete:
		return true
	}
	return false
}

// Operation is a mutation captured while the backend was unreachable.
// The ID doubles as the idempotency key for replay, so a crash between
// server acknowledgment and local removal can only produce a duplicate
// delivery the server is able to ignore.
type Operation struct {
	// ID uniquely identifies the operation.
	ID uuid.UUID `json:"id"`
	// Kind is the mutation type.
	Kind Kind `json:"kind"`
	// Resource names the resource kind the mutation targets.
	Resource string `json:"resource"`
	// Payload is the opaque mutation body.
	Payload json.RawMessage `json:"payload"`
	// EnqueuedAt is when the operation was captured.
	EnqueuedAt time.Time `json:"enqueued_at"`
	// Attempts counts completed replay rounds (retries included).
	Attempts int `json:"attempts"`
}

// Validate checks that the operation is well-formed for queueing.
func (op Operation) Validate() error {
	if op.ID == uuid.Nil {
		return fmt.Errorf("offline: operation id is required")
	}
	if !op.Kind.Valid() {
		return fmt.Errorf("offline: unknown operation kind %q", op.Kind)
	}
	if op.Resource == "" {
		return fmt.Errorf("offline: operation resource is required")
	}
	return nil
}
