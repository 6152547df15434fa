package outbox

import (
	"strings"
	"time"
)

// Operation is the remote mutation an entry asks the sync agent to apply.
type Operation string

const (
	OpUpsert Operation = "upsert"
	OpDelete Operation = "delete"
)

// ParseOperation converts a string into a known Operation.
func ParseOperation(value string) (Operation, bool) {
	switch Operation(strings.ToLower(strings.TrimSpace(value))) {
	case OpUpsert:
		return OpUpsert, true
	case OpDelete:
		return OpDelete, true
	default:
		return "", false
	}
}

// Entry is one pending or delivered remote mutation for a prompt.
type Entry struct {
	ID          int64
	ProjectID   string
	PromptID    string
	Operation   Operation
	Payload     string
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeliveredAt *time.Time
}

// Delivered reports whether the entry has been handed off successfully.
func (e Entry) Delivered() bool {
	return e.DeliveredAt != nil
}

// Stats summarizes the outbox.
type Stats struct {
	Total     int
	Pending   int
	Retrying  int
	Delivered int
}

// DrainResult reports what a Drain pass did.
type DrainResult struct {
	Delivered  int
	Failed     int
	Superseded int
}
