package pipeline

import (
	"context"
	"fmt"

	"zoomsync/internal/model"
)

// Source is the provider API as the pipeline sees it. Implementations own
// authentication, transport and any retry policy.
type Source interface {
	ListUsersPage(ctx context.Context, pageNumber int) (model.UsersPage, error)
	ListMeetings(ctx context.Context, userEmail, meetingType string) ([]model.MeetingRef, error)
	GetMeeting(ctx context.Context, meetingID int64) (model.RawMeeting, error)
}

// Sink receives the full ordered record set of a run.
type Sink interface {
	Emit(ctx context.Context, records []Record) error
}

// TransportError wraps any Source failure. It aborts the run.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
