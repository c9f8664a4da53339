package pipeline

import (
	"context"
	"errors"
	"sync"

	"zoomsync/internal/model"
)

var errBoom = errors.New("boom")

type sourceStub struct {
	mu       sync.Mutex
	pages    map[int]model.UsersPage
	meetings map[string][]model.MeetingRef
	details  map[int64]model.RawMeeting

	failUsersPage int
	failMeetings  string
	failDetail    int64

	pageCalls   []int
	detailCalls map[int64]int
	types       []string
}

func newSourceStub() *sourceStub {
	return &sourceStub{
		pages:       map[int]model.UsersPage{},
		meetings:    map[string][]model.MeetingRef{},
		details:     map[int64]model.RawMeeting{},
		detailCalls: map[int64]int{},
	}
}

// withUsers serves all emails from one page.
func (s *sourceStub) withUsers(emails ...string) *sourceStub {
	page := model.UsersPage{PageCount: 1, PageNumber: 1}
	for _, e := range emails {
		page.Users = append(page.Users, model.User{ID: "u-" + e, Email: e})
	}
	s.pages[1] = page
	return s
}

func (s *sourceStub) ListUsersPage(ctx context.Context, n int) (model.UsersPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageCalls = append(s.pageCalls, n)
	if s.failUsersPage == n {
		return model.UsersPage{}, errBoom
	}
	return s.pages[n], nil
}

func (s *sourceStub) ListMeetings(ctx context.Context, email, meetingType string) ([]model.MeetingRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types = append(s.types, meetingType)
	if s.failMeetings == email {
		return nil, errBoom
	}
	return s.meetings[email], nil
}

func (s *sourceStub) GetMeeting(ctx context.Context, id int64) (model.RawMeeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detailCalls[id]++
	if s.failDetail == id {
		return model.RawMeeting{}, errBoom
	}
	raw, ok := s.details[id]
	if !ok {
		return model.RawMeeting{}, errors.New("not found")
	}
	return raw, nil
}

type sinkStub struct {
	calls   int
	records []Record
	err     error
}

func (s *sinkStub) Emit(ctx context.Context, records []Record) error {
	s.calls++
	s.records = records
	return s.err
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func oneOff(id int64, topic, start string, minutes int) model.RawMeeting {
	return model.RawMeeting{
		ID:        id,
		Topic:     strPtr(topic),
		StartTime: strPtr(start),
		Duration:  intPtr(minutes),
		JoinURL:   strPtr("https://zoom.example/j/" + topic),
	}
}
