package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zoomsync/internal/model"
)

func TestAggregatePaginatesThroughPageCount(t *testing.T) {
	src := newSourceStub()
	src.pages[1] = model.UsersPage{PageCount: 3, PageNumber: 1, Users: []model.User{{Email: "a@x"}}}
	src.pages[2] = model.UsersPage{PageCount: 3, PageNumber: 2, Users: []model.User{{Email: "b@x"}}}
	src.pages[3] = model.UsersPage{PageCount: 3, PageNumber: 3, Users: []model.User{{Email: "c@x"}, {ID: "no-mail"}}}
	src.meetings["c@x"] = []model.MeetingRef{{ID: 1}}
	src.details[1] = oneOff(1, "last-page", "2024-01-10T09:00:00Z", 30)

	res, err := NewAggregator(src, AggregatorConfig{}).Aggregate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, src.pageCalls)
	assert.Equal(t, 3, res.Users)
	assert.Equal(t, 3, res.Pages)
	require.Len(t, res.Meetings, 1)
	assert.Equal(t, int64(1), res.Meetings[0].ID)
	assert.Equal(t, []string{"upcoming", "upcoming", "upcoming"}, src.types)
}

func TestAggregateSinglePage(t *testing.T) {
	src := newSourceStub().withUsers("a@x")

	res, err := NewAggregator(src, AggregatorConfig{MeetingType: "scheduled"}).Aggregate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1}, src.pageCalls)
	assert.Equal(t, 1, res.Users)
	assert.Empty(t, res.Meetings)
	assert.Equal(t, []string{"scheduled"}, src.types)
}

func TestAggregateDedupsAcrossUsers(t *testing.T) {
	for _, conc := range []int{1, 4} {
		src := newSourceStub().withUsers("a@x", "b@x")
		src.meetings["a@x"] = []model.MeetingRef{{ID: 10}, {ID: 20}}
		src.meetings["b@x"] = []model.MeetingRef{{ID: 20}, {ID: 30}, {ID: 10}}
		src.details[10] = oneOff(10, "ten", "2024-01-10T09:00:00Z", 30)
		src.details[20] = oneOff(20, "twenty", "2024-01-11T09:00:00Z", 30)
		src.details[30] = oneOff(30, "thirty", "2024-01-12T09:00:00Z", 30)

		res, err := NewAggregator(src, AggregatorConfig{Concurrency: conc}).Aggregate(context.Background())
		require.NoError(t, err)

		ids := make([]int64, 0, len(res.Meetings))
		for _, m := range res.Meetings {
			ids = append(ids, m.ID)
		}
		assert.Equal(t, []int64{10, 20, 30}, ids, "concurrency %d", conc)
		assert.Equal(t, map[int64]int{10: 1, 20: 1, 30: 1}, src.detailCalls, "concurrency %d", conc)
		assert.Equal(t, 5, res.Listed)
		assert.Equal(t, 3, res.Fetched)
	}
}

func TestAggregateCountsSkipped(t *testing.T) {
	src := newSourceStub().withUsers("a@x")
	src.meetings["a@x"] = []model.MeetingRef{{ID: 1}, {ID: 2}}
	src.details[1] = model.RawMeeting{ID: 1, Topic: strPtr("no time")}
	src.details[2] = model.RawMeeting{ID: 2, Occurrences: []model.Occurrence{{StartTime: "2024-01-10T09:00:00Z", Duration: 60}}}

	res, err := NewAggregator(src, AggregatorConfig{}).Aggregate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Meetings, 1)
	assert.Equal(t, int64(2), res.Meetings[0].ID)
}

func TestAggregateAbortsOnTransportError(t *testing.T) {
	cases := []struct {
		name  string
		setup func(*sourceStub)
		op    string
	}{
		{name: "users page", setup: func(s *sourceStub) { s.failUsersPage = 2 }, op: "list users page 2"},
		{name: "meetings", setup: func(s *sourceStub) { s.failMeetings = "b@x" }, op: "list meetings for b@x"},
		{name: "detail", setup: func(s *sourceStub) { s.failDetail = 2 }, op: "get meeting 2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := newSourceStub()
			src.pages[1] = model.UsersPage{PageCount: 2, PageNumber: 1, Users: []model.User{{Email: "a@x"}}}
			src.pages[2] = model.UsersPage{PageCount: 2, PageNumber: 2, Users: []model.User{{Email: "b@x"}}}
			src.meetings["a@x"] = []model.MeetingRef{{ID: 1}}
			src.meetings["b@x"] = []model.MeetingRef{{ID: 2}}
			src.details[1] = oneOff(1, "one", "2024-01-10T09:00:00Z", 30)
			src.details[2] = oneOff(2, "two", "2024-01-10T09:00:00Z", 30)
			tc.setup(src)

			res, err := NewAggregator(src, AggregatorConfig{}).Aggregate(context.Background())
			require.Error(t, err)
			var te *TransportError
			require.True(t, errors.As(err, &te), "%v", err)
			assert.Equal(t, tc.op, te.Op)
			assert.ErrorIs(t, err, errBoom)
			assert.Empty(t, res.Meetings)
		})
	}
}

func TestAggregateHonorsCancellation(t *testing.T) {
	src := newSourceStub().withUsers("a@x", "b@x")
	src.meetings["a@x"] = []model.MeetingRef{{ID: 1}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAggregator(src, AggregatorConfig{}).Aggregate(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, src.detailCalls)
}
