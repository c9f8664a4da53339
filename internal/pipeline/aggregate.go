package pipeline

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	appLog "zoomsync/internal/log"
	"zoomsync/internal/model"
)

const DefaultMeetingType = "upcoming"

// AggregatorConfig controls how the provider is walked.
type AggregatorConfig struct {
	// MeetingType is passed to the meeting listing ("upcoming" by default).
	MeetingType string
	// Concurrency bounds parallel list/detail calls. Values <= 1 walk the
	// provider sequentially.
	Concurrency int
}

// AggregateResult is the deduplicated, mapped meeting set of one walk.
type AggregateResult struct {
	// Meetings is ordered by first appearance of the meeting id.
	Meetings []model.MappedMeeting
	Users    int
	Pages    int
	// Listed counts meeting list entries across users, duplicates included.
	Listed int
	// Fetched counts detail calls, one per unique meeting id.
	Fetched int
	// Skipped counts meetings dropped by the mapper.
	Skipped int
}

// Aggregator walks users, their meetings and meeting details.
type Aggregator struct {
	src Source
	cfg AggregatorConfig
}

func NewAggregator(src Source, cfg AggregatorConfig) *Aggregator {
	if cfg.MeetingType == "" {
		cfg.MeetingType = DefaultMeetingType
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Aggregator{src: src, cfg: cfg}
}

// Aggregate collects every user's meetings, fetches the detail of each
// unique meeting id exactly once and maps it. Any Source error aborts the
// walk and nothing is returned.
//
// Pagination: page 1 is fetched first and its page_count read; pages
// page_number+1 through page_count (inclusive) follow. Users of page 1 are
// kept.
func (a *Aggregator) Aggregate(ctx context.Context) (AggregateResult, error) {
	var res AggregateResult

	users, pages, err := a.listUsers(ctx)
	if err != nil {
		return AggregateResult{}, err
	}
	res.Users = len(users)
	res.Pages = pages

	lists := make([][]model.MeetingRef, len(users))
	err = a.each(ctx, len(users), func(ctx context.Context, i int) error {
		refs, err := a.src.ListMeetings(ctx, users[i].Email, a.cfg.MeetingType)
		if err != nil {
			return &TransportError{Op: fmt.Sprintf("list meetings for %s", users[i].Email), Err: err}
		}
		lists[i] = refs
		return nil
	})
	if err != nil {
		return AggregateResult{}, err
	}

	// Dedup on the ordered id list before any detail call so each id is
	// fetched once no matter how many users list it.
	seen := make(map[int64]struct{})
	ids := make([]int64, 0)
	for _, refs := range lists {
		for _, ref := range refs {
			res.Listed++
			if _, ok := seen[ref.ID]; ok {
				continue
			}
			seen[ref.ID] = struct{}{}
			ids = append(ids, ref.ID)
		}
	}

	details := make([]model.RawMeeting, len(ids))
	err = a.each(ctx, len(ids), func(ctx context.Context, i int) error {
		raw, err := a.src.GetMeeting(ctx, ids[i])
		if err != nil {
			return &TransportError{Op: fmt.Sprintf("get meeting %d", ids[i]), Err: err}
		}
		if raw.ID == 0 {
			raw.ID = ids[i]
		}
		details[i] = raw
		return nil
	})
	if err != nil {
		return AggregateResult{}, err
	}
	res.Fetched = len(details)

	res.Meetings = make([]model.MappedMeeting, 0, len(details))
	for _, raw := range details {
		m, ok := MapMeeting(raw)
		if !ok {
			res.Skipped++
			appLog.Info("meeting has neither start_time nor occurrences; skipped",
				"meeting_id", raw.ID,
				"topic", model.Deref(raw.Topic),
			)
			continue
		}
		res.Meetings = append(res.Meetings, m)
	}

	appLog.Info("aggregation finished",
		"users", res.Users,
		"pages", res.Pages,
		"listed", res.Listed,
		"fetched", res.Fetched,
		"mapped", len(res.Meetings),
		"skipped", res.Skipped,
	)
	return res, nil
}

func (a *Aggregator) listUsers(ctx context.Context) ([]model.User, int, error) {
	first, err := a.src.ListUsersPage(ctx, 1)
	if err != nil {
		return nil, 0, &TransportError{Op: "list users page 1", Err: err}
	}

	all := make([]model.User, 0, len(first.Users))
	all = append(all, first.Users...)
	pages := 1

	current := first.PageNumber
	if current < 1 {
		current = 1
	}
	for n := current + 1; n <= first.PageCount; n++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		page, err := a.src.ListUsersPage(ctx, n)
		if err != nil {
			return nil, 0, &TransportError{Op: fmt.Sprintf("list users page %d", n), Err: err}
		}
		all = append(all, page.Users...)
		pages++
	}

	users := all[:0]
	for _, u := range all {
		if strings.TrimSpace(u.Email) == "" {
			appLog.Info("user without email; skipped", "user_id", u.ID)
			continue
		}
		users = append(users, u)
	}
	return users, pages, nil
}

// each runs fn for 0..n-1. Sequentially it checks ctx before every call;
// concurrently it bounds in-flight calls and stops at the first error.
func (a *Aggregator) each(ctx context.Context, n int, fn func(context.Context, int) error) error {
	if a.cfg.Concurrency <= 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
