package catalogsync_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/greenline/possync/internal/locations"
	"github.com/greenline/possync/internal/notify"
	"github.com/greenline/possync/internal/pos"
	"github.com/greenline/possync/internal/syncrun"
)

type memoryRuns struct {
	mu        sync.Mutex
	runs      map[int64]*syncrun.Run
	history   map[int64][]syncrun.Status
	nextID    int64
	failCalls int
}

func newMemoryRuns() *memoryRuns {
	return &memoryRuns{runs: map[int64]*syncrun.Run{}, history: map[int64][]syncrun.Status{}}
}

func (m *memoryRuns) Start(ctx context.Context, run syncrun.Run) (syncrun.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	run.ID = m.nextID
	run.Status = syncrun.StatusStarted
	stored := run
	m.runs[run.ID] = &stored
	m.history[run.ID] = []syncrun.Status{syncrun.StatusStarted}
	return run, nil
}

func (m *memoryRuns) Advance(ctx context.Context, id int64, next syncrun.Status, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return syncrun.ErrNotFound
	}
	if !run.Status.CanAdvance(next) {
		return fmt.Errorf("%w: %s -> %s", syncrun.ErrIllegalTransition, run.Status, next)
	}
	run.Status = next
	run.Message = message
	m.history[id] = append(m.history[id], next)
	return nil
}

func (m *memoryRuns) Fail(ctx context.Context, id int64, message string) error {
	m.mu.Lock()
	m.failCalls++
	m.mu.Unlock()
	return m.Advance(ctx, id, syncrun.StatusFailed, message)
}

func (m *memoryRuns) IncrementCount(ctx context.Context, id int64, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return syncrun.ErrNotFound
	}
	run.ItemCount += delta
	return nil
}

// forLocation returns the runs of a location in creation order.
func (m *memoryRuns) forLocation(locationID int64) []syncrun.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []syncrun.Run
	for id := int64(1); id <= m.nextID; id++ {
		if r, ok := m.runs[id]; ok && r.LocationID == locationID {
			out = append(out, *r)
		}
	}
	return out
}

func (m *memoryRuns) last(locationID int64) syncrun.Run {
	runs := m.forLocation(locationID)
	if len(runs) == 0 {
		return syncrun.Run{}
	}
	return runs[len(runs)-1]
}

func (m *memoryRuns) statuses(id int64) []syncrun.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]syncrun.Status(nil), m.history[id]...)
}

// pageStep is one scripted response of the fake remote.
type pageStep struct {
	records []pos.Record
	err     error
}

type fakeClient struct {
	mu     sync.Mutex
	vendor string
	// pages maps a pos location id to its scripted pages.
	pages    map[string][]pageStep
	requests []string
	// onFetch runs before every page request.
	onFetch func(posID string)
}

func newFakeClient(vendor string) *fakeClient {
	return &fakeClient{vendor: vendor, pages: map[string][]pageStep{}}
}

func (c *fakeClient) Vendor() string { return c.vendor }

func (c *fakeClient) script(posID string, steps ...pageStep) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[posID] = steps
}

func (c *fakeClient) FetchPage(ctx context.Context, target pos.Target, page int) (pos.PageResult, error) {
	if c.onFetch != nil {
		c.onFetch(target.PosID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, fmt.Sprintf("%s#%d", target.PosID, page))
	steps := c.pages[target.PosID]
	if page >= len(steps) {
		return pos.PageResult{}, fmt.Errorf("unexpected page %d", page)
	}
	step := steps[page]
	if step.err != nil {
		return pos.PageResult{}, step.err
	}
	return pos.PageResult{
		Records:     step.records,
		CurrentPage: page,
		LastPage:    len(steps) - 1,
		Total:       len(step.records),
	}, nil
}

type fakeLocations struct {
	all []locations.Location
	err error
}

func (f fakeLocations) ListEligible(ctx context.Context, filter locations.Filter) ([]locations.Location, error) {
	if f.err != nil {
		return nil, f.err
	}
	allow := map[int64]bool{}
	for _, id := range filter.LocationIDs {
		allow[id] = true
	}
	var out []locations.Location
	for _, loc := range f.all {
		if loc.Deleted || loc.Vendor != filter.Vendor {
			continue
		}
		if len(allow) > 0 && !allow[loc.ID] {
			continue
		}
		out = append(out, loc)
	}
	return out, nil
}

type alert struct {
	subject string
	err     notify.SerializedError
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []alert
}

func (n *recordingNotifier) Notify(ctx context.Context, subject string, serr notify.SerializedError) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert{subject: subject, err: serr})
	return nil
}

func (n *recordingNotifier) all() []alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]alert(nil), n.alerts...)
}

var errRemoteDown = errors.New("connection reset by peer")
