package catalogsync_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/greenline/possync/internal/catalog"
	"github.com/greenline/possync/internal/catalog/catalogtest"
	"github.com/greenline/possync/internal/catalogsync"
	"github.com/greenline/possync/internal/locations"
	"github.com/greenline/possync/internal/notify"
	"github.com/greenline/possync/internal/pos"
	"github.com/greenline/possync/internal/shared"
	"github.com/greenline/possync/internal/syncrun"
)

const (
	vendor = "mjfreeway"
	actor  = int64(77)
)

type harness struct {
	store    *catalogtest.Store
	runs     *memoryRuns
	client   *fakeClient
	notifier *recordingNotifier
	orch     *catalogsync.Orchestrator
}

func location(id int64, posID string) locations.Location {
	return locations.Location{
		ID:     id,
		Name:   "Store " + posID,
		Vendor: vendor,
		POSID:  posID,
		Config: &locations.POSConfig{BaseURL: "https://pos.example.com", APIKey: "secret"},
	}
}

func newHarness(t *testing.T, locs ...locations.Location) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		store:    catalogtest.NewStore(),
		runs:     newMemoryRuns(),
		client:   newFakeClient(vendor),
		notifier: &recordingNotifier{},
	}
	h.orch = &catalogsync.Orchestrator{
		Locations: fakeLocations{all: locs},
		Clients:   pos.NewRegistry(h.client),
		Runner:    catalogsync.NewRunner(h.store, h.runs, logger, nil, 10),
		Runs:      h.runs,
		Notifier:  h.notifier,
		Logger:    logger,
		Vendors:   []string{vendor},
	}
	return h
}

func (h *harness) sync(t *testing.T) catalogsync.Summary {
	t.Helper()
	summary, err := h.orch.SynchronizeAll(context.Background(), actor)
	require.NoError(t, err)
	return summary
}

func rec(posID, name string) pos.Record {
	return pos.Record{
		PosID:    posID,
		Name:     name,
		Category: "Flower",
		InStock:  true,
		Quantity: decimal.NullDecimal{Decimal: decimal.NewFromInt(100), Valid: true},
		Unit:     "g",
	}
}

func page(records ...pos.Record) pageStep {
	return pageStep{records: records}
}

func livePosIDs(items []catalog.Item) map[string]int64 {
	out := map[string]int64{}
	for _, it := range items {
		out[it.PosID] = it.ID
	}
	return out
}

func TestSyncRecordsEveryPhase(t *testing.T) {
	h := newHarness(t, location(1, "s1"))
	h.client.script("s1", page(rec("a", "A"), rec("b", "B")), page(rec("c", "C")))

	summary := h.sync(t)
	require.Equal(t, 1, summary.Count)
	require.Equal(t, 1, summary.Completed)
	require.Equal(t, []string{"s1#0", "s1#1"}, h.client.requests)

	run := h.runs.last(1)
	require.Equal(t, syncrun.StatusCompleted, run.Status)
	require.Equal(t, 3, run.ItemCount)
	require.Equal(t, actor, run.InitiatedBy)
	require.Equal(t, []syncrun.Status{
		syncrun.StatusStarted,
		syncrun.StatusStartedRemoteInventory,
		syncrun.StatusCompletedRemoteInventory,
		syncrun.StatusUpdatingInventory,
		syncrun.StatusCompleted,
	}, h.runs.statuses(run.ID))
	require.Len(t, h.store.LiveItems(1), 3)
	require.Empty(t, h.notifier.all())
}

func TestSyncIsIdempotent(t *testing.T) {
	h := newHarness(t, location(1, "s1"))
	h.client.script("s1", page(rec("a", "A"), rec("b", "B")))

	h.sync(t)
	first := h.store.LiveItems(1)

	h.sync(t)
	second := h.store.LiveItems(1)

	require.Len(t, second, len(first))
	for i := range first {
		require.Equal(t, first[i].ID, second[i].ID)
		require.Equal(t, first[i].Name, second[i].Name)
		require.Equal(t, first[i].Category, second[i].Category)
		require.Equal(t, first[i].Deleted, second[i].Deleted)
	}
	require.Len(t, h.store.Items(1), 2)
}

func TestSyncReplacesFullCatalog(t *testing.T) {
	h := newHarness(t, location(1, "s1"))
	gone := h.store.Seed(catalog.Item{LocationID: 1, PosID: "gone", Name: "Gone"})
	kept := h.store.Seed(catalog.Item{LocationID: 1, PosID: "kept", Name: "Old name", CreatedBy: 5})
	h.client.script("s1", page(rec("kept", "New name"), rec("new", "New")))

	h.sync(t)

	live := livePosIDs(h.store.LiveItems(1))
	require.Len(t, live, 2)
	require.Equal(t, kept.ID, live["kept"])
	require.Contains(t, live, "new")
	require.NotContains(t, live, "gone")

	for _, it := range h.store.Items(1) {
		switch it.PosID {
		case "gone":
			require.Equal(t, gone.ID, it.ID)
			require.True(t, it.Deleted)
			require.Equal(t, actor, it.UpdatedBy)
		case "kept":
			require.Equal(t, "New name", it.Name)
			require.Equal(t, int64(5), it.CreatedBy)
		}
	}
}

func TestSyncMirrorsWeightTiers(t *testing.T) {
	h := newHarness(t, location(1, "s1"))
	tier := func(id string, grams int64) pos.Tier {
		return pos.Tier{PosID: id, Price: decimal.NewFromInt(grams * 10), Weight: decimal.NewFromInt(grams)}
	}
	withTiers := func(tiers ...pos.Tier) pos.Record {
		r := rec("a", "A")
		r.Pricing = &pos.Pricing{Price: decimal.NewFromInt(10), Group: "g", Tiers: tiers}
		return r
	}

	h.client.script("s1", page(withTiers(tier("1g", 1), tier("3.5g", 3))))
	h.sync(t)
	h.client.script("s1", page(withTiers(tier("3.5g", 3), tier("7g", 7))))
	h.sync(t)

	item := h.store.LiveItems(1)[0]
	pricing, ok := h.store.PricingFor(item.ID)
	require.True(t, ok)

	live := map[string]bool{}
	for _, tr := range h.store.Tiers(pricing.ID) {
		if !tr.Deleted {
			live[tr.PosID] = true
		}
	}
	require.Equal(t, map[string]bool{"3.5g": true, "7g": true}, live)
}

func TestSyncRollsBackWhenLaterPageFails(t *testing.T) {
	h := newHarness(t, location(1, "s1"))
	h.store.Seed(catalog.Item{LocationID: 1, PosID: "a", Name: "Before"})
	h.store.Seed(catalog.Item{LocationID: 1, PosID: "z", Name: "Only local"})
	before := h.store.Items(1)

	h.client.script("s1",
		page(rec("a", "After"), rec("b", "B")),
		pageStep{err: &pos.TransportError{Vendor: vendor, URL: "https://pos.example.com/products", Err: errRemoteDown}},
	)

	summary := h.sync(t)
	require.Equal(t, 1, summary.Count)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, before, h.store.Items(1))

	run := h.runs.last(1)
	require.Equal(t, syncrun.StatusFailed, run.Status)
	require.Contains(t, run.Message, "connection reset")
	require.Equal(t, 2, run.ItemCount)

	alerts := h.notifier.all()
	require.Len(t, alerts, 1)
	require.Equal(t, notify.KindTransport, alerts[0].err.Kind)
	require.Equal(t, int64(1), alerts[0].err.LocationID)
	require.NotEmpty(t, alerts[0].err.RunID)
}

func TestSyncRollsBackWhenUpsertFails(t *testing.T) {
	h := newHarness(t, location(1, "s1"))
	h.store.Seed(catalog.Item{LocationID: 1, PosID: "a", Name: "Before"})
	before := h.store.Items(1)
	h.store.FailInsertPosID = "bad"
	h.client.script("s1", page(rec("a", "After"), rec("bad", "Bad"), rec("c", "C")))

	summary := h.sync(t)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, before, h.store.Items(1))
	require.Equal(t, []string{"s1#0"}, h.client.requests)

	alerts := h.notifier.all()
	require.Len(t, alerts, 1)
	require.Equal(t, notify.KindInternal, alerts[0].err.Kind)
	require.Contains(t, alerts[0].err.Message, catalogtest.ErrInjected.Error())
}

func TestSyncGuardsAgainstEmptyFirstPage(t *testing.T) {
	h := newHarness(t, location(1, "s1"))
	h.store.Seed(catalog.Item{LocationID: 1, PosID: "a", Name: "Keep me"})
	before := h.store.Items(1)
	h.client.script("s1", page())

	summary := h.sync(t)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, before, h.store.Items(1))
	require.Zero(t, h.store.Commits)

	run := h.runs.last(1)
	require.Equal(t, syncrun.StatusFailed, run.Status)
	require.Contains(t, run.Message, "no products on the first page")
	require.Equal(t, []syncrun.Status{
		syncrun.StatusStarted,
		syncrun.StatusStartedRemoteInventory,
		syncrun.StatusFailed,
	}, h.runs.statuses(run.ID))

	alerts := h.notifier.all()
	require.Len(t, alerts, 1)
	require.Equal(t, notify.KindEmptyPage, alerts[0].err.Kind)
}

func TestSyncIsolatesLocations(t *testing.T) {
	h := newHarness(t, location(1, "bad"), location(2, "good"))
	h.store.Seed(catalog.Item{LocationID: 1, PosID: "a", Name: "A"})
	beforeA := h.store.Items(1)

	h.client.script("bad", pageStep{err: &pos.RemoteHTTPError{Vendor: vendor, URL: "u", StatusCode: 503, Body: "maintenance"}})
	h.client.script("good", page(rec("x", "X")))

	summary := h.sync(t)
	require.Equal(t, 2, summary.Count)
	require.Equal(t, 1, summary.Completed)
	require.Equal(t, 1, summary.Failed)
	require.Contains(t, summary.Message, "processed 2 locations (1 completed, 1 failed, 0 skipped)")

	require.Equal(t, beforeA, h.store.Items(1))
	require.Len(t, h.store.LiveItems(2), 1)
	require.Equal(t, syncrun.StatusFailed, h.runs.last(1).Status)
	require.Equal(t, syncrun.StatusCompleted, h.runs.last(2).Status)

	alerts := h.notifier.all()
	require.Len(t, alerts, 1)
	require.Equal(t, 503, alerts[0].err.StatusCode)
	require.Equal(t, "maintenance", alerts[0].err.Body)
	require.Contains(t, alerts[0].subject, "location 1")
}

func TestSyncHidesLowStock(t *testing.T) {
	h := newHarness(t, location(1, "s1"))
	low := rec("low", "Low")
	low.Quantity = decimal.NullDecimal{Decimal: decimal.NewFromInt(5), Valid: true}
	h.client.script("s1", page(low, rec("ok", "Ok")))

	h.sync(t)

	live := livePosIDs(h.store.LiveItems(1))
	require.NotContains(t, live, "low")
	require.Contains(t, live, "ok")
	require.Len(t, h.store.Items(1), 2)
}

func TestSyncSkipsLocationsWithoutConfig(t *testing.T) {
	noConfig := location(1, "s1")
	noConfig.Config = nil
	noPosID := location(2, "")
	h := newHarness(t, noConfig, noPosID, location(3, "s3"))
	h.client.script("s3", page(rec("a", "A")))

	summary := h.sync(t)
	require.Equal(t, 3, summary.Count)
	require.Equal(t, 2, summary.Skipped)
	require.Equal(t, 1, summary.Completed)

	for _, id := range []int64{1, 2} {
		run := h.runs.last(id)
		require.Equal(t, syncrun.StatusFailed, run.Status)
		require.Contains(t, run.Message, "missing configuration")
	}
	require.Empty(t, h.notifier.all())
	require.Equal(t, []string{"s3#0"}, h.client.requests)
}

func TestSyncHonoursLocationAllowList(t *testing.T) {
	h := newHarness(t, location(1, "s1"), location(2, "s2"))
	h.orch.LocationIDs = []int64{2}
	h.client.script("s2", page(rec("a", "A")))

	summary := h.sync(t)
	require.Equal(t, 1, summary.Count)
	require.Empty(t, h.runs.forLocation(1))
}

func TestSyncStopsAtPageLimit(t *testing.T) {
	h := newHarness(t, location(1, "s1"))
	h.orch.Runner.MaxPages = 2
	h.client.script("s1", page(rec("a", "A")), page(rec("b", "B")), page(rec("c", "C")))

	summary := h.sync(t)
	require.Equal(t, 1, summary.Failed)
	require.Empty(t, h.store.Items(1))
	require.Equal(t, notify.KindPageLimit, h.notifier.all()[0].err.Kind)
	require.Equal(t, 1, h.runs.failCalls)
	require.Equal(t, syncrun.StatusFailed, h.runs.last(1).Status)
}

func TestSyncRefusesWhileVendorLocked(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := shared.NewLocker(client, time.Minute)

	h := newHarness(t, location(1, "s1"))
	h.orch.Locker = locker
	h.client.script("s1", page(rec("a", "A")))

	held, err := locker.Acquire(context.Background(), shared.CatalogSyncLockKey(vendor))
	require.NoError(t, err)

	_, err = h.orch.Synchronize(context.Background(), catalogsync.Pass{Vendor: vendor, InitiatedBy: actor})
	require.ErrorIs(t, err, catalogsync.ErrSyncInProgress)
	require.Empty(t, h.runs.forLocation(1))

	require.NoError(t, held.Release(context.Background()))

	summary, err := h.orch.Synchronize(context.Background(), catalogsync.Pass{Vendor: " MJFreeway ", InitiatedBy: actor})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Completed)
	require.False(t, mr.Exists(shared.CatalogSyncLockKey(vendor)))
}

func TestSyncStopsWhenVendorLockExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := newHarness(t, location(1, "s1"), location(2, "s2"))
	h.orch.Locker = shared.NewLocker(client, time.Minute)
	h.client.script("s1", page(rec("a", "A")))
	h.client.script("s2", page(rec("b", "B")))
	h.client.onFetch = func(posID string) {
		if posID == "s1" {
			mr.FastForward(2 * time.Minute)
		}
	}

	_, err := h.orch.Synchronize(context.Background(), catalogsync.Pass{Vendor: vendor, InitiatedBy: actor})
	require.ErrorIs(t, err, shared.ErrLockLost)
	require.Len(t, h.store.Items(1), 1)
	require.Empty(t, h.runs.forLocation(2))
	require.Empty(t, h.store.Items(2))
}

func TestSyncExtendsVendorLockPerLocation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := newHarness(t, location(1, "s1"), location(2, "s2"), location(3, "s3"))
	h.orch.Locker = shared.NewLocker(client, time.Minute)
	for _, id := range []string{"s1", "s2", "s3"} {
		h.client.script(id, page(rec("a-"+id, "A")))
	}
	// Each location takes 40s, so the pass outlives a single ttl.
	h.client.onFetch = func(string) { mr.FastForward(40 * time.Second) }

	summary, err := h.orch.Synchronize(context.Background(), catalogsync.Pass{Vendor: vendor, InitiatedBy: actor})
	require.NoError(t, err)
	require.Equal(t, 3, summary.Completed)
}

func TestSynchronizeAllReportsListingFailure(t *testing.T) {
	h := newHarness(t)
	h.orch.Locations = fakeLocations{err: errors.New("db down")}

	summary, err := h.orch.SynchronizeAll(context.Background(), actor)
	require.ErrorContains(t, err, "db down")
	require.Zero(t, summary.Count)
	require.Contains(t, summary.Message, "db down")
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func TestSyncAuditsPass(t *testing.T) {
	h := newHarness(t, location(1, "s1"))
	audit := &recordingAudit{}
	h.orch.Audit = audit
	h.client.script("s1", page(rec("a", "A")))

	summary, err := h.orch.Synchronize(context.Background(), catalogsync.Pass{Vendor: vendor, InitiatedBy: actor})
	require.NoError(t, err)

	require.Len(t, audit.logs, 1)
	require.Equal(t, shared.AuditActionSyncPass, audit.logs[0].Action)
	require.Equal(t, vendor, audit.logs[0].EntityID)
	require.Equal(t, summary.RunID.String(), audit.logs[0].Meta["run_id"])
	require.Equal(t, 1, audit.logs[0].Meta["completed"])
}
