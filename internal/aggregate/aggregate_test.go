package aggregate

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recon-pipeline/internal/model"
	"github.com/sells-group/recon-pipeline/internal/store"
)

type captureNotifier struct {
	mu     sync.Mutex
	events []string
}

func (c *captureNotifier) Emit(event string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureNotifier) count(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e == event {
			n++
		}
	}
	return n
}

func newTestSetup(t *testing.T) (*Aggregator, store.Store, *captureNotifier) {
	t.Helper()

	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))

	notifier := &captureNotifier{}
	return New(s, notifier), s, notifier
}

func seed(t *testing.T, s store.Store, email string, urls ...string) []int64 {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.EnsureDomain(ctx, "acme.example"))
	require.NoError(t, s.UpsertTarget(ctx, model.Target{Email: email, Name: "Jo", DomainName: "acme.example"}))

	var ids []int64
	for _, url := range urls {
		id, err := s.InsertSource(ctx, model.SourceData{URL: url, DiscoveryMethod: "hunter"})
		require.NoError(t, err)
		require.NoError(t, s.LinkTargetSource(ctx, email, id))
		ids = append(ids, id)
	}
	return ids
}

func TestTargetAdvancesWhenAllSourcesSettle(t *testing.T) {
	agg, s, notifier := newTestSetup(t)
	ctx := context.Background()

	ids := seed(t, s, "jo@acme.example", "https://a.example/1", "https://a.example/2")

	require.NoError(t, s.MarkSourceMined(ctx, ids[0], "{}", ""))
	require.NoError(t, agg.OnSourceSettled(ctx, ids[0]))

	target, err := s.GetTarget(ctx, "jo@acme.example")
	require.NoError(t, err)
	assert.Equal(t, model.TargetStatusPending, target.Status)
	assert.Zero(t, notifier.count("targetStatusUpdated"))

	// A failed scrape still settles the source.
	require.NoError(t, s.MarkSourceFailed(ctx, ids[1], "timeout"))
	require.NoError(t, agg.OnSourceSettled(ctx, ids[1]))

	target, err = s.GetTarget(ctx, "jo@acme.example")
	require.NoError(t, err)
	assert.Equal(t, model.TargetStatusEnriched, target.Status)
	assert.Equal(t, 1, notifier.count("targetStatusUpdated"))
}

func TestTryAdvanceIsIdempotent(t *testing.T) {
	agg, s, notifier := newTestSetup(t)
	ctx := context.Background()

	ids := seed(t, s, "jo@acme.example", "https://a.example/1")
	require.NoError(t, s.MarkSourceMined(ctx, ids[0], "{}", ""))

	// Replayed settlements on an already-enriched target are no-ops: no
	// error, no second write, no second notification.
	require.NoError(t, agg.OnSourceSettled(ctx, ids[0]))
	require.NoError(t, agg.OnSourceSettled(ctx, ids[0]))

	target, err := s.GetTarget(ctx, "jo@acme.example")
	require.NoError(t, err)
	assert.Equal(t, model.TargetStatusEnriched, target.Status)
	assert.Equal(t, 1, notifier.count("targetStatusUpdated"))
}

func TestCompleteTargetIsLeftAlone(t *testing.T) {
	agg, s, _ := newTestSetup(t)
	ctx := context.Background()

	ids := seed(t, s, "jo@acme.example", "https://a.example/1")
	require.NoError(t, s.MarkSourceMined(ctx, ids[0], "{}", ""))
	require.NoError(t, agg.TryAdvanceTarget(ctx, "jo@acme.example"))
	require.NoError(t, s.UpdateTargetStatus(ctx, "jo@acme.example", model.TargetStatusComplete))

	require.NoError(t, agg.OnSourceSettled(ctx, ids[0]))

	target, err := s.GetTarget(ctx, "jo@acme.example")
	require.NoError(t, err)
	assert.Equal(t, model.TargetStatusComplete, target.Status)
}

func TestFanOutReachesAllMappedTargets(t *testing.T) {
	agg, s, _ := newTestSetup(t)
	ctx := context.Background()

	ids := seed(t, s, "jo@acme.example", "https://a.example/shared")
	require.NoError(t, s.UpsertTarget(ctx, model.Target{Email: "al@acme.example", Name: "Al", DomainName: "acme.example"}))
	require.NoError(t, s.LinkTargetSource(ctx, "al@acme.example", ids[0]))

	require.NoError(t, s.MarkSourceMined(ctx, ids[0], "{}", ""))
	require.NoError(t, agg.OnSourceSettled(ctx, ids[0]))

	for _, email := range []string{"jo@acme.example", "al@acme.example"} {
		target, err := s.GetTarget(ctx, email)
		require.NoError(t, err)
		assert.Equal(t, model.TargetStatusEnriched, target.Status, email)
	}
}

type flakyStore struct {
	store.Store
	failEmail string
}

func (f *flakyStore) GetTarget(ctx context.Context, email string) (*model.Target, error) {
	if email == f.failEmail {
		return nil, eris.Errorf("read target %s", email)
	}
	return f.Store.GetTarget(ctx, email)
}

func TestFanOutContinuesPastFailingTarget(t *testing.T) {
	_, s, _ := newTestSetup(t)
	ctx := context.Background()

	ids := seed(t, s, "jo@acme.example", "https://a.example/shared")
	require.NoError(t, s.UpsertTarget(ctx, model.Target{Email: "al@acme.example", Name: "Al", DomainName: "acme.example"}))
	require.NoError(t, s.LinkTargetSource(ctx, "al@acme.example", ids[0]))
	require.NoError(t, s.MarkSourceMined(ctx, ids[0], "{}", ""))

	agg := New(&flakyStore{Store: s, failEmail: "jo@acme.example"}, &captureNotifier{})

	// One target's failure surfaces in the returned error but does not stop
	// the other mapped target from advancing.
	err := agg.OnSourceSettled(ctx, ids[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jo@acme.example")

	target, err := s.GetTarget(ctx, "al@acme.example")
	require.NoError(t, err)
	assert.Equal(t, model.TargetStatusEnriched, target.Status)
}

func TestTargetWithNoSourcesAdvancesVacuously(t *testing.T) {
	agg, s, notifier := newTestSetup(t)
	ctx := context.Background()

	seed(t, s, "jo@acme.example")
	require.NoError(t, agg.TryAdvanceTarget(ctx, "jo@acme.example"))

	target, err := s.GetTarget(ctx, "jo@acme.example")
	require.NoError(t, err)
	// Zero mapped sources means zero pending, which counts as settled.
	assert.Equal(t, model.TargetStatusEnriched, target.Status)
	assert.Equal(t, 1, notifier.count("targetStatusUpdated"))
}
