package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/ifuryst/herald/internal/models"
	"github.com/ifuryst/herald/internal/service/alert"
	"github.com/ifuryst/herald/internal/service/media"
	"github.com/ifuryst/herald/internal/service/notify"
	"github.com/ifuryst/herald/internal/service/publisher"
	"github.com/ifuryst/herald/internal/service/queue"
)

var baseTime = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakePublisher struct {
	platform string

	mu       sync.Mutex
	requests []publisher.Request
	err      error
}

func (f *fakePublisher) Platform() string { return f.platform }

func (f *fakePublisher) Publish(_ context.Context, req publisher.Request) (*publisher.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &publisher.Result{
		Platform:    f.platform,
		ExternalID:  "ext-" + f.platform,
		Preview:     req.Body,
		PublishedAt: baseTime,
		Raw:         []byte(`{"id":"ext"}`),
	}, nil
}

func (f *fakePublisher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type recordingAlerter struct {
	mu       sync.Mutex
	messages []alert.Message
}

func (a *recordingAlerter) Alert(_ context.Context, msg alert.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, msg)
	return nil
}

func (a *recordingAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.messages)
}

type staticSigner struct{}

func (staticSigner) SignURLs(_ context.Context, paths []string, _ time.Duration) (map[string]string, error) {
	urls := make(map[string]string, len(paths))
	for _, p := range paths {
		urls[p] = "https://signed.test/" + p
	}
	return urls, nil
}

type harness struct {
	clock     *clock
	store     *memStore
	pubs      map[string]*fakePublisher
	alerts    *recordingAlerter
	lifecycle *queue.Lifecycle
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clk := &clock{t: baseTime}
	store := newMemStore(clk.now)
	logger := zap.NewNop()

	registry := publisher.NewRegistry(logger)
	pubs := make(map[string]*fakePublisher)
	for _, platform := range []string{publisher.PlatformFacebook, publisher.PlatformInstagram, publisher.PlatformGoogleBusiness} {
		fp := &fakePublisher{platform: platform}
		pubs[platform] = fp
		require.NoError(t, registry.Register(fp))
	}

	alerts := &recordingAlerter{}
	lifecycle := queue.NewLifecycle(
		store,
		registry,
		media.NewResolver(store, staticSigner{}, time.Hour, logger),
		notify.NewNotifier(store, logger),
		alerts,
		queue.DefaultLifecycleOptions(),
		logger,
	).WithClock(clk.now)

	return &harness{
		clock:     clk,
		store:     store,
		pubs:      pubs,
		alerts:    alerts,
		lifecycle: lifecycle,
	}
}

type seedOptions struct {
	platform     string
	placement    models.Placement
	body         string
	mediaIDs     []string
	scheduledFor time.Time
	metadata     datatypes.JSONMap
	noVariant    bool
	noJob        bool
}

var defaultMetadata = map[string]datatypes.JSONMap{
	publisher.PlatformFacebook:       {"pageId": "page-1"},
	publisher.PlatformInstagram:      {"businessId": "biz-1"},
	publisher.PlatformGoogleBusiness: {"locationId": "loc-1", "accountId": "acct-gbp"},
}

const (
	testJobID     = "job-1"
	testItemID    = "item-1"
	testAccountID = "acct-1"
)

// seed creates one content item with a variant, an active connection and a
// queued job due at scheduledFor.
func (h *harness) seed(opts seedOptions) {
	if opts.placement == "" {
		opts.placement = models.PlacementFeed
	}
	if opts.scheduledFor.IsZero() {
		opts.scheduledFor = baseTime
	}
	if opts.metadata == nil {
		opts.metadata = defaultMetadata[opts.platform]
	}

	h.store.addItem(&models.ContentItem{
		ID:           testItemID,
		AccountID:    testAccountID,
		Platform:     opts.platform,
		Placement:    opts.placement,
		ScheduledFor: opts.scheduledFor,
		Status:       models.ContentStatusScheduled,
		CampaignName: "Spring launch",
	})

	if !opts.noVariant {
		h.store.addVariant(&models.ContentVariant{
			ID:            "variant-1",
			ContentItemID: testItemID,
			Body:          opts.body,
			MediaIDs:      opts.mediaIDs,
			UpdatedAt:     baseTime.Add(-time.Hour),
		})
	}

	h.store.addConnection(&models.Connection{
		ID:          "conn-1",
		AccountID:   testAccountID,
		Provider:    opts.platform,
		Status:      models.ConnectionStatusActive,
		AccessToken: "token-1",
		Metadata:    opts.metadata,
	})

	if !opts.noJob {
		next := opts.scheduledFor
		h.store.addJob(&models.PublishJob{
			ID:            testJobID,
			ContentItemID: testItemID,
			Status:        models.JobStatusQueued,
			NextAttemptAt: &next,
			Placement:     opts.placement,
		})
	}
}

func (h *harness) process(t *testing.T) queue.Outcome {
	t.Helper()

	outcome, err := h.lifecycle.Process(context.Background(), testJobID)
	require.NoError(t, err)
	return outcome
}
