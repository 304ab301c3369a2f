package queue_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ifuryst/herald/internal/models"
)

// memStore is an in-memory Store that keeps the conditional-update semantics
// of the gorm repository.
type memStore struct {
	mu  sync.Mutex
	now func() time.Time

	jobs          map[string]*models.PublishJob
	items         map[string]*models.ContentItem
	variants      []*models.ContentVariant
	connections   map[string]*models.Connection
	assets        map[string]models.MediaAsset
	notifications []*models.Notification
	heartbeats    map[string]models.WorkerHeartbeat
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		now:         now,
		jobs:        make(map[string]*models.PublishJob),
		items:       make(map[string]*models.ContentItem),
		connections: make(map[string]*models.Connection),
		assets:      make(map[string]models.MediaAsset),
		heartbeats:  make(map[string]models.WorkerHeartbeat),
	}
}

func connKey(accountID, provider string) string {
	return accountID + "|" + provider
}

func (s *memStore) addItem(item *models.ContentItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
}

func (s *memStore) addVariant(v *models.ContentVariant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variants = append(s.variants, v)
}

func (s *memStore) addConnection(c *models.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[connKey(c.AccountID, c.Provider)] = c
}

func (s *memStore) addAsset(a models.MediaAsset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[a.ID] = a
}

func (s *memStore) addJob(j *models.PublishJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j.UpdatedAt.IsZero() {
		j.UpdatedAt = s.now()
	}
	s.jobs[j.ID] = j
}

func (s *memStore) job(id string) models.PublishJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

func (s *memStore) item(id string) models.ContentItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.items[id]
}

func (s *memStore) connection(accountID, provider string) models.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.connections[connKey(accountID, provider)]
}

func (s *memStore) categories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.notifications))
	for _, n := range s.notifications {
		out = append(out, n.Category)
	}
	return out
}

func (s *memStore) jobsFor(contentItemID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, j := range s.jobs {
		if j.ContentItemID == contentItemID {
			count++
		}
	}
	return count
}

func (s *memStore) GetMediaAssets(_ context.Context, ids []string) ([]models.MediaAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.MediaAsset
	for _, id := range ids {
		if a, ok := s.assets[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) CreateNotification(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
	return nil
}

func (s *memStore) RecordHeartbeat(_ context.Context, name, source string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeats[name] = models.WorkerHeartbeat{Name: name, LastRunAt: at, Source: source, UpdatedAt: at}
	return nil
}

func (s *memStore) RecoverStuckJobs(_ context.Context, cutoff time.Time, reason string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, j := range s.jobs {
		if j.Status != models.JobStatusInProgress || !j.UpdatedAt.Before(cutoff) {
			continue
		}
		now := s.now()
		msg := reason
		j.Status = models.JobStatusQueued
		j.LastError = &msg
		j.NextAttemptAt = &now
		j.UpdatedAt = now
		if item, ok := s.items[j.ContentItemID]; ok && item.Status == models.ContentStatusPublishing {
			item.Status = models.ContentStatusScheduled
		}
		count++
	}
	return count, nil
}

func (s *memStore) FindBackfillCandidates(_ context.Context, dueBy time.Time, limit int) ([]models.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hasJob := make(map[string]bool)
	for _, j := range s.jobs {
		hasJob[j.ContentItemID] = true
	}

	var out []models.ContentItem
	for _, item := range s.items {
		if hasJob[item.ID] || item.DeletedAt.Valid || item.ScheduledFor.After(dueBy) {
			continue
		}
		if item.Status != models.ContentStatusScheduled && item.Status != models.ContentStatusQueued {
			continue
		}
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) CreateJobIfAbsent(_ context.Context, job *models.PublishJob) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.ContentItemID == job.ContentItemID {
			return false, nil
		}
	}
	copied := *job
	copied.CreatedAt = s.now()
	copied.UpdatedAt = s.now()
	s.jobs[job.ID] = &copied
	return true, nil
}

func (s *memStore) DueJobs(_ context.Context, dueBy time.Time, limit int) ([]models.PublishJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PublishJob
	for _, j := range s.jobs {
		if j.Status == models.JobStatusQueued && j.NextAttemptAt != nil && !j.NextAttemptAt.After(dueBy) {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].NextAttemptAt.Before(*out[k].NextAttemptAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) LockJob(_ context.Context, id string) (*models.PublishJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Status != models.JobStatusQueued {
		return nil, false, nil
	}
	j.Status = models.JobStatusInProgress
	j.Attempt++
	j.UpdatedAt = s.now()
	copied := *j
	return &copied, true, nil
}

func (s *memStore) inProgress(id string) (*models.PublishJob, bool) {
	j, ok := s.jobs[id]
	if !ok || j.Status != models.JobStatusInProgress {
		return nil, false
	}
	return j, true
}

func (s *memStore) CompleteJob(_ context.Context, id string, providerResponse []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.inProgress(id)
	if !ok {
		return false, nil
	}
	j.Status = models.JobStatusSucceeded
	j.ProviderResponse = providerResponse
	j.LastError = nil
	j.NextAttemptAt = nil
	j.UpdatedAt = s.now()
	return true, nil
}

func (s *memStore) RescheduleJob(_ context.Context, id string, next time.Time, lastError string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.inProgress(id)
	if !ok {
		return false, nil
	}
	j.Status = models.JobStatusQueued
	j.NextAttemptAt = &next
	j.LastError = &lastError
	j.UpdatedAt = s.now()
	return true, nil
}

func (s *memStore) DeferJob(ctx context.Context, id string, next time.Time, lastError string) (bool, error) {
	ok, err := s.RescheduleJob(ctx, id, next, lastError)
	if ok {
		s.mu.Lock()
		s.jobs[id].ShortRetries++
		s.mu.Unlock()
	}
	return ok, err
}

func (s *memStore) FailJob(_ context.Context, id string, lastError string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.inProgress(id)
	if !ok {
		return false, nil
	}
	j.Status = models.JobStatusFailed
	j.LastError = &lastError
	j.NextAttemptAt = nil
	j.UpdatedAt = s.now()
	return true, nil
}

func (s *memStore) GetContentItem(_ context.Context, id string) (*models.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok || item.DeletedAt.Valid {
		return nil, nil
	}
	copied := *item
	return &copied, nil
}

func (s *memStore) SetContentStatus(_ context.Context, id string, status models.ContentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.items[id]; ok {
		item.Status = status
	}
	return nil
}

func (s *memStore) GetVariant(_ context.Context, id string) (*models.ContentVariant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.variants {
		if v.ID == id {
			copied := *v
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memStore) LatestVariant(_ context.Context, contentItemID string) (*models.ContentVariant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.ContentVariant
	for _, v := range s.variants {
		if v.ContentItemID != contentItemID {
			continue
		}
		if latest == nil || v.UpdatedAt.After(latest.UpdatedAt) {
			latest = v
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (s *memStore) GetConnection(_ context.Context, accountID, provider string) (*models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[connKey(accountID, provider)]
	if !ok {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (s *memStore) MarkConnectionNeedsAction(_ context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.connections {
		if c.ID == id {
			c.Status = models.ConnectionStatusNeedsAction
			c.StatusReason = reason
		}
	}
	return nil
}
