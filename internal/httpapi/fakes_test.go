package httpapi

import (
	"context"
	"errors"
	"sort"
	"sync"

	"cardpress/internal/models"
	"cardpress/internal/queue"
)

type memTemplates struct {
	mu   sync.Mutex
	byID map[string]*models.Template
}

func newMemTemplates() *memTemplates { return &memTemplates{byID: map[string]*models.Template{}} }

func (m *memTemplates) nameTaken(name, except string) bool {
	for id, t := range m.byID {
		if id != except && t.Name == name {
			return true
		}
	}
	return false
}

func (m *memTemplates) Create(_ context.Context, t *models.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nameTaken(t.Name, "") {
		return models.ErrNameTaken
	}
	cp := *t
	m.byID[t.ID] = &cp
	return nil
}

func (m *memTemplates) List(_ context.Context, _ int) ([]models.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Template
	for _, t := range m.byID {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memTemplates) Get(_ context.Context, id string) (*models.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTemplates) Update(_ context.Context, t *models.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[t.ID]; !ok {
		return models.ErrNotFound
	}
	if m.nameTaken(t.Name, t.ID) {
		return models.ErrNameTaken
	}
	cp := *t
	m.byID[t.ID] = &cp
	return nil
}

func (m *memTemplates) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

type memAssets struct {
	mu    sync.Mutex
	byID  map[string]*models.Asset
	inUse map[string]bool
}

func newMemAssets() *memAssets {
	return &memAssets{byID: map[string]*models.Asset{}, inUse: map[string]bool{}}
}

func (m *memAssets) Create(_ context.Context, a *models.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.byID[a.ID] = &cp
	return nil
}

func (m *memAssets) GetAsset(_ context.Context, id string) (*models.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAssets) InUse(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inUse[id], nil
}

func (m *memAssets) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

type memJobs struct {
	mu      sync.Mutex
	byID    map[string]*models.Job
	results map[string][]models.JobResult
}

func newMemJobs() *memJobs {
	return &memJobs{byID: map[string]*models.Job{}, results: map[string][]models.JobResult{}}
}

func (m *memJobs) Create(_ context.Context, j *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *j
	m.byID[j.ID] = &cp
	return nil
}

func (m *memJobs) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	return nil
}

func (m *memJobs) List(_ context.Context, status models.JobStatus, _ int) ([]models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Job
	for _, j := range m.byID {
		if status == "" || j.Status == status {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (m *memJobs) Get(_ context.Context, id string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobs) CancelQueued(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.byID[id]
	if !ok || j.Status != models.JobQueued {
		return false, nil
	}
	j.Status = models.JobCanceled
	return true, nil
}

func (m *memJobs) ListResults(_ context.Context, jobID string) ([]models.JobResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.results[jobID], nil
}

type fakeQueue struct {
	mu        sync.Mutex
	pushed    []string
	published []queue.Message
	cancels   []string
	pending   []queue.Message
	pushErr   error
	pingErr   error
}

func (q *fakeQueue) Push(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pushErr != nil {
		return q.pushErr
	}
	q.pushed = append(q.pushed, jobID)
	return nil
}

func (q *fakeQueue) Publish(_ context.Context, m queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, m)
	return nil
}

// Subscribe replays the pending messages, then closes the stream.
func (q *fakeQueue) Subscribe(context.Context, string) (*queue.Subscription, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch := make(chan queue.Message, len(q.pending))
	for _, m := range q.pending {
		ch <- m
	}
	close(ch)
	return queue.NewSubscription(ch, nil), nil
}

func (q *fakeQueue) RequestCancel(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancels = append(q.cancels, jobID)
	return nil
}

func (q *fakeQueue) Ping(context.Context) error { return q.pingErr }

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

var errDown = errors.New("connection refused")
