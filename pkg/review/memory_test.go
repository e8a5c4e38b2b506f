package review

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/pkg/models"
)

// memoryDB backs every store with maps. WithinTx restores the previous state when fn
// fails, so tests can observe atomicity.
type memoryDB struct {
	mu        sync.Mutex
	seq       int
	leads     map[string]models.Lead
	conflicts map[string]models.FieldConflict
	items     map[string]models.ReviewItem
	syncs     []models.SyncRequest

	failSyncCreate bool
}

func newMemoryDB(leads ...models.Lead) *memoryDB {
	db := &memoryDB{
		leads:     map[string]models.Lead{},
		conflicts: map[string]models.FieldConflict{},
		items:     map[string]models.ReviewItem{},
	}
	for _, l := range leads {
		db.leads[l.ID] = l
	}
	return db
}

func (db *memoryDB) stores() Stores {
	return Stores{
		Leads:     memLeads{db},
		Conflicts: memConflicts{db},
		Items:     memItems{db},
		Syncs:     memSyncs{db},
		Tx:        db,
	}
}

func (db *memoryDB) nextID(prefix string) string {
	db.seq++
	return fmt.Sprintf("%s-%d", prefix, db.seq)
}

func (db *memoryDB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	db.mu.Lock()
	leads := copyMap(db.leads)
	conflicts := copyMap(db.conflicts)
	items := copyMap(db.items)
	syncs := append([]models.SyncRequest(nil), db.syncs...)
	db.mu.Unlock()

	if err := fn(ctx); err != nil {
		db.mu.Lock()
		db.leads, db.conflicts, db.items, db.syncs = leads, conflicts, items, syncs
		db.mu.Unlock()
		return err
	}
	return nil
}

func (db *memoryDB) lead(id string) models.Lead {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.leads[id]
}

func (db *memoryDB) item(id string) models.ReviewItem {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.items[id]
}

func (db *memoryDB) conflictsOf(itemID string) []models.FieldConflict {
	c, _ := memConflicts{db}.ListByReviewItem(context.Background(), itemID)
	return c
}

func (db *memoryDB) syncRequests() []models.SyncRequest {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]models.SyncRequest(nil), db.syncs...)
}

// addItem stores a pending item with conflicts created at createdAt.
func (db *memoryDB) addItem(leadID string, createdAt time.Time, conflicts ...models.FieldConflict) string {
	db.mu.Lock()
	defer db.mu.Unlock()

	id := db.nextID("item")
	db.items[id] = models.ReviewItem{
		ID:        id,
		LeadID:    leadID,
		Status:    models.ReviewStatusPending,
		DueAt:     createdAt.Add(DefaultSLA),
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	for _, c := range conflicts {
		c.ID = db.nextID("conflict")
		c.LeadID = leadID
		c.ReviewItemID = &id
		c.ResolutionStatus = models.ResolutionPending
		c.CreatedAt = createdAt
		db.conflicts[c.ID] = c
	}
	return id
}

type memLeads struct{ db *memoryDB }

func (s memLeads) Get(_ context.Context, id string) (*models.Lead, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	l, ok := s.db.leads[id]
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "lead %s not found", id)
	}
	return &l, nil
}

func (s memLeads) UpdateFields(_ context.Context, lead *models.Lead, _ []string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.leads[lead.ID] = *lead
	return nil
}

type memConflicts struct{ db *memoryDB }

func (s memConflicts) CreateBatch(_ context.Context, conflicts []models.FieldConflict) ([]models.FieldConflict, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]models.FieldConflict, len(conflicts))
	for i, c := range conflicts {
		c.ID = s.db.nextID("conflict")
		s.db.conflicts[c.ID] = c
		out[i] = c
	}
	return out, nil
}

func (s memConflicts) ListByReviewItem(_ context.Context, reviewItemID string) ([]models.FieldConflict, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []models.FieldConflict
	for _, c := range s.db.conflicts {
		if c.ReviewItemID != nil && *c.ReviewItemID == reviewItemID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out, nil
}

func (s memConflicts) ListPendingByLead(_ context.Context, leadID string) ([]models.FieldConflict, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []models.FieldConflict
	for _, c := range s.db.conflicts {
		if c.LeadID == leadID && c.ReviewItemID != nil && c.IsPending() {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].ID) != len(out[j].ID) {
			return len(out[i].ID) < len(out[j].ID)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s memConflicts) Refresh(_ context.Context, conflict models.FieldConflict) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.conflicts[conflict.ID] = conflict
	return nil
}

func (s memConflicts) Resolve(_ context.Context, conflict models.FieldConflict) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.conflicts[conflict.ID] = conflict
	return nil
}

type memItems struct{ db *memoryDB }

func (s memItems) Create(_ context.Context, item *models.ReviewItem) (*models.ReviewItem, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	item.ID = s.db.nextID("item")
	s.db.items[item.ID] = *item
	return item, nil
}

func (s memItems) Get(_ context.Context, id string) (*models.ReviewItem, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	item, ok := s.db.items[id]
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "review item %s not found", id)
	}
	return &item, nil
}

func (s memItems) GetForUpdate(ctx context.Context, id string) (*models.ReviewItem, error) {
	return s.Get(ctx, id)
}

func (s memItems) ListPending(_ context.Context, assignee string, limit int) ([]models.ReviewItem, error) {
	return s.list(func(item models.ReviewItem) bool {
		return assignee == "" || (item.Assignee != nil && *item.Assignee == assignee)
	}, limit), nil
}

func (s memItems) ListExpired(_ context.Context, createdBefore time.Time, limit int) ([]models.ReviewItem, error) {
	return s.list(func(item models.ReviewItem) bool {
		return item.CreatedAt.Before(createdBefore)
	}, limit), nil
}

func (s memItems) list(keep func(models.ReviewItem) bool, limit int) []models.ReviewItem {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []models.ReviewItem
	for _, item := range s.db.items {
		if item.IsPending() && keep(item) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s memItems) Update(_ context.Context, item *models.ReviewItem) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	stored := *item
	stored.Conflicts = nil
	s.db.items[item.ID] = stored
	return nil
}

type memSyncs struct{ db *memoryDB }

func (s memSyncs) Create(_ context.Context, req *models.SyncRequest) (*models.SyncRequest, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.failSyncCreate {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create sync request")
	}
	req.ID = s.db.nextID("sync")
	req.CreatedAt = time.Now().UTC()
	s.db.syncs = append(s.db.syncs, *req)
	return req, nil
}

func (s memSyncs) ListUnpublished(_ context.Context, limit int) ([]models.SyncRequest, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []models.SyncRequest
	for _, r := range s.db.syncs {
		if r.PublishedAt == nil {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s memSyncs) MarkPublished(_ context.Context, ids []string, at time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	marked := map[string]bool{}
	for _, id := range ids {
		marked[id] = true
	}
	for i := range s.db.syncs {
		if marked[s.db.syncs[i].ID] {
			s.db.syncs[i].PublishedAt = &at
		}
	}
	return nil
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// newTestWorkflow returns a workflow whose clock reads now.
func newTestWorkflow(db *memoryDB, now time.Time) *Workflow {
	w := NewWorkflow(testLogger(), db.stores(), DefaultPolicy())
	w.now = func() time.Time { return now }
	return w
}
