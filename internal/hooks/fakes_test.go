package hooks

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"finsight/internal/core"
)

var (
	alice = core.User{ID: uuid.MustParse("11111111-1111-4111-8111-111111111111"), Email: "alice@example.com"}
	bob   = core.User{ID: uuid.MustParse("22222222-2222-4222-8222-222222222222"), Email: "bob@example.com"}
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(_ Level, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

type fakeTxStore struct {
	mu        sync.Mutex
	txs       []core.Transaction
	cats      []core.Category
	listErr   error
	createErr error
	deleteErr error
	lists     atomic.Int32
	creates   atomic.Int32
	deletes   atomic.Int32
}

func (s *fakeTxStore) ListTransactions(_ context.Context, _ uuid.UUID) ([]core.Transaction, error) {
	s.lists.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]core.Transaction(nil), s.txs...), nil
}

func (s *fakeTxStore) ListCategories(_ context.Context, _ uuid.UUID) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Category(nil), s.cats...), nil
}

func (s *fakeTxStore) CreateTransaction(_ context.Context, userID uuid.UUID, in core.TransactionInput) (core.Transaction, error) {
	s.creates.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return core.Transaction{}, s.createErr
	}
	tx := core.Transaction{ID: uuid.New(), UserID: userID, Amount: in.Amount, Type: in.Type, Date: in.Date, Description: in.Description}
	s.txs = append([]core.Transaction{tx}, s.txs...)
	return tx, nil
}

func (s *fakeTxStore) DeleteTransaction(_ context.Context, _ uuid.UUID, id uuid.UUID) error {
	s.deletes.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	for i, tx := range s.txs {
		if tx.ID == id {
			s.txs = append(s.txs[:i], s.txs[i+1:]...)
			break
		}
	}
	return nil
}

type goalUpdate struct {
	id    uuid.UUID
	patch core.GoalPatch
}

type fakeGoalStore struct {
	mu        sync.Mutex
	goals     map[uuid.UUID][]core.Goal
	block     map[uuid.UUID]chan struct{}
	started   chan uuid.UUID
	updates   []goalUpdate
	deleteErr error
	lists     atomic.Int32
}

func newFakeGoalStore() *fakeGoalStore {
	return &fakeGoalStore{goals: map[uuid.UUID][]core.Goal{}, block: map[uuid.UUID]chan struct{}{}}
}

func (s *fakeGoalStore) ListGoals(ctx context.Context, userID uuid.UUID) ([]core.Goal, error) {
	s.lists.Add(1)
	s.mu.Lock()
	wait := s.block[userID]
	started := s.started
	s.mu.Unlock()
	if started != nil {
		started <- userID
	}
	if wait != nil {
		<-wait
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Goal(nil), s.goals[userID]...), nil
}

func (s *fakeGoalStore) CreateGoal(_ context.Context, userID uuid.UUID, in core.GoalInput) (core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := core.Goal{ID: uuid.New(), UserID: userID, Name: in.Name, TargetAmount: in.TargetAmount, CurrentAmount: in.CurrentAmount, Status: core.GoalInProgress}
	s.goals[userID] = append(s.goals[userID], g)
	return g, nil
}

func (s *fakeGoalStore) UpdateGoal(_ context.Context, userID, id uuid.UUID, patch core.GoalPatch) (core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, goalUpdate{id: id, patch: patch})
	for i, g := range s.goals[userID] {
		if g.ID == id {
			s.goals[userID][i] = patch.Apply(g)
			return s.goals[userID][i], nil
		}
	}
	return core.Goal{}, core.ErrNotFound
}

func (s *fakeGoalStore) DeleteGoal(_ context.Context, _ uuid.UUID, _ uuid.UUID) error {
	return s.deleteErr
}

func (s *fakeGoalStore) updateCalls() []goalUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]goalUpdate(nil), s.updates...)
}

type fakeSub struct {
	ch     chan core.ChangeEvent
	closed atomic.Bool
}

func (s *fakeSub) Events() <-chan core.ChangeEvent { return s.ch }
func (s *fakeSub) Close() error                    { s.closed.Store(true); return nil }

type fakeFeed struct {
	mu   sync.Mutex
	subs []*fakeSub
	err  error
}

func (f *fakeFeed) Subscribe(_ context.Context, _ string, _ uuid.UUID) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s := &fakeSub{ch: make(chan core.ChangeEvent, 16)}
	f.subs = append(f.subs, s)
	return s, nil
}

func (f *fakeFeed) last() *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

func (f *fakeFeed) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeFeed) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeProfileStore struct {
	mu      sync.Mutex
	profile *core.Profile
	patches []core.ProfilePatch
}

func (s *fakeProfileStore) GetProfile(_ context.Context, _ uuid.UUID) (core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil {
		return core.Profile{}, core.ErrNotFound
	}
	return *s.profile, nil
}

func (s *fakeProfileStore) UpdateProfile(_ context.Context, userID uuid.UUID, patch core.ProfilePatch) (core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patches = append(s.patches, patch)
	if s.profile == nil {
		s.profile = &core.Profile{UserID: userID, Theme: core.ThemeSystem}
	}
	p := patch.Apply(*s.profile)
	s.profile = &p
	return p, nil
}

type fakeAvatars struct {
	mu       sync.Mutex
	uploaded []string
	deleted  []string
}

func (a *fakeAvatars) UploadAvatar(_ context.Context, path, _ string, body io.Reader) (string, error) {
	if _, err := io.ReadAll(body); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.uploaded = append(a.uploaded, path)
	return "https://cdn.example.com/avatars/" + path, nil
}

func (a *fakeAvatars) DeleteAvatar(_ context.Context, url string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deleted = append(a.deleted, url)
	return nil
}
