package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/internal/amqp"
	"finsight/internal/auth"
	"finsight/internal/core"
)

var (
	alice = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	bob   = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

func event(table string, user uuid.UUID) core.ChangeEvent {
	return core.ChangeEvent{Table: table, Type: core.ChangeInsert, RecordID: uuid.New(), UserID: user, At: time.Now()}
}

func TestHub_RoutesByTableAndUser(t *testing.T) {
	hub := NewHub(4, nil)

	aliceTx, err := hub.Subscribe(core.TableTransactions, alice)
	require.NoError(t, err)
	aliceGoals, err := hub.Subscribe(core.TableGoals, alice)
	require.NoError(t, err)
	bobTx, err := hub.Subscribe(core.TableTransactions, bob)
	require.NoError(t, err)
	assert.Equal(t, 3, hub.Subscribers())

	ev := event(core.TableTransactions, alice)
	assert.Equal(t, 1, hub.Publish(ev))

	select {
	case got := <-aliceTx.Events():
		assert.Equal(t, ev.RecordID, got.RecordID)
	default:
		t.Fatal("alice transactions subscription got nothing")
	}
	assert.Len(t, aliceGoals.Events(), 0)
	assert.Len(t, bobTx.Events(), 0)
}

func TestHub_DropsWhenBufferFull(t *testing.T) {
	hub := NewHub(2, nil)
	sub, err := hub.Subscribe(core.TableGoals, alice)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		hub.Publish(event(core.TableGoals, alice))
	}
	assert.Len(t, sub.Events(), 2)
	assert.Equal(t, int64(3), hub.Dropped())
}

func TestHub_CloseUnregisters(t *testing.T) {
	hub := NewHub(1, nil)
	sub, err := hub.Subscribe(core.TableGoals, alice)
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Equal(t, 0, hub.Subscribers())
	assert.Equal(t, 0, hub.Publish(event(core.TableGoals, alice)))

	_, ok := <-sub.Events()
	assert.False(t, ok, "events channel should be closed")
}

func TestHub_SubscribeValidation(t *testing.T) {
	hub := NewHub(1, nil)
	_, err := hub.Subscribe("users", alice)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = hub.Subscribe(core.TableGoals, uuid.Nil)
	assert.ErrorIs(t, err, core.ErrNotAuthenticated)
}

type fakeBroker struct {
	mu        sync.Mutex
	origin    string
	published []core.ChangeEvent
	inbox     []*amqp.ChangeMessage
	err       error
}

func (f *fakeBroker) PublishChange(_ context.Context, ev core.ChangeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, ev)
	return f.err
}

func (f *fakeBroker) Consume(ctx context.Context, handler amqp.Handler) error {
	for _, m := range f.inbox {
		if err := handler(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeBroker) Origin() string { return f.origin }

func TestBridge_PublishDeliversLocallyAndForwards(t *testing.T) {
	hub := NewHub(4, nil)
	broker := &fakeBroker{origin: "me", err: errors.New("broker down")}
	bridge := NewBridge(hub, broker, nil)

	sub, err := hub.Subscribe(core.TableTransactions, alice)
	require.NoError(t, err)

	err = bridge.Publish(context.Background(), event(core.TableTransactions, alice))
	assert.Error(t, err)
	assert.Len(t, sub.Events(), 1, "local delivery happens even when forwarding fails")
	assert.Len(t, broker.published, 1)
}

func TestBridge_RunSkipsOwnOrigin(t *testing.T) {
	hub := NewHub(4, nil)
	mine := event(core.TableGoals, alice)
	theirs := event(core.TableGoals, alice)
	broker := &fakeBroker{
		origin: "me",
		inbox: []*amqp.ChangeMessage{
			amqp.NewChangeMessage(mine, "me"),
			amqp.NewChangeMessage(theirs, "other-instance"),
		},
	}
	sub, err := hub.Subscribe(core.TableGoals, alice)
	require.NoError(t, err)

	require.NoError(t, NewBridge(hub, broker, nil).Run(context.Background()))

	require.Len(t, sub.Events(), 1)
	got := <-sub.Events()
	assert.Equal(t, theirs.RecordID, got.RecordID)
}

func TestBridge_NilBrokerIsLocalOnly(t *testing.T) {
	hub := NewHub(4, nil)
	bridge := NewBridge(hub, nil, nil)
	sub, err := hub.Subscribe(core.TableGoals, alice)
	require.NoError(t, err)

	require.NoError(t, bridge.Publish(context.Background(), event(core.TableGoals, alice)))
	assert.Len(t, sub.Events(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, bridge.Run(ctx), context.Canceled)
}

// asUser stands in for auth.Middleware.
func asUser(id uuid.UUID, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), id)))
	})
}

func TestHandler_StreamsOwnEvents(t *testing.T) {
	hub := NewHub(8, nil)
	srv := httptest.NewServer(asUser(alice, NewHandler(hub, nil, nil)))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/realtime?table=transactions"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	hub.Publish(event(core.TableTransactions, bob))
	want := event(core.TableTransactions, alice)
	hub.Publish(want)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got core.ChangeEvent
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, want.RecordID, got.RecordID)
	assert.Equal(t, alice, got.UserID)
	assert.Equal(t, core.ChangeInsert, got.Type)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHandler_RejectsBeforeUpgrade(t *testing.T) {
	hub := NewHub(8, nil)

	tests := []struct {
		name    string
		handler http.Handler
		query   string
		status  int
	}{
		{"unauthenticated", NewHandler(hub, nil, nil), "table=goals", http.StatusUnauthorized},
		{"unknown table", asUser(alice, NewHandler(hub, nil, nil)), "table=users", http.StatusBadRequest},
		{"missing table", asUser(alice, NewHandler(hub, nil, nil)), "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/realtime?"+tt.query, nil)
			rec := httptest.NewRecorder()
			tt.handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
	assert.Equal(t, 0, hub.Subscribers())
}
