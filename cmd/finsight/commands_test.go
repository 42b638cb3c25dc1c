package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/internal/auth"
	"finsight/internal/client"
	"finsight/internal/config"
	"finsight/internal/core"
	"finsight/internal/hooks"
	apihttp "finsight/internal/http"
	"finsight/internal/insights"
	"finsight/internal/kv"
	"finsight/internal/log"
	"finsight/internal/objstore"
	"finsight/internal/realtime"
	"finsight/internal/services"
	"finsight/internal/storage"
)

// startAPI runs the real API on SQLite and returns its base URL.
func startAPI(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	store, err := storage.Open(ctx, storage.Config{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "cli.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	issuer, err := auth.NewIssuer("cli-test-secret-0123456", time.Hour)
	require.NoError(t, err)

	ts := httptest.NewUnstartedServer(nil)
	baseURL := "http://" + ts.Listener.Addr().String()
	bucket, err := objstore.NewLocal(t.TempDir(), baseURL+"/objects")
	require.NoError(t, err)

	hub := realtime.NewHub(16, nil)
	srv := apihttp.NewServer(":0", apihttp.Options{RateLimitPerMinute: 1000}, apihttp.Deps{
		Auth:     auth.NewService(store, issuer, nil),
		Finance:  services.NewFinance(store, realtime.NewBridge(hub, nil, nil), core.PolicyManual, nil),
		Exporter: services.NewExporter(store, store, nil, nil),
		Insights: insights.NewService(nil, insights.Config{}, nil),
		Bucket:   bucket,
		Objects:  bucket.Handler(),
		Realtime: realtime.NewHandler(hub, nil, nil),
		Ready:    store,
	})
	ts.Config.Handler = srv.Handler
	ts.Start()
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown(context.Background())
	})
	return ts.URL
}

type terminal struct {
	t     *testing.T
	app   *app
	out   bytes.Buffer
	store kv.Store
}

func newTerminal(t *testing.T, baseURL string) *terminal {
	t.Helper()
	term := &terminal{t: t, store: kv.NewMemoryStore()}
	cfg := &config.ClientConfig{BaseURL: baseURL, KVBackend: "memory", Debounce: 10 * time.Millisecond}
	a, err := newApp(context.Background(), cfg, log.Discard(), term.store, strings.NewReader(""), &term.out, &term.out)
	require.NoError(t, err)
	term.app = a
	return term
}

// exec runs one command line and returns what it printed.
func (term *terminal) exec(args ...string) (string, error) {
	term.out.Reset()
	err := term.app.run(context.Background(), args)
	return term.out.String(), err
}

func (term *terminal) must(args ...string) string {
	term.t.Helper()
	out, err := term.exec(args...)
	require.NoError(term.t, err, "finsight %s: %s", strings.Join(args, " "), out)
	return out
}

func TestCommandFlow(t *testing.T) {
	t.Setenv("FINSIGHT_PASSWORD", "correct-horse")
	term := newTerminal(t, startAPI(t))

	out := term.must("signup", "--name", "Ada", "ada@example.com")
	assert.Contains(t, out, "Signed up as ada@example.com")

	term.must("tx", "add", "--amount", "12.50", "--desc", "Coffee", "--category", "food", "--date", "2026-03-02")
	term.must("tx", "add", "--amount", "2000", "--type", "income", "--desc", "Salary", "--date", "2026-03-01")

	out = term.must("tx", "list")
	assert.Contains(t, out, "Coffee")
	assert.Contains(t, out, "Food")
	assert.Contains(t, out, "12.50")
	assert.Contains(t, out, "2000.00")

	out = term.must("goals", "add", "--name", "Bike", "--target", "500", "--deadline", "2030-01-01")
	assert.Contains(t, out, "Created goal Bike")

	ctx := context.Background()
	u, err := term.app.user(ctx)
	require.NoError(t, err)
	goals, err := term.app.api.ListGoals(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, goals, 1)
	prefix := goals[0].ID.String()[:6]

	out = term.must("goals", "fund", prefix, "100")
	assert.Contains(t, out, " 20%")
	out = term.must("goals", "fund", "--withdraw", prefix, "50")
	assert.Contains(t, out, " 10%")
	_, err = term.exec("goals", "fund", "--withdraw", prefix, "500")
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	out = term.must("goals", "status", prefix, "reached")
	assert.Contains(t, out, "reached")

	out = term.must("summary")
	assert.Contains(t, out, "Totals")
	assert.Contains(t, out, "1987.50")

	// the test server runs without a spreadsheet
	_, err = term.exec("export")
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, client.StatusCode(err))

	out = term.must("profile", "set", "--currency", "eur")
	assert.Contains(t, out, "EUR")
	out = term.must("profile")
	assert.Contains(t, out, "ada@example.com")

	out = term.must("watch", "--once")
	assert.Contains(t, out, "Recent transactions")
	assert.Contains(t, out, "Coffee")
	assert.Contains(t, out, "Bike")

	out = term.must("insights")
	assert.Contains(t, out, "Insights")
	assert.NotContains(t, out, "cached")
	out = term.must("insights")
	assert.Contains(t, out, "cached")

	txs, err := term.app.api.ListTransactions(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	out = term.must("tx", "rm", txs[0].ID.String()[:8])
	assert.Contains(t, out, "Deleted transaction")

	out = term.must("logout")
	assert.Contains(t, out, "Signed out")
	_, err = term.exec("tx", "list")
	assert.ErrorIs(t, err, core.ErrNotAuthenticated)

	_, ok := readCachedInsights(t, term.store)
	assert.False(t, ok, "logout clears the insight cache")

	out = term.must("login", "ada@example.com")
	assert.Contains(t, out, "Signed in as ada@example.com")
	out = term.must("tx", "list")
	assert.NotContains(t, out, "Coffee")
}

func readCachedInsights(t *testing.T, store kv.Store) ([]byte, bool) {
	t.Helper()
	raw, err := store.Get(context.Background(), hooks.InsightsCacheKey)
	return raw, err == nil
}

func TestCommandErrors(t *testing.T) {
	t.Setenv("FINSIGHT_PASSWORD", "correct-horse")
	term := newTerminal(t, startAPI(t))

	_, err := term.exec()
	assert.ErrorIs(t, err, errUsage)
	_, err = term.exec("launch")
	assert.ErrorIs(t, err, errUsage)
	_, err = term.exec("login")
	assert.ErrorIs(t, err, errUsage)

	_, err = term.exec("summary")
	assert.ErrorIs(t, err, core.ErrNotAuthenticated)

	term.must("signup", "bob@example.com")
	_, err = term.exec("signup", "bob@example.com")
	assert.ErrorIs(t, err, core.ErrConflict)

	_, err = term.exec("tx", "add", "--amount", "-4")
	assert.Error(t, err)
	_, err = term.exec("tx", "add", "--amount", "4", "--category", "Rent")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = term.exec("tx", "rm", "ffff")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = term.exec("profile", "set")
	assert.ErrorIs(t, err, errUsage)
	_, err = term.exec("goals", "frobnicate")
	assert.ErrorIs(t, err, errUsage)
}

func TestUserMessage(t *testing.T) {
	err := &core.APIError{Status: 422, Message: "validation failed", Details: "amount must be positive"}
	assert.Equal(t, "amount must be positive", userMessage(err))
	assert.Equal(t, "interrupted", userMessage(context.Canceled))
}
