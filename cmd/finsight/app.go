package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"finsight/internal/client"
	"finsight/internal/config"
	"finsight/internal/core"
	"finsight/internal/hooks"
	"finsight/internal/kv"
	"finsight/internal/log"
)

// app wires the terminal client: the API client, the durable kv store that
// holds the session and insight cache, and the output streams.
type app struct {
	cfg      *config.ClientConfig
	logger   *log.Logger
	api      *client.Client
	store    kv.Store
	sessions *client.Sessions
	notifier hooks.Notifier

	// live is set while the dashboard runs; otherwise error toasts are held
	// in failure and surface as the command's error.
	live    bool
	mu      sync.Mutex
	failure string

	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
}

func newApp(ctx context.Context, cfg *config.ClientConfig, logger *log.Logger, store kv.Store, in io.Reader, out, errOut io.Writer) (*app, error) {
	if store == nil {
		var err error
		store, err = kv.Open(ctx, kv.Options{
			Backend:   cfg.KVBackend,
			Dir:       cfg.Home,
			RedisAddr: cfg.RedisAddr,
			Prefix:    "finsight:",
		})
		if err != nil {
			return nil, fmt.Errorf("open local store: %w", err)
		}
	}
	api, err := client.New(cfg.BaseURL, client.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:      cfg,
		logger:   logger,
		api:      api,
		store:    store,
		sessions: client.NewSessions(store),
		in:       bufio.NewReader(in),
		out:      out,
		errOut:   errOut,
	}
	a.notifier = hooks.NotifierFunc(a.toast)
	return a, nil
}

func (a *app) toast(level hooks.Level, message string) {
	if level == hooks.LevelError {
		a.mu.Lock()
		a.failure = message
		live := a.live
		a.mu.Unlock()
		if !live {
			return
		}
	}
	fmt.Fprintln(a.errOut, toastStyle(level).Render(message))
}

// fetchFailure returns the last error toast as an error and forgets it.
func (a *app) fetchFailure() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failure == "" {
		return nil
	}
	err := errors.New(a.failure)
	a.failure = ""
	return err
}

func (a *app) hookOptions(feed hooks.ChangeFeed) hooks.Options {
	return hooks.Options{
		Notifier: a.notifier,
		Logger:   a.logger,
		Feed:     feed,
		Debounce: a.cfg.Debounce,
	}
}

// user restores the stored session and returns its identity.
func (a *app) user(ctx context.Context) (core.User, error) {
	sess, err := a.sessions.Load(ctx)
	if err != nil {
		return core.User{}, fmt.Errorf("%w (run `finsight login <email>`)", err)
	}
	a.api.SetToken(sess.AccessToken)
	return client.UserOf(sess.User)
}

// currency returns the profile currency, defaulting to USD.
func (a *app) currency(ctx context.Context, u core.User) string {
	p, err := a.api.GetProfile(ctx, u.ID)
	if err != nil || p.Currency == "" {
		return "USD"
	}
	return p.Currency
}

// password reads FINSIGHT_PASSWORD or one line from the input.
func (a *app) password() (string, error) {
	if pw := os.Getenv("FINSIGHT_PASSWORD"); pw != "" {
		return pw, nil
	}
	fmt.Fprint(a.errOut, "Password: ")
	line, err := a.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("%w: password is required", core.ErrInvalidInput)
	}
	return line, nil
}

// userMessage is what the terminal shows for err.
func userMessage(err error) string {
	var apiErr *core.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.UserMessage()
	case errors.Is(err, core.ErrNotAuthenticated):
		return err.Error()
	case errors.Is(err, context.Canceled):
		return "interrupted"
	}
	return err.Error()
}
