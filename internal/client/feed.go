package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"finsight/internal/core"
	"finsight/internal/hooks"
	"finsight/internal/log"
)

const feedBuffer = 16

var (
	_ hooks.TransactionStore = (*Client)(nil)
	_ hooks.GoalStore        = (*Client)(nil)
	_ hooks.ProfileStore     = (*Client)(nil)
	_ hooks.AvatarStore      = (*Client)(nil)
	_ hooks.ChangeFeed       = (*Client)(nil)
	_ hooks.InsightsEndpoint = (*Client)(nil)
)

// Subscribe opens the realtime WebSocket for table. Events for other users
// are dropped. The subscription ends when ctx is done or Close is called.
func (c *Client) Subscribe(ctx context.Context, table string, userID uuid.UUID) (hooks.Subscription, error) {
	if !core.ValidTable(table) {
		return nil, fmt.Errorf("%w: unknown table %q", core.ErrInvalidInput, table)
	}
	endpoint, err := c.feedURL(table)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if token := c.Token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := c.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil && resp.StatusCode >= 300 {
			defer resp.Body.Close()
			return nil, statusError(resp)
		}
		return nil, fmt.Errorf("dial change feed: %w", err)
	}

	s := &feedSubscription{
		conn:   conn,
		userID: userID,
		events: make(chan core.ChangeEvent, feedBuffer),
		done:   make(chan struct{}),
		logger: c.logger.With(log.FieldTable, table),
	}
	stop := context.AfterFunc(ctx, func() { s.Close() })
	go func() {
		defer stop()
		s.readLoop()
	}()
	return s, nil
}

func (c *Client) feedURL(table string) (string, error) {
	u, err := url.Parse(c.base + "/api/realtime")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.RawQuery = url.Values{"table": {table}}.Encode()
	return u.String(), nil
}

type feedSubscription struct {
	conn   *websocket.Conn
	userID uuid.UUID
	events chan core.ChangeEvent
	done   chan struct{}
	once   sync.Once
	logger *log.Logger
}

func (s *feedSubscription) Events() <-chan core.ChangeEvent { return s.events }

func (s *feedSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = s.conn.Close()
	})
	return err
}

// readLoop owns the events channel and closes it when the connection ends.
// The default ping handler answers the server's keepalive pings.
func (s *feedSubscription) readLoop() {
	defer close(s.events)
	for {
		var ev core.ChangeEvent
		if err := s.conn.ReadJSON(&ev); err != nil {
			select {
			case <-s.done:
			default:
				if !isClosed(err) {
					s.logger.Warn("Change feed closed", log.FieldError, err.Error())
				}
				s.conn.Close()
			}
			return
		}
		if err := ev.Validate(); err != nil {
			s.logger.Debug("Ignoring invalid change event", log.FieldError, err.Error())
			continue
		}
		if s.userID != uuid.Nil && ev.UserID != s.userID {
			continue
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

func isClosed(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	return errors.Is(err, net.ErrClosed)
}
