// Package twitch bridges Twitch IRC chat into live-feed events.
package twitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	twitchirc "github.com/gempir/go-twitch-irc/v4"
	"github.com/jonboulle/clockwork"

	"github.com/Saileeich/Saileeich-TTS/internal/domain"
	"github.com/Saileeich/Saileeich-TTS/internal/platform/retry"
)

const (
	connectAttempts       = 3
	connectInitialBackoff = time.Second
	connectMaxBackoff     = 4 * time.Second
)

// ircClient is the part of *twitchirc.Client the connector drives.
type ircClient interface {
	OnConnect(callback func())
	OnPrivateMessage(callback func(message twitchirc.PrivateMessage))
	OnUserNoticeMessage(callback func(message twitchirc.UserNoticeMessage))
	Join(channels ...string)
	Connect() error
	Disconnect() error
}

// Connector opens one IRC connection per bound channel.
type Connector struct {
	botUsername string
	botToken    string
	clock       clockwork.Clock
	newClient   func(username, token string) ircClient
}

// NewConnector creates a connector. botUsername and botToken are optional; without them
// and without a session token the connection is anonymous and read-only.
func NewConnector(botUsername, botToken string, clock clockwork.Clock) *Connector {
	return &Connector{
		botUsername: botUsername,
		botToken:    botToken,
		clock:       clock,
		newClient:   newIRCClient,
	}
}

func newIRCClient(username, token string) ircClient {
	if username == "" || token == "" {
		return twitchirc.NewAnonymousClient()
	}
	return twitchirc.NewClient(username, token)
}

// Connect joins identity's chat and returns once the server has welcomed the client. ctx
// bounds only the connect; the connection lives until Close or an upstream failure, which
// is reported once through handler.OnError.
func (c *Connector) Connect(ctx context.Context, identity, token string, handler domain.FeedHandler) (domain.FeedConnection, error) {
	username, oauth := c.credentials(identity, token)

	policy := retry.Policy{
		MaxAttempts:    connectAttempts,
		InitialBackoff: connectInitialBackoff,
		MaxBackoff:     connectMaxBackoff,
		Clock:          c.clock,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.WarnContext(ctx, "IRC connect failed, retrying", "channel", identity, "attempt", attempt, "backoff", backoff, "error", err)
		},
	}

	conn, err := retry.Do(ctx, policy, classifyConnectError, func(ctx context.Context) (*connection, error) {
		return c.connectOnce(ctx, username, oauth, identity, handler)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, err)
	}

	slog.InfoContext(ctx, "Joined Twitch chat", "channel", identity, "anonymous", username == "")
	return conn, nil
}

func (c *Connector) credentials(identity, token string) (string, string) {
	if token != "" {
		return identity, oauthToken(token)
	}
	if c.botUsername != "" && c.botToken != "" {
		return c.botUsername, oauthToken(c.botToken)
	}
	return "", ""
}

func oauthToken(token string) string {
	if strings.HasPrefix(token, "oauth:") {
		return token
	}
	return "oauth:" + token
}

func (c *Connector) connectOnce(ctx context.Context, username, token, channel string, handler domain.FeedHandler) (*connection, error) {
	client := c.newClient(username, token)
	conn := &connection{client: client, done: make(chan struct{})}

	welcomed := make(chan struct{})
	var welcomeOnce sync.Once
	client.OnConnect(func() {
		client.Join(channel)
		welcomeOnce.Do(func() { close(welcomed) })
	})
	client.OnPrivateMessage(func(m twitchirc.PrivateMessage) {
		if handler.OnChat != nil {
			handler.OnChat(toChatEvent(m))
		}
	})
	client.OnUserNoticeMessage(func(m twitchirc.UserNoticeMessage) {
		if ev, ok := toGiftEvent(m); ok && handler.OnGift != nil {
			handler.OnGift(ev)
		}
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Connect()
	}()

	select {
	case <-welcomed:
		go conn.watch(errCh, handler)
		return conn, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		// Disconnect is a no-op while still dialing, so tear down whenever the dial settles.
		go func() {
			select {
			case <-welcomed:
				_ = client.Disconnect()
				<-errCh
			case <-errCh:
			}
		}()
		_ = client.Disconnect()
		return nil, ctx.Err()
	}
}

func classifyConnectError(err error) retry.Action {
	switch {
	case errors.Is(err, twitchirc.ErrLoginAuthenticationFailed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return retry.Stop
	default:
		return retry.Retry
	}
}

// connection is a joined IRC session.
type connection struct {
	client  ircClient
	closing atomic.Bool
	done    chan struct{}
}

// watch waits for Connect to return and reports it unless the close was ours.
func (c *connection) watch(errCh <-chan error, handler domain.FeedHandler) {
	defer close(c.done)

	err := <-errCh
	if c.closing.Load() || errors.Is(err, twitchirc.ErrClientDisconnected) {
		return
	}
	if err == nil {
		err = errors.New("irc connection closed")
	}
	if handler.OnError != nil {
		handler.OnError(err)
	}
}

// Close disconnects and waits for the read loop to stop.
func (c *connection) Close() error {
	if !c.closing.CompareAndSwap(false, true) {
		<-c.done
		return nil
	}

	err := c.client.Disconnect()
	<-c.done
	if err != nil && !errors.Is(err, twitchirc.ErrConnectionIsNotOpen) {
		return fmt.Errorf("disconnect irc: %w", err)
	}
	return nil
}
