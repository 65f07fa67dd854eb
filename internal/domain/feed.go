package domain

import "context"

// ChatEvent is one inbound chat message from the upstream feed.
type ChatEvent struct {
	AuthorID    string
	DisplayName string
	Text        string
	IsFollower  bool
	HasSentGift bool
}

// GiftEvent signals that an author sent a gift during the current session.
type GiftEvent struct {
	AuthorID string
}

// FeedHandler receives upstream events. Callbacks may run on the connection's read
// goroutine and must be safe for concurrent use. Nil callbacks are skipped.
type FeedHandler struct {
	OnChat  func(ChatEvent)
	OnGift  func(GiftEvent)
	OnError func(error)
}

// FeedConnection is a live binding to one upstream identity.
type FeedConnection interface {
	Close() error
}

// FeedConnector opens upstream connections. Connect blocks until the feed is live or fails.
type FeedConnector interface {
	Connect(ctx context.Context, identity, token string, handler FeedHandler) (FeedConnection, error)
}

// SessionStatus describes the current upstream binding.
type SessionStatus struct {
	Connected bool   `json:"connected"`
	Identity  string `json:"identity,omitempty"`
}
