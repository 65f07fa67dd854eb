package domain

import "time"

// CommentState is the lifecycle position of a Comment.
type CommentState string

const (
	CommentPending  CommentState = "pending"  // waiting in the moderation queue
	CommentApproved CommentState = "approved" // moderator accepted, not yet queued
	CommentDenied   CommentState = "denied"   // terminal
	CommentQueued   CommentState = "queued"   // waiting in the speech queue
	CommentRetired  CommentState = "retired"  // terminal
)

// Comment is an admitted chat message moving through moderation and speech.
type Comment struct {
	ID          string       `json:"id"`
	Text        string       `json:"text"`
	AuthorID    string       `json:"authorId"`
	DisplayName string       `json:"displayName"`
	IsFollower  bool         `json:"isFollower"`
	HasSentGift bool         `json:"hasSentGift"`
	State       CommentState `json:"state"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// QueueSnapshot is a read-only copy of both queues and the current settings.
type QueueSnapshot struct {
	PendingModeration []Comment `json:"pendingModeration"`
	PendingSpeech     []Comment `json:"pendingSpeech"`
	Settings          Settings  `json:"settings"`
}
