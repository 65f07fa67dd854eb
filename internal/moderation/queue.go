package moderation

import (
	"slices"

	"github.com/Saileeich/Saileeich-TTS/internal/domain"
)

// QueueCoordinator owns the moderation and speech queues. Both are FIFO and a comment is
// in at most one of them. It is not safe for concurrent use; Engine serializes calls.
type QueueCoordinator struct {
	moderation []domain.Comment
	speech     []domain.Comment
}

func NewQueueCoordinator() *QueueCoordinator {
	return &QueueCoordinator{}
}

// Len is the combined length of both queues.
func (q *QueueCoordinator) Len() int {
	return len(q.moderation) + len(q.speech)
}

// ModerationLen is the length of the moderation queue.
func (q *QueueCoordinator) ModerationLen() int {
	return len(q.moderation)
}

// SpeechLen is the length of the speech queue.
func (q *QueueCoordinator) SpeechLen() int {
	return len(q.speech)
}

// PendingModeration returns a copy of the moderation queue. Never nil.
func (q *QueueCoordinator) PendingModeration() []domain.Comment {
	return copyQueue(q.moderation)
}

// PendingSpeech returns a copy of the speech queue. Never nil.
func (q *QueueCoordinator) PendingSpeech() []domain.Comment {
	return copyQueue(q.speech)
}

// Admit appends an admitted comment to the moderation queue when manual moderation is on,
// otherwise straight to the speech queue. Capacity is checked by Admission beforehand.
func (q *QueueCoordinator) Admit(c domain.Comment, manualModeration bool) domain.Comment {
	if manualModeration {
		c.State = domain.CommentPending
		q.moderation = append(q.moderation, c)
		return c
	}
	c.State = domain.CommentQueued
	q.speech = append(q.speech, c)
	return c
}

// Approve removes id from the moderation queue and queues it for speech when the residual
// capacity allows. The returned bool is false for "approved but not queued".
func (q *QueueCoordinator) Approve(id string, capacity int) (domain.Comment, bool, error) {
	i := indexOf(q.moderation, id)
	if i < 0 {
		return domain.Comment{}, false, domain.ErrCommentNotFound
	}
	c := q.moderation[i]
	q.moderation = slices.Delete(q.moderation, i, i+1)
	c.State = domain.CommentApproved

	if len(q.speech) >= capacity-len(q.moderation) {
		return c, false, nil
	}
	c.State = domain.CommentQueued
	q.speech = append(q.speech, c)
	return c, true, nil
}

// Deny removes id from the moderation queue and discards it.
func (q *QueueCoordinator) Deny(id string) (domain.Comment, error) {
	i := indexOf(q.moderation, id)
	if i < 0 {
		return domain.Comment{}, domain.ErrCommentNotFound
	}
	c := q.moderation[i]
	q.moderation = slices.Delete(q.moderation, i, i+1)
	c.State = domain.CommentDenied
	return c, nil
}

// RetireFromSpeech removes id from the speech queue if present.
func (q *QueueCoordinator) RetireFromSpeech(id string) (domain.Comment, bool) {
	i := indexOf(q.speech, id)
	if i < 0 {
		return domain.Comment{}, false
	}
	c := q.speech[i]
	q.speech = slices.Delete(q.speech, i, i+1)
	c.State = domain.CommentRetired
	return c, true
}

// ClearSpeech empties the speech queue and returns the retired comments.
func (q *QueueCoordinator) ClearSpeech() []domain.Comment {
	cleared := q.speech
	q.speech = nil
	for i := range cleared {
		cleared[i].State = domain.CommentRetired
	}
	return cleared
}

// ClearModeration empties the moderation queue and returns the discarded comments.
func (q *QueueCoordinator) ClearModeration() []domain.Comment {
	cleared := q.moderation
	q.moderation = nil
	for i := range cleared {
		cleared[i].State = domain.CommentDenied
	}
	return cleared
}

// Shrink evicts the newest moderation entries, then the newest speech entries, until the
// combined length fits capacity.
func (q *QueueCoordinator) Shrink(capacity int) (evictedModeration, evictedSpeech []domain.Comment) {
	for q.Len() > capacity && len(q.moderation) > 0 {
		last := len(q.moderation) - 1
		c := q.moderation[last]
		c.State = domain.CommentDenied
		evictedModeration = append(evictedModeration, c)
		q.moderation = q.moderation[:last]
	}
	for q.Len() > capacity && len(q.speech) > 0 {
		last := len(q.speech) - 1
		c := q.speech[last]
		c.State = domain.CommentRetired
		evictedSpeech = append(evictedSpeech, c)
		q.speech = q.speech[:last]
	}
	return evictedModeration, evictedSpeech
}

func indexOf(queue []domain.Comment, id string) int {
	return slices.IndexFunc(queue, func(c domain.Comment) bool { return c.ID == id })
}

func copyQueue(queue []domain.Comment) []domain.Comment {
	out := make([]domain.Comment, len(queue))
	copy(out, queue)
	return out
}
