package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/Saileeich/Saileeich-TTS/internal/adapter/metrics"
	"github.com/Saileeich/Saileeich-TTS/internal/domain"
)

// ErrStopped is returned by calls that need a reply after Stop.
var ErrStopped = errors.New("broadcaster stopped")

const (
	commandBufferSize = 1024
	commandTimeout    = 5 * time.Second // Actor command timeout
	stopTimeout       = 10 * time.Second
)

// broadcasterCmd is the command interface for the Broadcaster actor.
type broadcasterCmd interface{ isBroadcasterCmd() }

type baseBroadcasterCmd struct{}

func (baseBroadcasterCmd) isBroadcasterCmd() {}

type registerCmd struct {
	baseBroadcasterCmd
	observerID   uuid.UUID
	connection   *websocket.Conn
	errorChannel chan error
}

type unregisterCmd struct {
	baseBroadcasterCmd
	observerID uuid.UUID
}

type joinCmd struct {
	baseBroadcasterCmd
	observerID uuid.UUID
	role       domain.Role
	frames     [][]byte
	// streamer joins also receive the live moderator count and session status
	withCounts bool
}

type publishCmd struct {
	baseBroadcasterCmd
	role domain.Role
	data []byte
}

type directCmd struct {
	baseBroadcasterCmd
	observerID uuid.UUID
	data       []byte
}

type sessionCmd struct {
	baseBroadcasterCmd
	status domain.SessionStatus
}

type getCountsCmd struct {
	baseBroadcasterCmd
	replyChannel chan domain.ObserverCounts
}

type getSessionCmd struct {
	baseBroadcasterCmd
	replyChannel chan domain.SessionStatus
}

type stopCmd struct {
	baseBroadcasterCmd
}

type observer struct {
	writer *clientWriter
	role   domain.Role // empty until declared
}

// Broadcaster owns the observer registry and fans notifications out to observers by role.
// All registry state lives on the actor goroutine; socket writes happen on per-observer
// writer goroutines, so no command ever blocks on network I/O.
type Broadcaster struct {
	cmdCh       chan broadcasterCmd
	clock       clockwork.Clock
	observers   map[uuid.UUID]*observer
	session     domain.SessionStatus
	metrics     *metrics.WebSocketMetrics
	done        chan struct{}
	stopTimeout time.Duration
}

// NewBroadcaster creates and starts a broadcaster. wsMetrics may be nil.
func NewBroadcaster(clock clockwork.Clock, wsMetrics *metrics.WebSocketMetrics) *Broadcaster {
	b := &Broadcaster{
		cmdCh:       make(chan broadcasterCmd, commandBufferSize),
		clock:       clock,
		observers:   make(map[uuid.UUID]*observer),
		metrics:     wsMetrics,
		done:        make(chan struct{}),
		stopTimeout: stopTimeout,
	}
	go b.run()
	return b
}

// Register adds an unclassified observer. It receives nothing until it joins with a role.
func (b *Broadcaster) Register(observerID uuid.UUID, conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	b.enqueue(registerCmd{observerID: observerID, connection: conn, errorChannel: errCh})

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-b.done:
		return ErrStopped
	case <-timer.Chan():
		return fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister removes an observer and closes its writer.
func (b *Broadcaster) Unregister(observerID uuid.UUID) {
	b.enqueue(unregisterCmd{observerID: observerID})
}

// Send queues a frame for a single observer.
func (b *Broadcaster) Send(observerID uuid.UUID, data []byte) {
	b.enqueue(directCmd{observerID: observerID, data: data})
}

// SessionChanged caches the upstream status for future streamer joins and publishes it
// to current streamers.
func (b *Broadcaster) SessionChanged(status domain.SessionStatus) {
	b.enqueue(sessionCmd{status: status})
}

// ModeratorJoined classifies the observer as a moderator and sends the queue snapshot.
func (b *Broadcaster) ModeratorJoined(observerID uuid.UUID, queue []domain.Comment) {
	b.enqueue(joinCmd{
		observerID: observerID,
		role:       domain.RoleModerator,
		frames:     [][]byte{moderationSnapshot(queue)},
	})
}

// StreamerJoined classifies the observer as a streamer and sends settings, counts and the
// session status.
func (b *Broadcaster) StreamerJoined(observerID uuid.UUID, settings domain.Settings, pendingModeration int) {
	b.enqueue(joinCmd{
		observerID: observerID,
		role:       domain.RoleStreamer,
		frames: [][]byte{
			settingsFrame(TypeSettingsSnapshot, settings),
			countFrame(TypeModerationCount, pendingModeration),
		},
		withCounts: true,
	})
}

// CommentPending announces a new moderation entry.
func (b *Broadcaster) CommentPending(c domain.Comment, pendingModeration int) {
	b.enqueue(publishCmd{role: domain.RoleModerator, data: moderationDelta(OpAdd, c)})
	b.enqueue(publishCmd{role: domain.RoleStreamer, data: countFrame(TypeModerationCount, pendingModeration)})
}

// CommentResolved announces that a comment left the moderation queue.
func (b *Broadcaster) CommentResolved(c domain.Comment, pendingModeration int) {
	b.enqueue(publishCmd{role: domain.RoleModerator, data: moderationDelta(OpRemove, c)})
	b.enqueue(publishCmd{role: domain.RoleStreamer, data: countFrame(TypeModerationCount, pendingModeration)})
}

// CommentQueued hands a comment to streamers for speech.
func (b *Broadcaster) CommentQueued(c domain.Comment) {
	b.enqueue(publishCmd{role: domain.RoleStreamer, data: speakFrame(c)})
}

// ModerationReset replaces every moderator's view of the queue.
func (b *Broadcaster) ModerationReset(queue []domain.Comment) {
	b.enqueue(publishCmd{role: domain.RoleModerator, data: moderationSnapshot(queue)})
	b.enqueue(publishCmd{role: domain.RoleStreamer, data: countFrame(TypeModerationCount, len(queue))})
}

// SettingsChanged publishes new settings to streamers.
func (b *Broadcaster) SettingsChanged(settings domain.Settings) {
	b.enqueue(publishCmd{role: domain.RoleStreamer, data: settingsFrame(TypeSettingsChanged, settings)})
}

// Counts returns observer counts per class. Returns a zero value if the command times out.
func (b *Broadcaster) Counts() domain.ObserverCounts {
	replyCh := make(chan domain.ObserverCounts, 1)
	b.enqueue(getCountsCmd{replyChannel: replyCh})

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case counts := <-replyCh:
		return counts
	case <-b.done:
		return domain.ObserverCounts{}
	case <-timer.Chan():
		slog.Warn("Counts timed out", "timeout", commandTimeout)
		return domain.ObserverCounts{}
	}
}

// Ping round-trips a command through the actor. Readiness probes use it.
func (b *Broadcaster) Ping(ctx context.Context) error {
	replyCh := make(chan domain.ObserverCounts, 1)
	select {
	case b.cmdCh <- getCountsCmd{replyChannel: replyCh}:
	case <-b.done:
		return ErrStopped
	case <-ctx.Done():
		return fmt.Errorf("broadcaster ping: %w", ctx.Err())
	}

	select {
	case <-replyCh:
		return nil
	case <-b.done:
		return ErrStopped
	case <-ctx.Done():
		return fmt.Errorf("broadcaster ping: %w", ctx.Err())
	}
}

// Session returns the last published session status.
func (b *Broadcaster) Session() domain.SessionStatus {
	replyCh := make(chan domain.SessionStatus, 1)
	b.enqueue(getSessionCmd{replyChannel: replyCh})

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case status := <-replyCh:
		return status
	case <-b.done:
		return domain.SessionStatus{}
	case <-timer.Chan():
		slog.Warn("Session status timed out", "timeout", commandTimeout)
		return domain.SessionStatus{}
	}
}

// Stop shuts down the broadcaster, sending a close frame to every observer.
// Blocks until the broadcaster goroutine has exited or timeout is reached.
func (b *Broadcaster) Stop() {
	b.enqueue(stopCmd{})

	timeout := b.clock.NewTimer(b.stopTimeout)
	defer timeout.Stop()

	select {
	case <-b.done:
		slog.Info("Broadcaster stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Broadcaster stop timeout exceeded", "timeout", b.stopTimeout)
	}
}

// enqueue hands a command to the actor. Commands sent after Stop are dropped.
func (b *Broadcaster) enqueue(cmd broadcasterCmd) {
	select {
	case b.cmdCh <- cmd:
	case <-b.done:
	}
}

func (b *Broadcaster) run() {
	defer close(b.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Broadcaster panic recovered", "panic", r)
			b.closeAll("broadcaster panic")
		}
	}()

	for cmd := range b.cmdCh {
		switch c := cmd.(type) {
		case registerCmd:
			b.handleRegister(c)
		case unregisterCmd:
			b.handleUnregister(c.observerID)
		case joinCmd:
			b.handleJoin(c)
		case publishCmd:
			b.handlePublish(c)
		case directCmd:
			if o, ok := b.observers[c.observerID]; ok {
				b.deliver(c.observerID, o, c.data)
			}
		case sessionCmd:
			b.session = c.status
			b.handlePublish(publishCmd{role: domain.RoleStreamer, data: sessionFrame(c.status)})
		case getCountsCmd:
			c.replyChannel <- b.counts()
		case getSessionCmd:
			c.replyChannel <- b.session
		case stopCmd:
			b.handleStop()
			return
		default:
			slog.Warn("Broadcaster received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (b *Broadcaster) handleRegister(c registerCmd) {
	if _, exists := b.observers[c.observerID]; exists {
		c.errorChannel <- fmt.Errorf("observer %s already registered", c.observerID)
		return
	}

	b.observers[c.observerID] = &observer{writer: newClientWriter(c.connection, b.clock, b.metrics)}
	if b.metrics != nil {
		b.metrics.ObserversByRole.WithLabelValues("unclassified").Inc()
	}

	slog.Debug("Observer registered", "observer_id", c.observerID, "total_observers", len(b.observers))
	c.errorChannel <- nil
}

func (b *Broadcaster) handleUnregister(observerID uuid.UUID) {
	o, exists := b.observers[observerID]
	if !exists {
		return
	}

	o.writer.stop()
	delete(b.observers, observerID)
	if b.metrics != nil {
		b.metrics.ObserversByRole.WithLabelValues(roleLabel(o.role)).Dec()
	}

	if o.role == domain.RoleModerator {
		b.publishModeratorCount()
	}
	slog.Debug("Observer unregistered", "observer_id", observerID, "role", roleLabel(o.role), "remaining_observers", len(b.observers))
}

func (b *Broadcaster) handleJoin(c joinCmd) {
	o, exists := b.observers[c.observerID]
	if !exists {
		// Disconnected between declaration and join.
		return
	}
	if o.role != "" {
		slog.Warn("Observer already classified, join ignored", "observer_id", c.observerID, "role", o.role)
		return
	}

	o.role = c.role
	if b.metrics != nil {
		b.metrics.ObserversByRole.WithLabelValues("unclassified").Dec()
		b.metrics.ObserversByRole.WithLabelValues(string(c.role)).Inc()
	}

	frames := c.frames
	if c.withCounts {
		frames = append(frames,
			countFrame(TypeModeratorCount, b.countRole(domain.RoleModerator)),
			sessionFrame(b.session),
		)
	}
	for _, frame := range frames {
		if !b.deliver(c.observerID, o, frame) {
			return
		}
	}

	if c.role == domain.RoleModerator {
		b.publishModeratorCount()
	}
	slog.Info("Observer joined", "observer_id", c.observerID, "role", c.role)
}

func (b *Broadcaster) handlePublish(c publishCmd) {
	var slow []uuid.UUID
	for id, o := range b.observers {
		if o.role != c.role {
			continue
		}
		select {
		case o.writer.sendChannel <- c.data:
		default:
			slow = append(slow, id)
		}
	}

	for _, id := range slow {
		b.evictSlow(id)
	}
}

// deliver queues one frame for one observer, evicting it when its buffer is full.
func (b *Broadcaster) deliver(id uuid.UUID, o *observer, data []byte) bool {
	select {
	case o.writer.sendChannel <- data:
		return true
	default:
		b.evictSlow(id)
		return false
	}
}

func (b *Broadcaster) evictSlow(id uuid.UUID) {
	slog.Warn("Disconnecting slow observer", "observer_id", id)
	if b.metrics != nil {
		b.metrics.SlowClientsEvicted.Inc()
	}
	b.handleUnregister(id)
}

func (b *Broadcaster) publishModeratorCount() {
	b.handlePublish(publishCmd{
		role: domain.RoleStreamer,
		data: countFrame(TypeModeratorCount, b.countRole(domain.RoleModerator)),
	})
}

func (b *Broadcaster) countRole(role domain.Role) int {
	n := 0
	for _, o := range b.observers {
		if o.role == role {
			n++
		}
	}
	return n
}

func (b *Broadcaster) counts() domain.ObserverCounts {
	var counts domain.ObserverCounts
	for _, o := range b.observers {
		switch o.role {
		case domain.RoleModerator:
			counts.Moderators++
		case domain.RoleStreamer:
			counts.Streamers++
		default:
			counts.Unclassified++
		}
	}
	return counts
}

func (b *Broadcaster) handleStop() {
	total := len(b.observers)
	slog.Info("Broadcaster shutting down", "observers", total)
	b.closeAll("Server shutting down")
	slog.Info("Broadcaster shutdown complete", "disconnected_observers", total)
}

// closeAll closes every observer connection with the given reason.
// Used during panic recovery and graceful shutdown.
func (b *Broadcaster) closeAll(reason string) {
	for id, o := range b.observers {
		o.writer.stopGraceful(reason)
		delete(b.observers, id)
	}
	if b.metrics != nil {
		b.metrics.ObserversByRole.Reset()
	}
}

func roleLabel(role domain.Role) string {
	if role == "" {
		return "unclassified"
	}
	return string(role)
}
