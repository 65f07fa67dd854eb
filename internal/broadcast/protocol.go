package broadcast

import (
	"encoding/json"

	"github.com/Saileeich/Saileeich-TTS/internal/domain"
)

// Outbound message types.
const (
	TypeModerationSnapshot = "moderation_snapshot"
	TypeModerationDelta    = "moderation_delta"
	TypeSettingsSnapshot   = "settings_snapshot"
	TypeSettingsChanged    = "settings_changed"
	TypeModeratorCount     = "moderator_count"
	TypeModerationCount    = "moderation_count"
	TypeSpeak              = "speak"
	TypeSessionStatus      = "session_status"
	TypeError              = "error"
)

// Delta operations carried by moderation_delta.
const (
	OpAdd    = "add"
	OpRemove = "remove"
)

type queueMessage struct {
	Type  string           `json:"type"`
	Queue []domain.Comment `json:"queue"`
}

type deltaMessage struct {
	Type    string         `json:"type"`
	Op      string         `json:"op"`
	Comment domain.Comment `json:"comment"`
}

type settingsMessage struct {
	Type     string          `json:"type"`
	Settings domain.Settings `json:"settings"`
}

type countMessage struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type speakMessage struct {
	Type    string         `json:"type"`
	Comment domain.Comment `json:"comment"`
}

type sessionMessage struct {
	Type string `json:"type"`
	domain.SessionStatus
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// ErrorMessage encodes an error frame for a rejected inbound message.
func ErrorMessage(text string) []byte {
	return mustMarshal(errorMessage{Type: TypeError, Error: text})
}

func moderationSnapshot(queue []domain.Comment) []byte {
	if queue == nil {
		queue = []domain.Comment{}
	}
	return mustMarshal(queueMessage{Type: TypeModerationSnapshot, Queue: queue})
}

func moderationDelta(op string, c domain.Comment) []byte {
	return mustMarshal(deltaMessage{Type: TypeModerationDelta, Op: op, Comment: c})
}

func settingsFrame(msgType string, s domain.Settings) []byte {
	return mustMarshal(settingsMessage{Type: msgType, Settings: s})
}

func countFrame(msgType string, n int) []byte {
	return mustMarshal(countMessage{Type: msgType, Count: n})
}

func speakFrame(c domain.Comment) []byte {
	return mustMarshal(speakMessage{Type: TypeSpeak, Comment: c})
}

func sessionFrame(status domain.SessionStatus) []byte {
	return mustMarshal(sessionMessage{Type: TypeSessionStatus, SessionStatus: status})
}

// mustMarshal panics only on programmer error; every payload is a plain struct of
// strings, bools, ints and times.
func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
