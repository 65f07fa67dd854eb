package correlation

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewID(t *testing.T) {
	ids := make(map[string]struct{}, 100)
	for iter := 0; iter < 100; iter++ {
		id := NewID()
		assert.Len(t, id, 8)
		ids[id] = struct{}{}
	}
	assert.Len(t, ids, 100)
}

func TestFromHeader(t *testing.T) {
	tests := []struct {
		name  string
		value string
		keep  bool
	}{
		{"hex id", "deadbeef", true},
		{"uuid", "0192f3a4-5b6c-7d8e-9f00-112233445566", true},
		{"dotted", "req.42_a", true},
		{"empty", "", false},
		{"spaces", "abc def", false},
		{"newline injection", "abc\nlevel=ERROR", false},
		{"too long", strings.Repeat("a", 65), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromHeader(tt.value)
			if tt.keep {
				assert.Equal(t, tt.value, got)
			} else {
				assert.NotEqual(t, tt.value, got)
				assert.Len(t, got, 8)
			}
		})
	}
}

func TestID(t *testing.T) {
	id, ok := ID(WithID(context.Background(), "abc12345"))
	assert.True(t, ok)
	assert.Equal(t, "abc12345", id)

	_, ok = ID(context.Background())
	assert.False(t, ok)

	_, ok = ID(WithID(context.Background(), ""))
	assert.False(t, ok)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	inner := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewHandler(inner))
}

func TestHandler_AddsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	logger.InfoContext(WithID(context.Background(), "test1234"), "comment admitted", "comment_id", "c1")

	output := buf.String()
	assert.Contains(t, output, "correlation_id=test1234")
	assert.Contains(t, output, "comment_id=c1")
}

func TestHandler_NoCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	newTestLogger(&buf).InfoContext(context.Background(), "startup")

	assert.NotContains(t, buf.String(), "correlation_id")
}

func TestHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf).With("component", "session").WithGroup("upstream")

	logger.InfoContext(WithID(context.Background(), "attr1234"), "bound", "identity", "somechannel")

	output := buf.String()
	assert.Contains(t, output, "correlation_id=attr1234")
	assert.Contains(t, output, "component=session")
	assert.Contains(t, output, "upstream.identity=somechannel")
}
