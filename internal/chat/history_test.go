package chat

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/classpulse/backend/internal/models"
)

func TestRingKeepsRecentMessagesInOrder(t *testing.T) {
	h := NewHistory(nil, 3, zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		h.Append(ctx, models.ChatMessage{ID: strconv.Itoa(i), Text: "m" + strconv.Itoa(i)})
	}

	recent := h.Recent(ctx)
	require.Len(t, recent, 3)
	// Oldest-first, capped to the newest three.
	assert.Equal(t, "2", recent[0].ID)
	assert.Equal(t, "4", recent[2].ID)
}

func TestRecentOnEmptyBuffer(t *testing.T) {
	h := NewHistory(nil, 50, zaptest.NewLogger(t))
	assert.Empty(t, h.Recent(context.Background()))
}

func TestRecentReturnsCopy(t *testing.T) {
	h := NewHistory(nil, 10, zaptest.NewLogger(t))
	ctx := context.Background()
	h.Append(ctx, models.ChatMessage{ID: "1", Text: "hello"})

	first := h.Recent(ctx)
	first[0].Text = "mutated"

	second := h.Recent(ctx)
	assert.Equal(t, "hello", second[0].Text)
}
