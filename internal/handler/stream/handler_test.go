package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"

	chatModel "github.com/ecolab/eco/backend/internal/model/chat"
	chatService "github.com/ecolab/eco/backend/internal/service/chat"
)

func turnEvent(t chatModel.Turn) chatService.Event {
	return chatService.Event{Kind: chatService.EventTurn, Turn: &t}
}

func TestSnapshotFilterSkipsTurnsAlreadyInSnapshot(t *testing.T) {
	greeting := chatModel.NewModelTurn("Eco activated.", nil)
	user := chatModel.NewUserTurn("What is rust?", nil)
	model := chatModel.NewModelTurn("Iron oxide.", nil)

	filter := newSnapshotFilter([]chatModel.Turn{greeting, user})

	assert.True(t, filter.skip(turnEvent(user)))
	assert.False(t, filter.skip(chatService.Event{Kind: chatService.EventState}))
	assert.False(t, filter.skip(turnEvent(model)))

	// once a new turn has passed, later events are never filtered
	assert.False(t, filter.skip(turnEvent(user)))
}

func TestSnapshotFilterEmptySnapshot(t *testing.T) {
	filter := newSnapshotFilter(nil)
	assert.False(t, filter.skip(turnEvent(chatModel.NewUserTurn("hi", nil))))
}
