package chat

import (
	"time"

	"github.com/google/uuid"
)

// Speaker identifies who authored a turn.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerModel Speaker = "model"
	// SpeakerSystem is reserved; turn-taking never produces it.
	SpeakerSystem Speaker = "system"
)

// Turn is one entry of the conversation log. Turns are never edited once appended.
type Turn struct {
	ID         string           `json:"id"`
	Speaker    Speaker          `json:"speaker"`
	Text       string           `json:"text"`
	CreatedAt  time.Time        `json:"createdAt"`
	Attachment *Attachment      `json:"attachment,omitempty"`
	Chart      *ChartDescriptor `json:"chart,omitempty"`
}

// NewUserTurn builds a user turn carrying the optional pending attachment.
func NewUserTurn(text string, attachment *Attachment) Turn {
	return Turn{
		ID:         newTurnID(),
		Speaker:    SpeakerUser,
		Text:       text,
		CreatedAt:  time.Now().UTC(),
		Attachment: attachment,
	}
}

// NewModelTurn builds a model turn with an optional chart.
func NewModelTurn(text string, chart *ChartDescriptor) Turn {
	return Turn{
		ID:        newTurnID(),
		Speaker:   SpeakerModel,
		Text:      text,
		CreatedAt: time.Now().UTC(),
		Chart:     chart,
	}
}

// newTurnID returns a time-ordered identifier so lexical order follows creation order.
func newTurnID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
