package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/ecolab/eco/backend/internal/model/chat"
	"github.com/ecolab/eco/backend/internal/model/persona"
	speechmodel "github.com/ecolab/eco/backend/internal/model/speech"
	"github.com/ecolab/eco/backend/internal/platform/logger"
	"github.com/ecolab/eco/backend/internal/service/ai"
	"github.com/ecolab/eco/backend/internal/service/speech"
)

var (
	ErrBusy          = errors.New("a reply is already pending")
	ErrEmptyTurn     = errors.New("nothing to send: draft is blank and no attachment is pending")
	ErrTurnNotFound  = errors.New("turn not found")
	ErrNotModelTurn  = errors.New("only model turns can be spoken")
	ErrNoVoiceOutput = errors.New("speech subsystem not configured")
)

// Gateway answers one user turn given the prior log.
type Gateway interface {
	Send(ctx context.Context, history []chat.Turn, text string, attachment *chat.Attachment) ai.Reply
}

// Voice is the speech side of the conversation.
type Voice interface {
	Speak(text string)
	StopSpeaking()
	ToggleListening(deliver func(string)) error
	State() speechmodel.State
	OnStateChange(fn func(speechmodel.State))
}

// State is the UI-visible snapshot of the conversation flags and input buffers.
type State struct {
	Loading    bool             `json:"loading"`
	Listening  bool             `json:"listening"`
	Speaking   bool             `json:"speaking"`
	AutoSpeak  bool             `json:"autoSpeak"`
	Draft      string           `json:"draft"`
	Attachment *chat.Attachment `json:"attachment,omitempty"`
}

// Options configure a new conversation.
type Options struct {
	AutoSpeak bool
	// Greeting becomes the first model turn when non-empty.
	Greeting string
}

// Conversation owns the turn log and sequences submit, reply and speech.
type Conversation struct {
	gateway Gateway
	voice   Voice
	feed    *Feed
	log     *logger.Logger

	mu        sync.Mutex
	turns     []chat.Turn
	draft     string
	pending   *chat.Attachment
	loading   bool
	autoSpeak bool
}

// NewConversation 创建会话。voice 可以为 nil，此时语音相关操作返回错误。
func NewConversation(gateway Gateway, voice Voice, opts Options, log *logger.Logger) *Conversation {
	if log == nil {
		log = logger.Nop()
	}
	c := &Conversation{
		gateway:   gateway,
		voice:     voice,
		feed:      NewFeed(),
		log:       log.Named("conversation"),
		autoSpeak: opts.AutoSpeak,
		turns:     make([]chat.Turn, 0, 16),
	}
	if opts.Greeting != "" {
		c.turns = append(c.turns, chat.NewModelTurn(opts.Greeting, nil))
	}
	if voice != nil {
		voice.OnStateChange(func(speechmodel.State) { c.publishState() })
	}
	return c
}

// Submit sends the draft and pending attachment as a user turn, waits for the model
// reply, appends it, and speaks it when auto-speak is on. It returns the model turn.
// The gateway call is never cancelled once issued, even if ctx is.
func (c *Conversation) Submit(ctx context.Context) (chat.Turn, error) {
	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return chat.Turn{}, ErrBusy
	}
	if strings.TrimSpace(c.draft) == "" && c.pending == nil {
		c.mu.Unlock()
		return chat.Turn{}, ErrEmptyTurn
	}

	history := make([]chat.Turn, len(c.turns))
	copy(history, c.turns)

	userTurn := chat.NewUserTurn(c.draft, c.pending)
	c.turns = append(c.turns, userTurn)
	c.draft = ""
	c.pending = nil
	c.loading = true
	c.mu.Unlock()

	c.feed.Publish(Event{Kind: EventTurn, Turn: &userTurn, State: c.State()})

	reply := c.gateway.Send(context.WithoutCancel(ctx), history, userTurn.Text, userTurn.Attachment)
	modelTurn := chat.NewModelTurn(reply.Text, reply.Chart)

	c.mu.Lock()
	c.turns = append(c.turns, modelTurn)
	c.loading = false
	autoSpeak := c.autoSpeak
	c.mu.Unlock()

	c.log.Debug("turn completed", "user", userTurn.ID, "model", modelTurn.ID, "chart", modelTurn.Chart != nil)
	c.feed.Publish(Event{Kind: EventTurn, Turn: &modelTurn, State: c.State()})

	if autoSpeak && c.voice != nil {
		c.voice.Speak(modelTurn.Text)
	}
	return modelTurn, nil
}

// SetDraft replaces the text box content.
func (c *Conversation) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
	c.publishState()
}

// AppendDraft adds recognized speech to the text box, space separated.
func (c *Conversation) AppendDraft(text string) {
	c.mu.Lock()
	if c.draft == "" {
		c.draft = text
	} else {
		c.draft += " " + text
	}
	c.mu.Unlock()
	c.publishState()
}

func (c *Conversation) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// SelectAttachment replaces the pending attachment.
func (c *Conversation) SelectAttachment(att *chat.Attachment) {
	c.mu.Lock()
	c.pending = att
	c.mu.Unlock()
	c.publishState()
}

func (c *Conversation) RemoveAttachment() {
	c.SelectAttachment(nil)
}

func (c *Conversation) PendingAttachment() *chat.Attachment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// ApplyTopic seeds the draft with the branch prompt prefix.
func (c *Conversation) ApplyTopic(branch persona.Branch) {
	c.SetDraft(branch.PromptPrefix)
}

// Turns returns a copy of the log.
func (c *Conversation) Turns() []chat.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]chat.Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

func (c *Conversation) State() State {
	c.mu.Lock()
	state := State{
		Loading:    c.loading,
		AutoSpeak:  c.autoSpeak,
		Draft:      c.draft,
		Attachment: c.pending,
	}
	c.mu.Unlock()

	if c.voice != nil {
		vs := c.voice.State()
		state.Speaking = vs.Speaking
		state.Listening = vs.Listening
	}
	return state
}

func (c *Conversation) SetAutoSpeak(enabled bool) {
	c.mu.Lock()
	c.autoSpeak = enabled
	c.mu.Unlock()
	c.publishState()
}

// SpeakTurn replays a model turn through the output channel.
func (c *Conversation) SpeakTurn(id string) error {
	if c.voice == nil {
		return ErrNoVoiceOutput
	}

	c.mu.Lock()
	var (
		text  string
		found bool
		model bool
	)
	for _, t := range c.turns {
		if t.ID == id {
			found, model, text = true, t.Speaker == chat.SpeakerModel, t.Text
			break
		}
	}
	c.mu.Unlock()

	switch {
	case !found:
		return ErrTurnNotFound
	case !model:
		return ErrNotModelTurn
	}
	c.voice.Speak(text)
	return nil
}

// SpeakText speaks arbitrary text without touching the log.
func (c *Conversation) SpeakText(text string) error {
	if c.voice == nil {
		return ErrNoVoiceOutput
	}
	c.voice.Speak(text)
	return nil
}

func (c *Conversation) StopSpeaking() {
	if c.voice != nil {
		c.voice.StopSpeaking()
	}
}

// ToggleListening starts or stops voice input. Transcripts are appended to the draft.
func (c *Conversation) ToggleListening() error {
	if c.voice == nil {
		return speech.ErrRecognitionUnsupported
	}
	return c.voice.ToggleListening(c.AppendDraft)
}

// Subscribe returns the event stream and a function that releases it.
func (c *Conversation) Subscribe() (<-chan Event, func()) {
	return c.feed.Subscribe()
}

func (c *Conversation) publishState() {
	c.feed.Publish(Event{Kind: EventState, State: c.State()})
}
