package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/ecolab/eco/backend/internal/config"
	"github.com/ecolab/eco/backend/internal/model/chat"
	"github.com/ecolab/eco/backend/internal/platform/logger"
	"github.com/ecolab/eco/backend/internal/service/chart"
)

// In-band replies. The gateway never returns an error to its caller; these texts
// become the Model turn instead.
const (
	MissingCredentialText = "Error: API Key is missing. Please set GEMINI_API_KEY."
	FailureText           = "Critical system failure. Unable to access neural link for material analysis."
	IncompleteText        = "Analysis incomplete. Please refine parameters."
)

// Temperature is the fixed sampling temperature for every request.
const Temperature float32 = 0.7

// Reply is the model's answer after chart extraction.
type Reply struct {
	Text  string
	Chart *chat.ChartDescriptor
}

// Request is the input of the gateway chain.
type Request struct {
	History    []chat.Turn
	Text       string
	Attachment *chat.Attachment
}

// Options tune request rendering.
type Options struct {
	// Directive is the system instruction.
	Directive string
	// HistoryLimit keeps only the last N turns of history; 0 sends everything.
	HistoryLimit int
}

// Gateway sends one conversation turn to the remote model.
type Gateway struct {
	chain   compose.Runnable[Request, *schema.Message]
	offline string
	opts    Options
	parser  *chart.Parser
	log     *logger.Logger
}

// NewGateway builds a gateway from configuration. A missing credential is not an error:
// the returned gateway answers every request with MissingCredentialText.
func NewGateway(ctx context.Context, cfg config.AIConfig, opts Options, log *logger.Logger) (*Gateway, error) {
	if log == nil {
		log = logger.Nop()
	}
	opts.HistoryLimit = cfg.HistoryLimit
	if !cfg.Enabled() {
		log.Warn("gemini credential not configured, replies will report missing key")
		return Offline(MissingCredentialText, log), nil
	}

	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewGatewayWithModel(ctx, chatModel, opts, log)
}

// NewGatewayWithModel wires the chain around an existing chat model.
func NewGatewayWithModel(ctx context.Context, chatModel model.BaseChatModel, opts Options, log *logger.Logger) (*Gateway, error) {
	if log == nil {
		log = logger.Nop()
	}
	g := &Gateway{
		opts:   opts,
		parser: chart.NewParser(log),
		log:    log.Named("gateway"),
	}

	chain := compose.NewChain[Request, *schema.Message]()
	chain.AppendLambda(compose.InvokableLambda(g.buildMessages))
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}
	g.chain = runnable
	return g, nil
}

// Offline returns a gateway that answers every request with text and never touches the network.
func Offline(text string, log *logger.Logger) *Gateway {
	if log == nil {
		log = logger.Nop()
	}
	return &Gateway{offline: text, log: log.Named("gateway")}
}

// Send renders history and the new request into one model call and returns the cleaned
// reply. Transport errors, panics and empty output are reported in-band.
func (g *Gateway) Send(ctx context.Context, history []chat.Turn, text string, attachment *chat.Attachment) (reply Reply) {
	if g.chain == nil {
		return Reply{Text: g.offline}
	}

	defer func() {
		if r := recover(); r != nil {
			g.log.Error("model call panicked", "panic", r)
			reply = Reply{Text: FailureText}
		}
	}()

	started := time.Now()
	msg, err := g.chain.Invoke(ctx, Request{History: history, Text: text, Attachment: attachment},
		compose.WithChatModelOption(model.WithTemperature(Temperature)))
	if err != nil {
		g.log.Error("model call failed", "error", err, "elapsed", time.Since(started))
		return Reply{Text: FailureText}
	}

	raw := ""
	if msg != nil {
		raw = msg.Content
	}
	if strings.TrimSpace(raw) == "" {
		g.log.Warn("model returned empty output")
		raw = IncompleteText
	}

	res := g.parser.Extract(raw)
	g.log.Debug("model reply received", "length", len(raw), "chart", res.Chart != nil, "elapsed", time.Since(started))
	return Reply{Text: res.CleanText, Chart: res.Chart}
}

// buildMessages renders the system directive and one multi-part user message.
func (g *Gateway) buildMessages(_ context.Context, req Request) ([]*schema.Message, error) {
	parts := []schema.MessageInputPart{{
		Type: schema.ChatMessagePartTypeText,
		Text: Transcript(limitHistory(req.History, g.opts.HistoryLimit), req.Text),
	}}

	if req.Attachment != nil {
		part, err := attachmentPart(req.Attachment)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}

	return []*schema.Message{
		schema.SystemMessage(g.opts.Directive),
		{Role: schema.User, UserInputMultiContent: parts},
	}, nil
}

// Transcript flattens history and the new request into the single text part sent upstream.
func Transcript(history []chat.Turn, text string) string {
	var b strings.Builder
	b.WriteString("History of conversation:\n")
	for _, turn := range history {
		if turn.Speaker == chat.SpeakerUser {
			b.WriteString("User: ")
		} else {
			b.WriteString("Eco: ")
		}
		b.WriteString(turn.Text)
		b.WriteString("\n")
	}
	b.WriteString("\nUser's new request: ")
	b.WriteString(text)
	return b.String()
}

func limitHistory(history []chat.Turn, limit int) []chat.Turn {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}

func attachmentPart(att *chat.Attachment) (schema.MessageInputPart, error) {
	mimeType, data, err := att.Payload()
	if err != nil {
		return schema.MessageInputPart{}, fmt.Errorf("attachment %q: %w", att.DisplayName, err)
	}

	common := schema.MessagePartCommon{
		Base64Data: &data,
		MIMEType:   mimeType,
	}
	if strings.HasPrefix(mimeType, "image/") {
		return schema.MessageInputPart{
			Type:  schema.ChatMessagePartTypeImageURL,
			Image: &schema.MessageInputImage{MessagePartCommon: common},
		}, nil
	}
	return schema.MessageInputPart{
		Type: schema.ChatMessagePartTypeFileURL,
		File: &schema.MessageInputFile{MessagePartCommon: common},
	}, nil
}
