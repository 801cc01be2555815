package stream

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	chatModel "github.com/ecolab/eco/backend/internal/model/chat"
	"github.com/ecolab/eco/backend/internal/platform/logger"
	chatService "github.com/ecolab/eco/backend/internal/service/chat"
	"github.com/ecolab/eco/backend/pkg/utils"
)

const defaultHeartbeat = 15 * time.Second

// Handler pushes conversation events to the UI over Server-Sent Events.
type Handler struct {
	conv      *chatService.Conversation
	heartbeat time.Duration
	log       *logger.Logger
}

// New creates a new stream handler
func New(conv *chatService.Conversation, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		conv:      conv,
		heartbeat: defaultHeartbeat,
		log:       log.Named("sse"),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/events", h.handleEvents)
}

// snapshotEvent is the first event of every stream so a late subscriber can render
// without a separate fetch.
type snapshotEvent struct {
	Turns any               `json:"turns"`
	State chatService.State `json:"state"`
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, release := h.conv.Subscribe()
	defer release()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	turns := h.conv.Turns()
	if err := utils.SendSSEEvent(w, flusher, "snapshot", snapshotEvent{
		Turns: turns,
		State: h.conv.State(),
	}); err != nil {
		return
	}
	filter := newSnapshotFilter(turns)

	ctx := r.Context()
	h.log.Debug("event stream opened")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Debug("event stream closed")
			return
		case ev, ok := <-events:
			if !ok {
				h.log.Debug("event stream dropped, subscriber fell behind")
				return
			}
			if filter.skip(ev) {
				continue
			}
			if err := utils.SendSSEEvent(w, flusher, string(ev.Kind), ev); err != nil {
				h.log.Debug("event stream write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		}
	}
}

// snapshotFilter drops turn events queued between Subscribe and the snapshot that
// already carries them.
type snapshotFilter struct {
	seen map[string]struct{}
}

func newSnapshotFilter(turns []chatModel.Turn) *snapshotFilter {
	seen := make(map[string]struct{}, len(turns))
	for _, t := range turns {
		seen[t.ID] = struct{}{}
	}
	return &snapshotFilter{seen: seen}
}

func (f *snapshotFilter) skip(ev chatService.Event) bool {
	if f.seen == nil || ev.Kind != chatService.EventTurn || ev.Turn == nil {
		return false
	}
	if _, ok := f.seen[ev.Turn.ID]; ok {
		return true
	}
	// turns arrive in append order, so nothing after this one is in the snapshot
	f.seen = nil
	return false
}
