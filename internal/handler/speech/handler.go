package speech

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ecolab/eco/backend/internal/platform/logger"
	chatservice "github.com/ecolab/eco/backend/internal/service/chat"
	speechsvc "github.com/ecolab/eco/backend/internal/service/speech"
	"github.com/ecolab/eco/backend/pkg/utils"
)

// Handler 语音通道的HTTP处理器
type Handler struct {
	conv    *chatservice.Conversation
	catalog *speechsvc.Catalog
	hub     *speechsvc.Hub
	origins []string
	log     *logger.Logger
}

// New 创建语音处理器。hub 为 nil 时音频 WebSocket 不可用；origins 限定可连接 WebSocket 的页面来源。
func New(conv *chatservice.Conversation, catalog *speechsvc.Catalog, hub *speechsvc.Hub, origins []string, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	if catalog == nil {
		catalog = speechsvc.NewCatalog()
	}
	return &Handler{
		conv:    conv,
		catalog: catalog,
		hub:     hub,
		origins: origins,
		log:     log.Named("speech-handler"),
	}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/speech", func(speechRouter chi.Router) {
		speechRouter.Post("/speak", h.handleSpeak)
		speechRouter.Post("/stop", h.handleStop)
		speechRouter.Post("/listen", h.handleListen)
		speechRouter.Get("/voices", h.handleVoices)
		speechRouter.Get("/health", h.handleHealth)

		if h.hub != nil {
			NewWebSocketHandler(h.hub, h.origins, h.log).RegisterWebSocketRoutes(speechRouter)
		} else {
			speechRouter.Get("/ws", func(w http.ResponseWriter, _ *http.Request) {
				utils.RespondError(w, http.StatusNotImplemented, "speech websocket not available")
			})
		}
	})
}

// handleSpeak 朗读指定的模型回复，或直接朗读文本
func (h *Handler) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TurnID string `json:"turnId"`
		Text   string `json:"text"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var err error
	switch {
	case strings.TrimSpace(payload.TurnID) != "":
		err = h.conv.SpeakTurn(payload.TurnID)
	case payload.Text != "":
		err = h.conv.SpeakText(payload.Text)
	default:
		utils.RespondError(w, http.StatusBadRequest, "turnId or text is required")
		return
	}

	switch {
	case errors.Is(err, chatservice.ErrTurnNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chatservice.ErrNotModelTurn):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatservice.ErrNoVoiceOutput):
		utils.RespondError(w, http.StatusNotImplemented, err.Error())
	case err != nil:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	default:
		utils.RespondJSON(w, http.StatusAccepted, h.conv.State())
	}
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	h.conv.StopSpeaking()
	utils.RespondJSON(w, http.StatusOK, h.conv.State())
}

// handleListen 切换语音输入
func (h *Handler) handleListen(w http.ResponseWriter, r *http.Request) {
	if err := h.conv.ToggleListening(); err != nil {
		if errors.Is(err, speechsvc.ErrRecognitionUnsupported) {
			utils.RespondError(w, http.StatusNotImplemented, err.Error())
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.conv.State())
}

func (h *Handler) handleVoices(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.catalog.List())
}

// handleHealth 健康检查
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if h.hub != nil {
		clients = h.hub.Connected()
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"voices":       len(h.catalog.List()),
		"audioClients": clients,
	})
}
