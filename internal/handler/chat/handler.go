package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ecolab/eco/backend/internal/model/chat"
	"github.com/ecolab/eco/backend/internal/platform/logger"
	chatService "github.com/ecolab/eco/backend/internal/service/chat"
	"github.com/ecolab/eco/backend/pkg/utils"
)

// Handler 会话的HTTP处理器
type Handler struct {
	conv               *chatService.Conversation
	attachmentMaxBytes int64
	log                *logger.Logger
}

// New 创建会话处理器
func New(conv *chatService.Conversation, attachmentMaxBytes int64, log *logger.Logger) *Handler {
	if attachmentMaxBytes <= 0 {
		attachmentMaxBytes = chat.DefaultAttachmentMaxBytes
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		conv:               conv,
		attachmentMaxBytes: attachmentMaxBytes,
		log:                log.Named("conversation-handler"),
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/conversation", func(r chi.Router) {
		r.Get("/", h.handleSnapshot)
		r.Put("/draft", h.handleSetDraft)
		r.Post("/submit", h.handleSubmit)
		r.Post("/attachment", h.handleSelectAttachment)
		r.Delete("/attachment", h.handleRemoveAttachment)
		r.Put("/settings", h.handleSettings)
	})
}

type snapshot struct {
	Turns []chat.Turn       `json:"turns"`
	State chatService.State `json:"state"`
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, snapshot{
		Turns: h.conv.Turns(),
		State: h.conv.State(),
	})
}

func (h *Handler) handleSetDraft(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.conv.SetDraft(payload.Text)
	utils.RespondJSON(w, http.StatusOK, h.conv.State())
}

// handleSubmit 发送当前输入，阻塞直到模型回复追加到日志
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	turn, err := h.conv.Submit(r.Context())
	switch {
	case errors.Is(err, chatService.ErrBusy):
		utils.RespondError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, chatService.ErrEmptyTurn):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.log.Error("submit failed", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "submit failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, turn)
}

// handleSelectAttachment 读取 multipart 的 file 字段作为待发送附件
func (h *Handler) handleSelectAttachment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.attachmentMaxBytes+(1<<20))
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondError(w, http.StatusRequestEntityTooLarge, chat.ErrAttachmentTooLarge.Error())
			return
		}
		utils.RespondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	att, err := chat.ReadAttachment(header.Filename, header.Header.Get("Content-Type"), file, h.attachmentMaxBytes)
	switch {
	case errors.Is(err, chat.ErrAttachmentTooLarge):
		utils.RespondError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	case errors.Is(err, chat.ErrUnsupportedAttachment):
		utils.RespondError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	case err != nil:
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.log.Debug("attachment selected", "name", att.DisplayName, "mime", att.MIMEType)
	h.conv.SelectAttachment(att)
	utils.RespondJSON(w, http.StatusOK, h.conv.State())
}

func (h *Handler) handleRemoveAttachment(w http.ResponseWriter, r *http.Request) {
	h.conv.RemoveAttachment()
	utils.RespondJSON(w, http.StatusOK, h.conv.State())
}

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AutoSpeak *bool `json:"autoSpeak"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.AutoSpeak == nil {
		utils.RespondError(w, http.StatusBadRequest, "autoSpeak is required")
		return
	}

	h.conv.SetAutoSpeak(*payload.AutoSpeak)
	utils.RespondJSON(w, http.StatusOK, h.conv.State())
}
