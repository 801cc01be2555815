package persona

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ecolab/eco/backend/internal/model/persona"
	chatService "github.com/ecolab/eco/backend/internal/service/chat"
	"github.com/ecolab/eco/backend/pkg/utils"
)

// Handler 主题分支的HTTP处理器
type Handler struct {
	topics persona.Store
	conv   *chatService.Conversation
}

// New 创建主题处理器
func New(topics persona.Store, conv *chatService.Conversation) *Handler {
	return &Handler{
		topics: topics,
		conv:   conv,
	}
}

// RegisterRoutes 注册主题相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/topics", h.handleListTopics)
	r.Post("/topics/{topicID}/select", h.handleSelectTopic)
}

// handleListTopics 列出所有主题分支
func (h *Handler) handleListTopics(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.topics.List())
}

// handleSelectTopic 用分支的提示前缀填充输入框
func (h *Handler) handleSelectTopic(w http.ResponseWriter, r *http.Request) {
	branch, ok := h.topics.FindByID(chi.URLParam(r, "topicID"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "topic not found")
		return
	}

	h.conv.ApplyTopic(branch)
	utils.RespondJSON(w, http.StatusOK, h.conv.State())
}
