package speech

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ecolab/eco/backend/internal/platform/logger"
	speechsvc "github.com/ecolab/eco/backend/internal/service/speech"
)

const pingInterval = 54 * time.Second

// WebSocketHandler 音频WebSocket处理器：下行播放片段，上行麦克风帧
type WebSocketHandler struct {
	hub      *speechsvc.Hub
	log      *logger.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器，只接受 origins 中的页面来源
func NewWebSocketHandler(hub *speechsvc.Hub, origins []string, log *logger.Logger) *WebSocketHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &WebSocketHandler{
		hub: hub,
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if originAllowed(r, origins) {
					return true
				}
				log.Warn("websocket origin rejected", "origin", r.Header.Get("Origin"))
				return false
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.pingLoop(ctx, conn)
	h.hub.Serve(ctx, conn)
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

// originAllowed accepts requests without an Origin header (non-browser clients), the
// same host, or one of the allowed UI origins.
func originAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	for _, o := range allowed {
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
