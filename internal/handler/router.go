package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ecolab/eco/backend/internal/handler/chat"
	"github.com/ecolab/eco/backend/internal/handler/persona"
	"github.com/ecolab/eco/backend/internal/handler/speech"
	"github.com/ecolab/eco/backend/internal/handler/stream"
	middlewarePkg "github.com/ecolab/eco/backend/internal/middleware"
	personaModel "github.com/ecolab/eco/backend/internal/model/persona"
	"github.com/ecolab/eco/backend/internal/platform/logger"
	chatService "github.com/ecolab/eco/backend/internal/service/chat"
	speechService "github.com/ecolab/eco/backend/internal/service/speech"
	"github.com/ecolab/eco/backend/pkg/utils"
)

// Deps are the services the HTTP surface talks to. Catalog and Hub may be nil.
type Deps struct {
	Topics             personaModel.Store
	Conversation       *chatService.Conversation
	Catalog            *speechService.Catalog
	Hub                *speechService.Hub
	AttachmentMaxBytes int64
	UIOrigin           string
	Log                *logger.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(log.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.UIOrigin))

	topicHandler := persona.New(deps.Topics, deps.Conversation)
	chatHandler := chat.New(deps.Conversation, deps.AttachmentMaxBytes, log)
	streamHandler := stream.New(deps.Conversation, log)
	speechHandler := speech.New(deps.Conversation, deps.Catalog, deps.Hub, middlewarePkg.AllowedOrigins(deps.UIOrigin), log)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		topicHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
		speechHandler.RegisterRoutes(api)
	})

	return r
}
