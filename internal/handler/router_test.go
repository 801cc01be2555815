package handler

import (
	"bufio"
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecolab/eco/backend/internal/model/chat"
	"github.com/ecolab/eco/backend/internal/model/persona"
	speechmodel "github.com/ecolab/eco/backend/internal/model/speech"
	"github.com/ecolab/eco/backend/internal/service/ai"
	chatService "github.com/ecolab/eco/backend/internal/service/chat"
	speechService "github.com/ecolab/eco/backend/internal/service/speech"
)

const cannedReply = "Analysis ready."

func newTestRouter(t *testing.T) (http.Handler, *chatService.Conversation) {
	t.Helper()
	catalog := speechService.NewCatalog()
	catalog.Replace([]speechmodel.Voice{{ID: "ar_male_1", Lang: "ar-SA", Name: "Maged Arabic", Default: true}})

	voice := speechService.NewSubsystem(speechService.Options{Catalog: catalog}, nil)
	conv := chatService.NewConversation(ai.Offline(cannedReply, nil), voice, chatService.Options{Greeting: persona.Greeting}, nil)

	return NewRouter(Deps{
		Topics:       persona.NewMemoryStore(persona.Seed()),
		Conversation: conv,
		Catalog:      catalog,
		UIOrigin:     "http://localhost:5173",
	}), conv
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTopicsListAndSelect(t *testing.T) {
	router, conv := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/topics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var topics []persona.Branch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &topics))
	require.Len(t, topics, len(persona.Seed()))

	rec = doJSON(t, router, http.MethodPost, "/api/topics/"+topics[0].ID+"/select", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, topics[0].PromptPrefix, conv.Draft())

	rec = doJSON(t, router, http.MethodPost, "/api/topics/nope/select", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConversationSubmitFlow(t *testing.T) {
	router, conv := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/conversation/submit", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPut, "/api/conversation/draft", `{"text":"Compare C3S and C2S"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/conversation/submit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var turn chat.Turn
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &turn))
	assert.Equal(t, chat.SpeakerModel, turn.Speaker)
	assert.Equal(t, cannedReply, turn.Text)

	rec = doJSON(t, router, http.MethodGet, "/api/conversation/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap struct {
		Turns []chat.Turn       `json:"turns"`
		State chatService.State `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Len(t, snap.Turns, 3)
	assert.Equal(t, len(conv.Turns()), len(snap.Turns))
	assert.Empty(t, snap.State.Draft)
}

func TestConversationRejectsBadBodies(t *testing.T) {
	router, _ := newTestRouter(t)

	assert.Equal(t, http.StatusBadRequest, doJSON(t, router, http.MethodPut, "/api/conversation/draft", `{"txt":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(t, router, http.MethodPut, "/api/conversation/settings", `{}`).Code)

	rec := doJSON(t, router, http.MethodPut, "/api/conversation/settings", `{"autoSpeak":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"autoSpeak":false`)
}

func uploadFile(t *testing.T, h http.Handler, name, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreatePart(map[string][]string{
		"Content-Disposition": {`form-data; name="file"; filename="` + name + `"`},
		"Content-Type":        {contentType},
	})
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/conversation/attachment", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAttachmentUploadAndRemove(t *testing.T) {
	router, conv := newTestRouter(t)

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")
	rec := uploadFile(t, router, "sem.png", "image/png", png)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, conv.PendingAttachment())
	assert.Equal(t, "image/png", conv.PendingAttachment().MIMEType)

	rec = doJSON(t, router, http.MethodDelete, "/api/conversation/attachment", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, conv.PendingAttachment())

	rec = uploadFile(t, router, "notes.txt", "text/plain", []byte("plain text notes"))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Nil(t, conv.PendingAttachment())
}

func TestSpeechRoutes(t *testing.T) {
	router, conv := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/speech/listen", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.False(t, conv.State().Listening)

	rec = doJSON(t, router, http.MethodPost, "/api/speech/speak", `{"turnId":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/speech/speak", `{"turnId":"`+conv.Turns()[0].ID+`"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/speech/speak", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/speech/stop", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/speech/voices", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Maged Arabic")

	rec = doJSON(t, router, http.MethodGet, "/api/speech/ws", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestEventsStreamStartsWithSnapshot(t *testing.T) {
	router, _ := newTestRouter(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: snapshot\n", line)

	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, persona.Greeting)
}
