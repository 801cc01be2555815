package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ecolab/eco/backend/internal/platform/logger"
)

var (
	ErrNoAudioClient  = errors.New("no audio client connected")
	ErrMicrophoneBusy = errors.New("microphone already capturing")
)

// AudioClip is synthesized audio handed to the UI for playback.
type AudioClip struct {
	ID       string
	Format   string
	Data     []byte
	Duration time.Duration
	Language string
}

// Player plays a clip and blocks until playback finishes or ctx is cancelled.
type Player interface {
	Play(ctx context.Context, clip AudioClip) error
}

// AudioSource yields microphone frames for one capture. The channel closes when the
// capture ends.
type AudioSource interface {
	Open(ctx context.Context) (<-chan []byte, error)
}

// Control messages exchanged with the UI over the audio socket. Microphone audio
// arrives as binary frames.
type hubMessage struct {
	Type     string `json:"type"`
	ClipID   string `json:"clipId,omitempty"`
	Format   string `json:"format,omitempty"`
	Language string `json:"language,omitempty"`
	Data     string `json:"data,omitempty"`
}

const (
	msgAudio        = "audio"
	msgAudioStop    = "audio_stop"
	msgPlaybackDone = "playback_done"
	msgMicStart     = "mic_start"
	msgMicStop      = "mic_stop"
	msgMicEnd       = "mic_end"
)

// playbackGrace is added to a clip's reported duration before Play gives up waiting
// for the UI acknowledgement.
const playbackGrace = 2 * time.Second

// unknownPlaybackLimit bounds the wait for a clip whose duration the engine did not
// report.
const unknownPlaybackLimit = 2 * time.Minute

const writeTimeout = 10 * time.Second

type hubConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *hubConn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

// Hub manages the UI audio sockets. It is the Player for synthesized speech and the
// AudioSource for recognition.
type Hub struct {
	log *logger.Logger

	mu       sync.RWMutex
	conns    map[string]*hubConn
	pending  map[string]chan error
	capture  chan []byte
	captured bool
	gen      uint64
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		log:     log.Named("audio-hub"),
		conns:   make(map[string]*hubConn),
		pending: make(map[string]chan error),
	}
}

// Serve registers conn and reads from it until it closes or ctx ends.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn) {
	id := uuid.NewString()
	h.addConnection(id, conn)
	defer h.removeConnection(id)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	h.log.Debug("audio client connected", "conn", id)
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				h.log.Debug("audio client read failed", "conn", id, "error", err)
			}
			return
		}

		switch kind {
		case websocket.BinaryMessage:
			h.pushFrame(data)
		case websocket.TextMessage:
			var msg hubMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				h.log.Debug("ignoring malformed control message", "conn", id, "error", err)
				continue
			}
			h.handleControl(msg)
		}
	}
}

func (h *Hub) handleControl(msg hubMessage) {
	switch msg.Type {
	case msgPlaybackDone:
		h.ack(msg.ClipID)
	case msgMicEnd:
		h.endCapture(0)
	}
}

func (h *Hub) addConnection(id string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[id] = &hubConn{conn: conn}
}

func (h *Hub) removeConnection(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.conns[id]; ok {
		c.conn.Close()
		delete(h.conns, id)
	}
	if len(h.conns) == 0 {
		h.failPendingLocked(ErrNoAudioClient)
		h.endCaptureLocked(0)
	}
}

// CloseAll 关闭所有连接
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.conns {
		c.conn.Close()
		delete(h.conns, id)
	}
	h.failPendingLocked(ErrNoAudioClient)
	h.endCaptureLocked(0)
}

// failPendingLocked resolves every clip still waiting for playback with err.
func (h *Hub) failPendingLocked(err error) {
	for id, done := range h.pending {
		done <- err
		delete(h.pending, id)
	}
}

// Connected reports how many UI sockets are attached.
func (h *Hub) Connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) broadcast(msg hubMessage) int {
	h.mu.RLock()
	conns := make([]*hubConn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range conns {
		if err := c.writeJSON(msg); err != nil {
			h.log.Debug("audio client write failed", "error", err)
			continue
		}
		sent++
	}
	return sent
}

// Play sends clip to every UI socket and waits for the first playback_done, the clip
// duration plus a grace period, or ctx cancellation. Cancellation tells the UI to stop.
// If the last UI socket goes away first, Play returns ErrNoAudioClient.
func (h *Hub) Play(ctx context.Context, clip AudioClip) error {
	if clip.ID == "" {
		clip.ID = uuid.NewString()
	}

	done := make(chan error, 1)
	h.mu.Lock()
	h.pending[clip.ID] = done
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.pending, clip.ID)
		h.mu.Unlock()
	}()

	sent := h.broadcast(hubMessage{
		Type:     msgAudio,
		ClipID:   clip.ID,
		Format:   clip.Format,
		Language: clip.Language,
		Data:     base64.StdEncoding.EncodeToString(clip.Data),
	})
	if sent == 0 {
		return ErrNoAudioClient
	}

	limit := unknownPlaybackLimit
	if clip.Duration > 0 {
		limit = clip.Duration + playbackGrace
	}
	timer := time.NewTimer(limit)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		h.log.Debug("playback not acknowledged in time", "clip", clip.ID, "limit", limit)
		return nil
	case <-ctx.Done():
		h.broadcast(hubMessage{Type: msgAudioStop, ClipID: clip.ID})
		return ctx.Err()
	}
}

func (h *Hub) ack(clipID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if done, ok := h.pending[clipID]; ok {
		done <- nil
		delete(h.pending, clipID)
	}
}

// Open asks the UI to start capturing and returns the frame stream. The stream closes
// on mic_end from the UI or when ctx ends.
func (h *Hub) Open(ctx context.Context) (<-chan []byte, error) {
	h.mu.Lock()
	if h.captured {
		h.mu.Unlock()
		return nil, ErrMicrophoneBusy
	}
	frames := make(chan []byte, 64)
	h.capture = frames
	h.captured = true
	h.gen++
	gen := h.gen
	h.mu.Unlock()

	if h.broadcast(hubMessage{Type: msgMicStart}) == 0 {
		h.endCapture(gen)
		return nil, ErrNoAudioClient
	}

	go func() {
		<-ctx.Done()
		if h.endCapture(gen) {
			h.broadcast(hubMessage{Type: msgMicStop})
		}
	}()
	return frames, nil
}

func (h *Hub) pushFrame(frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.captured {
		return
	}
	select {
	case h.capture <- append([]byte(nil), frame...):
	default:
		h.log.Warn("dropping microphone frame, recognizer is behind")
	}
}

// endCapture closes capture gen, or whichever is open when gen is 0. It reports
// whether a capture was closed.
func (h *Hub) endCapture(gen uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.endCaptureLocked(gen)
}

func (h *Hub) endCaptureLocked(gen uint64) bool {
	if !h.captured || (gen != 0 && gen != h.gen) {
		return false
	}
	close(h.capture)
	h.capture = nil
	h.captured = false
	return true
}
