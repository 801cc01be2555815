package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	speechmodel "github.com/ecolab/eco/backend/internal/model/speech"
)

// fakeVolcengine upgrades every request and hands the socket to handle.
func fakeVolcengine(t *testing.T, handle func(r *http.Request, conn *websocket.Conn)) *speechmodel.SpeechConfig {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(r, conn)
	}))
	t.Cleanup(srv.Close)

	return &speechmodel.SpeechConfig{
		AppID:       "app",
		AccessToken: "token",
		BaseURL:     "ws" + strings.TrimPrefix(srv.URL, "http"),
		Timeout:     5,
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) *Message {
	t.Helper()
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := DecodeMessage(bytes.NewReader(data))
	require.NoError(t, err)
	return msg
}

func writeFrame(t *testing.T, conn *websocket.Conn, msg *Message) {
	t.Helper()
	msg.PayloadSize = uint32(len(msg.Payload))
	frame, err := EncodeMessage(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))
}

type recordingPlayer struct {
	mu    sync.Mutex
	clips []AudioClip
}

func (p *recordingPlayer) Play(_ context.Context, clip AudioClip) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clips = append(p.clips, clip)
	return nil
}

func TestVolcengineSynthesizerPlaysAudio(t *testing.T) {
	var gotReq volcengineTTSRequest
	cfg := fakeVolcengine(t, func(r *http.Request, conn *websocket.Conn) {
		assert.Equal(t, "app", r.Header.Get("X-Api-App-Key"))
		msg := readFrame(t, conn)
		assert.Equal(t, FullClientRequest, msg.Header.MessageType)
		assert.NoError(t, json.Unmarshal(msg.Payload, &gotReq))

		writeFrame(t, conn, &Message{
			Header:   NewHeader(AudioOnlyServerResponse, PositiveSequenceNumber, NoSerialization, NoCompression),
			Sequence: 1,
			Payload:  []byte("abc"),
		})
		writeFrame(t, conn, &Message{
			Header:   NewHeader(AudioOnlyServerResponse, NegativeSequenceNumber, NoSerialization, NoCompression),
			Sequence: -2,
			Payload:  []byte("def"),
		})
	})

	player := &recordingPlayer{}
	synth := NewVolcengineSynthesizer(NewVolcengineTTSClient(cfg, nil), player)

	err := synth.Speak(context.Background(), Utterance{
		Text:     "Silica melts near 1710 C",
		Language: LanguageEnglish,
		Voice:    &speechmodel.Voice{ID: "en_female_amy", Lang: LanguageEnglish},
	})
	require.NoError(t, err)

	assert.Equal(t, "en_female_amy", gotReq.ReqParams.Speaker)
	assert.Equal(t, "Silica melts near 1710 C", gotReq.ReqParams.Text)
	assert.Equal(t, LanguageEnglish, gotReq.ReqParams.Language)

	require.Len(t, player.clips, 1)
	assert.Equal(t, []byte("abcdef"), player.clips[0].Data)
	assert.Equal(t, "mp3", player.clips[0].Format)
	assert.NotEmpty(t, player.clips[0].ID)
}

func TestVolcengineTTSFallsBackOnResourceMismatch(t *testing.T) {
	var (
		mu        sync.Mutex
		resources []string
	)
	cfg := fakeVolcengine(t, func(r *http.Request, conn *websocket.Conn) {
		resource := r.Header.Get("X-Api-Resource-Id")
		mu.Lock()
		resources = append(resources, resource)
		mu.Unlock()

		readFrame(t, conn)
		if resource == "seed-tts-2.0" {
			writeFrame(t, conn, &Message{
				Header:    NewHeader(ErrorMessage, NoSequenceNumber, JSONSerialization, NoCompression),
				ErrorCode: 45000000,
				Payload:   []byte(`{"error":"resource ID is mismatched with speaker related resource"}`),
			})
			return
		}
		writeFrame(t, conn, &Message{
			Header:  NewHeader(AudioOnlyServerResponse, LastPacketNoSequence, NoSerialization, NoCompression),
			Payload: []byte("ok"),
		})
	})

	client := NewVolcengineTTSClient(cfg, nil)
	resp, err := client.Synthesize(context.Background(), &speechmodel.TTSRequest{Text: "hello", Voice: "en_female_vv_uranus_bigtts"})
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), resp.AudioData)
	assert.Equal(t, []string{"seed-tts-2.0", "volc.service_type.10029"}, resources)
}

func TestVolcengineTTSRequiresCredentials(t *testing.T) {
	client := NewVolcengineTTSClient(&speechmodel.SpeechConfig{}, nil)
	_, err := client.Synthesize(context.Background(), &speechmodel.TTSRequest{Text: "hello"})
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

type channelSource struct {
	frames chan []byte
}

func (s *channelSource) Open(context.Context) (<-chan []byte, error) {
	return s.frames, nil
}

func TestVolcengineRecognizerStreamsFrames(t *testing.T) {
	var (
		gotReq    volcengineASRRequest
		sequences []int32
		audio     []byte
	)
	cfg := fakeVolcengine(t, func(r *http.Request, conn *websocket.Conn) {
		assert.Equal(t, "volc.bigasr.sauc.duration", r.Header.Get("X-Api-Resource-Id"))

		msg := readFrame(t, conn)
		body, err := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
		require.NoError(t, err)
		assert.NoError(t, json.Unmarshal(body, &gotReq))

		for {
			frame := readFrame(t, conn)
			chunk, err := DecompressPayload(frame.Payload, frame.Header.CompressionMethod)
			require.NoError(t, err)
			sequences = append(sequences, frame.Sequence)
			audio = append(audio, chunk...)
			if frame.IsLastPacket() {
				break
			}
		}

		result, err := CompressPayload([]byte(`{"code":0,"result":{"text":"ما هو الإسمنت"},"audio_info":{"duration":1200}}`), GzipCompression)
		require.NoError(t, err)
		writeFrame(t, conn, &Message{
			Header:   NewHeader(FullServerResponse, NegativeSequenceNumber, JSONSerialization, GzipCompression),
			Sequence: -1,
			Payload:  result,
		})
	})

	source := &channelSource{frames: make(chan []byte, 4)}
	source.frames <- []byte{1, 2}
	source.frames <- []byte{3}
	source.frames <- []byte{4, 5}
	close(source.frames)

	rec := NewVolcengineRecognizer(NewVolcengineASRClient(cfg, nil), source)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	text, err := rec.Recognize(ctx, LanguageArabic)
	require.NoError(t, err)
	assert.Equal(t, "ما هو الإسمنت", text)
	assert.Equal(t, LanguageArabic, gotReq.Audio.Language)
	assert.Equal(t, []int32{2, 3, -4}, sequences)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, audio)
}

func TestVolcengineRecognizerNoAudio(t *testing.T) {
	cfg := fakeVolcengine(t, func(_ *http.Request, conn *websocket.Conn) {
		readFrame(t, conn)
		_, _, _ = conn.ReadMessage()
	})

	source := &channelSource{frames: make(chan []byte)}
	close(source.frames)

	text, err := NewVolcengineRecognizer(NewVolcengineASRClient(cfg, nil), source).Recognize(context.Background(), LanguageArabic)
	require.NoError(t, err)
	assert.Empty(t, text)
}
