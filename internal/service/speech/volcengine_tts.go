package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	speechmodel "github.com/ecolab/eco/backend/internal/model/speech"
	"github.com/ecolab/eco/backend/internal/platform/logger"
)

const ttsPath = "/api/v3/tts/unidirectional/stream"

var errEmptyAudio = errors.New("TTS audio is empty")

// VolcengineTTSClient 火山引擎TTS WebSocket客户端
type VolcengineTTSClient struct {
	config *speechmodel.SpeechConfig
	dialer *websocket.Dialer
	log    *logger.Logger
}

type ttsServerMessage struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
	Addition struct {
		Duration string `json:"duration,omitempty"`
	} `json:"addition,omitempty"`
}

type volcengineTTSRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string                   `json:"speaker"`
		Text        string                   `json:"text"`
		AudioParams volcengineTTSAudioParams `json:"audio_params"`
		Additions   string                   `json:"additions,omitempty"`
		Language    string                   `json:"language,omitempty"`
	} `json:"req_params"`
}

type volcengineTTSAudioParams struct {
	Format          string  `json:"format"`
	SampleRate      int     `json:"sample_rate"`
	EnableTimestamp bool    `json:"enable_timestamp"`
	SpeedRatio      float32 `json:"speed_ratio,omitempty"`
	VolumeRatio     float32 `json:"volume_ratio,omitempty"`
}

// NewVolcengineTTSClient 创建火山引擎TTS客户端
func NewVolcengineTTSClient(config *speechmodel.SpeechConfig, log *logger.Logger) *VolcengineTTSClient {
	if log == nil {
		log = logger.Nop()
	}
	return &VolcengineTTSClient{
		config: config,
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout(config)},
		log:    log.Named("tts"),
	}
}

func handshakeTimeout(cfg *speechmodel.SpeechConfig) time.Duration {
	if cfg != nil && cfg.Timeout > 0 {
		return time.Duration(cfg.Timeout) * time.Second
	}
	return 30 * time.Second
}

// Synthesize 合成整段文本，按 speaker 与资源 ID 候选依次回退
func (c *VolcengineTTSClient) Synthesize(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("TTS text is empty")
	}

	appKey, accessKey, err := resolveCredentials(c.config)
	if err != nil {
		return nil, err
	}

	encoding := strings.TrimSpace(req.Format)
	if encoding == "" || encoding == "wav" {
		encoding = "mp3"
	}

	speakers := resolveTTSSpeakerCandidates(strings.TrimSpace(req.Voice), strings.TrimSpace(c.config.TTSVoice))
	var lastMismatch error

	for speakerIdx, speaker := range speakers {
		for resourceIdx, resourceID := range resolveTTSResourceCandidates(speaker) {
			resp, attemptErr := c.synthesizeWithResource(ctx, req, appKey, accessKey, speaker, encoding, resourceID)
			if attemptErr == nil {
				if resourceIdx > 0 || speakerIdx > 0 {
					c.log.Info("tts fallback succeeded", "speaker", speaker, "resource", resourceID)
				}
				return resp, nil
			}

			if !isResourceMismatchError(attemptErr) {
				return nil, attemptErr
			}
			c.log.Debug("tts resource mismatch", "speaker", speaker, "resource", resourceID, "error", attemptErr)
			lastMismatch = attemptErr
		}
	}

	if lastMismatch != nil {
		return nil, lastMismatch
	}
	return nil, fmt.Errorf("TTS synthesis failed: no compatible resource id for speakers %v", speakers)
}

func (c *VolcengineTTSClient) synthesizeWithResource(
	ctx context.Context,
	req *speechmodel.TTSRequest,
	appKey, accessKey, speaker, encoding, resourceID string,
) (*speechmodel.TTSResponse, error) {
	connectID := uuid.NewString()

	header := http.Header{}
	header.Set("X-Api-App-Key", appKey)
	header.Set("X-Api-Access-Key", accessKey)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := c.dialer.DialContext(ctx, endpoint(c.config, ttsPath), header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to TTS WebSocket: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			c.log.Debug("tts connected", "logid", logid)
		}
	}

	payload, err := json.Marshal(c.buildTTSRequest(req, speaker, encoding))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}
	frame, err := EncodeMessage(CreateFullClientRequest(payload, NoCompression))
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return nil, fmt.Errorf("failed to send TTS request: %w", err)
	}

	var (
		audio    bytes.Buffer
		reqID    string
		duration int64
	)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to read TTS response: %w", err)
		}

		msg, err := DecodeMessage(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode TTS message: %w", err)
		}

		body, err := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress TTS payload: %w", err)
		}

		switch msg.Header.MessageType {
		case ErrorMessage:
			return nil, fmt.Errorf("TTS error %d: %s", msg.ErrorCode, string(body))

		case AudioOnlyServerResponse:
			audio.Write(body)
			if !msg.IsLastPacket() {
				continue
			}

		case FullServerResponse:
			var serverResp ttsServerMessage
			if len(body) > 0 {
				if err := json.Unmarshal(body, &serverResp); err != nil {
					c.log.Debug("tts payload not json", "error", err)
				} else {
					if serverResp.Code != 0 && serverResp.Code != 3000 {
						return nil, fmt.Errorf("TTS API error %d: %s", serverResp.Code, serverResp.Message)
					}
					if serverResp.ReqID != "" {
						reqID = serverResp.ReqID
					}
					if parsed, err := parseDuration(serverResp.Addition.Duration); err == nil && parsed > 0 {
						duration = parsed
					}
					if serverResp.Data != "" {
						chunk, err := base64.StdEncoding.DecodeString(serverResp.Data)
						if err != nil {
							return nil, fmt.Errorf("failed to decode base64 audio chunk: %w", err)
						}
						audio.Write(chunk)
					}
				}
			}

			finished := msg.hasEvent() && msg.EventType == EventTypeSessionFinished
			if !finished && !msg.IsLastPacket() && serverResp.Sequence >= 0 {
				continue
			}

		default:
			c.log.Debug("tts unexpected message type", "type", msg.Header.MessageType)
			continue
		}

		if audio.Len() == 0 {
			return nil, errEmptyAudio
		}
		if reqID == "" {
			reqID = connectID
		}
		return &speechmodel.TTSResponse{
			AudioData: audio.Bytes(),
			Duration:  duration,
			Format:    encoding,
			RequestID: reqID,
			CreatedAt: time.Now(),
		}, nil
	}
}

// buildTTSRequest 构建符合火山引擎API格式的TTS请求
func (c *VolcengineTTSClient) buildTTSRequest(req *speechmodel.TTSRequest, speaker, encoding string) *volcengineTTSRequest {
	ttsReq := &volcengineTTSRequest{}
	ttsReq.User.UID = uuid.NewString()
	ttsReq.ReqParams.Speaker = speaker
	ttsReq.ReqParams.Text = req.Text
	ttsReq.ReqParams.Language = strings.TrimSpace(req.Language)

	ttsReq.ReqParams.AudioParams.Format = encoding
	ttsReq.ReqParams.AudioParams.SampleRate = 24000
	ttsReq.ReqParams.AudioParams.EnableTimestamp = true

	speed := req.Speed
	if speed <= 0 {
		speed = c.config.TTSSpeed
	}
	if speed > 0 && speed != 1.0 {
		ttsReq.ReqParams.AudioParams.SpeedRatio = speed
	}

	volume := req.Volume
	if volume <= 0 {
		volume = c.config.TTSVolume
	}
	if volume > 0 && volume != 1.0 {
		ttsReq.ReqParams.AudioParams.VolumeRatio = volume
	}

	// markdown is already stripped before synthesis
	ttsReq.ReqParams.Additions = `{"disable_markdown_filter":true}`
	return ttsReq
}

func resolveTTSResourceCandidates(voice string) []string {
	const (
		defaultResource = "volc.service_type.10029"
		megaResource    = "volc.megatts.default"
		seedResource    = "seed-tts-2.0"
	)

	voice = strings.TrimSpace(voice)
	if voice == "" {
		return []string{defaultResource, seedResource}
	}
	if strings.HasPrefix(voice, "S_") {
		return []string{megaResource}
	}

	normalized := strings.ToLower(voice)
	for _, hint := range []string{"bigtts", "seed", "megatts", "uranus", "venus", "jupiter", "saturn", "neptune", "mercury", "pluto", "mars"} {
		if strings.Contains(normalized, hint) {
			return []string{seedResource, defaultResource}
		}
	}
	return []string{defaultResource, seedResource}
}

// resolveTTSSpeakerCandidates orders the requested speaker before the configured
// fallback, dropping blanks and case-insensitive duplicates.
func resolveTTSSpeakerCandidates(requested, fallback string) []string {
	var candidates []string
	for _, s := range []string{requested, fallback} {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		dup := false
		for _, existing := range candidates {
			if strings.EqualFold(existing, s) {
				dup = true
				break
			}
		}
		if !dup {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return []string{""}
	}
	return candidates
}

func isResourceMismatchError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "resource ID is mismatched with speaker related resource")
}

// parseDuration 解析时长字符串（毫秒）
func parseDuration(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

// VolcengineSynthesizer speaks utterances through the volcengine TTS client and a Player.
type VolcengineSynthesizer struct {
	client *VolcengineTTSClient
	player Player
}

func NewVolcengineSynthesizer(client *VolcengineTTSClient, player Player) *VolcengineSynthesizer {
	return &VolcengineSynthesizer{client: client, player: player}
}

func (s *VolcengineSynthesizer) Speak(ctx context.Context, u Utterance) error {
	req := &speechmodel.TTSRequest{Text: u.Text, Language: u.Language}
	if u.Voice != nil {
		req.Voice = u.Voice.ID
	}

	resp, err := s.client.Synthesize(ctx, req)
	if err != nil {
		return err
	}

	return s.player.Play(ctx, AudioClip{
		ID:       resp.RequestID,
		Format:   resp.Format,
		Data:     resp.AudioData,
		Duration: time.Duration(resp.Duration) * time.Millisecond,
		Language: u.Language,
	})
}
