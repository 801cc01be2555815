package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	speechmodel "github.com/ecolab/eco/backend/internal/model/speech"
	"github.com/ecolab/eco/backend/internal/platform/logger"
)

const asrPath = "/api/v3/sauc/bigmodel_nostream"

var errNoAudio = errors.New("no audio captured")

// VolcengineASRClient 火山引擎ASR WebSocket客户端
type VolcengineASRClient struct {
	config *speechmodel.SpeechConfig
	dialer *websocket.Dialer
	log    *logger.Logger
}

type asrUtterance struct {
	Text      string `json:"text"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
	Definite  bool   `json:"definite"`
}

type asrServerMessage struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Result   struct {
		Text       string         `json:"text"`
		Utterances []asrUtterance `json:"utterances,omitempty"`
	} `json:"result,omitempty"`
	AudioInfo struct {
		Duration int64 `json:"duration"`
	} `json:"audio_info,omitempty"`
}

// volcengineASRRequest 火山引擎ASR请求结构（按文档格式）
type volcengineASRRequest struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user,omitempty"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
		EndWindowSize  int    `json:"end_window_size,omitempty"`
	} `json:"request"`
}

// NewVolcengineASRClient 创建火山引擎ASR客户端
func NewVolcengineASRClient(config *speechmodel.SpeechConfig, log *logger.Logger) *VolcengineASRClient {
	if log == nil {
		log = logger.Nop()
	}
	return &VolcengineASRClient{
		config: config,
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout(config)},
		log:    log.Named("asr"),
	}
}

func (c *VolcengineASRClient) resourceID() string {
	if c.config.ConcurrentMode {
		return "volc.bigasr.sauc.concurrent" // 并发版
	}
	return "volc.bigasr.sauc.duration" // 小时版
}

// Transcribe 将音频帧流式发送到服务端，返回最终识别结果。音频通道关闭即结束发送。
func (c *VolcengineASRClient) Transcribe(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	appID, token, err := resolveCredentials(c.config)
	if err != nil {
		return nil, err
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	header := http.Header{}
	header.Set("X-Api-App-Key", appID)
	header.Set("X-Api-Access-Key", token)
	header.Set("X-Api-Resource-Id", c.resourceID())
	header.Set("X-Api-Connect-Id", req.SessionID)

	conn, resp, err := c.dialer.DialContext(ctx, endpoint(c.config, asrPath), header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ASR WebSocket: %w", err)
	}
	defer conn.Close()

	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			c.log.Debug("asr connected", "logid", logid, "session", req.SessionID)
		}
	}

	payload, err := json.Marshal(c.buildASRRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ASR request: %w", err)
	}
	compressed, err := CompressPayload(payload, GzipCompression)
	if err != nil {
		return nil, fmt.Errorf("failed to compress payload: %w", err)
	}
	frame, err := EncodeMessage(CreateFullClientRequest(compressed, GzipCompression))
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return nil, fmt.Errorf("failed to send ASR request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	// 并发接收识别结果，确保实时消费服务端反馈
	respCh := make(chan *speechmodel.ASRResponse, 1)
	recvErrCh := make(chan error, 1)
	go func() {
		resp, err := c.receiveASRResults(conn, req.SessionID)
		if err != nil {
			recvErrCh <- err
			return
		}
		respCh <- resp
	}()

	sendErrCh := make(chan error, 1)
	go func() {
		sendErrCh <- c.sendAudioData(ctx, conn, req.Audio)
	}()

	for {
		select {
		case err := <-sendErrCh:
			if err != nil {
				return nil, fmt.Errorf("failed to send audio data: %w", err)
			}
			sendErrCh = nil
		case resp := <-respCh:
			return resp, nil
		case err := <-recvErrCh:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// buildASRRequest 构建符合火山引擎API格式的ASR请求
func (c *VolcengineASRClient) buildASRRequest(req *speechmodel.ASRRequest) *volcengineASRRequest {
	asrReq := &volcengineASRRequest{}
	asrReq.User.UID = req.SessionID

	asrReq.Audio.Format = req.Format
	if asrReq.Audio.Format == "" {
		asrReq.Audio.Format = "pcm"
	}
	asrReq.Audio.Language = req.Language
	if asrReq.Audio.Language == "" {
		asrReq.Audio.Language = c.config.ASRLanguage
	}
	if asrReq.Audio.Language == "" {
		asrReq.Audio.Language = LanguageArabic
	}
	asrReq.Audio.Codec = "raw"
	asrReq.Audio.Rate = 16000
	asrReq.Audio.Bits = 16
	asrReq.Audio.Channel = 1

	asrReq.Request.ModelName = "bigmodel"
	asrReq.Request.EnableITN = true
	asrReq.Request.EnablePunc = true
	asrReq.Request.ShowUtterances = true
	asrReq.Request.ResultType = "full"
	asrReq.Request.EndWindowSize = 800 // 强制判停时间800ms
	return asrReq
}

// sendAudioData 逐帧转发音频。总是保留一帧，使通道关闭时能以负序号发送最后一包。
func (c *VolcengineASRClient) sendAudioData(ctx context.Context, conn *websocket.Conn, audio <-chan []byte) error {
	sequence := int32(2) // FullClientRequest占用序号1，音频从2开始
	var pending []byte

	send := func(chunk []byte, last bool) error {
		compressed, err := CompressPayload(chunk, GzipCompression)
		if err != nil {
			return fmt.Errorf("failed to compress audio chunk: %w", err)
		}
		msg, err := EncodeMessage(CreateAudioOnlyRequest(compressed, sequence, last, GzipCompression))
		if err != nil {
			return fmt.Errorf("failed to encode audio message: %w", err)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			return fmt.Errorf("failed to send audio chunk: %w", err)
		}
		sequence++
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-audio:
			if !ok {
				if pending == nil {
					return errNoAudio
				}
				return send(pending, true)
			}
			if len(frame) == 0 {
				continue
			}
			if pending != nil {
				if err := send(pending, false); err != nil {
					return err
				}
			}
			pending = frame
		}
	}
}

// receiveASRResults 接收ASR识别结果，直到最后一包
func (c *VolcengineASRClient) receiveASRResults(conn *websocket.Conn, sessionID string) (*speechmodel.ASRResponse, error) {
	var (
		finalText string
		duration  int64
	)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("failed to read ASR response: %w", err)
		}

		msg, err := DecodeMessage(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode ASR message: %w", err)
		}

		switch msg.Header.MessageType {
		case ErrorMessage:
			payload, err := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
			if err != nil {
				return nil, fmt.Errorf("ASR error message decode failed: %w", err)
			}
			return nil, fmt.Errorf("ASR error %d: %s", msg.ErrorCode, string(payload))

		case FullServerResponse:
			payload, err := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
			if err != nil {
				return nil, fmt.Errorf("failed to decompress ASR payload: %w", err)
			}

			var serverResp asrServerMessage
			if err := json.Unmarshal(payload, &serverResp); err != nil {
				c.log.Debug("asr payload not json", "error", err)
				continue
			}
			if serverResp.Code != 0 && serverResp.Code != 20000000 {
				return nil, fmt.Errorf("ASR API error %d: %s", serverResp.Code, serverResp.Message)
			}

			text := serverResp.Result.Text
			if text == "" && len(serverResp.Result.Utterances) > 0 {
				text = joinUtterances(serverResp.Result.Utterances)
			}
			if text != "" {
				finalText = text
			}
			if serverResp.AudioInfo.Duration > 0 {
				duration = serverResp.AudioInfo.Duration
			}

			if msg.IsLastPacket() || serverResp.Sequence < 0 {
				if finalText == "" {
					c.log.Debug("asr empty transcript", "session", sessionID)
				}
				return &speechmodel.ASRResponse{
					SessionID: sessionID,
					Text:      finalText,
					Duration:  duration,
					RequestID: sessionID,
					CreatedAt: time.Now(),
				}, nil
			}
		}
	}
}

func joinUtterances(utterances []asrUtterance) string {
	var builder strings.Builder
	for _, u := range utterances {
		if builder.Len() > 0 {
			builder.WriteString(" ")
		}
		builder.WriteString(u.Text)
	}
	return builder.String()
}

// VolcengineRecognizer runs one recognition session over microphone frames from an AudioSource.
type VolcengineRecognizer struct {
	client *VolcengineASRClient
	source AudioSource
}

func NewVolcengineRecognizer(client *VolcengineASRClient, source AudioSource) *VolcengineRecognizer {
	return &VolcengineRecognizer{client: client, source: source}
}

func (r *VolcengineRecognizer) Recognize(ctx context.Context, language string) (string, error) {
	frames, err := r.source.Open(ctx)
	if err != nil {
		return "", err
	}

	resp, err := r.client.Transcribe(ctx, &speechmodel.ASRRequest{
		SessionID: uuid.NewString(),
		Audio:     frames,
		Language:  language,
	})
	if err != nil {
		if errors.Is(err, errNoAudio) {
			return "", nil
		}
		return "", err
	}
	return resp.Text, nil
}
