package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"github.com/ecolab/eco/backend/internal/model/chat"
	speechmodel "github.com/ecolab/eco/backend/internal/model/speech"
)

// DefaultModel 是默认使用的 Gemini 模型。
const DefaultModel = "gemini-3-flash-preview"

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	AI     AIConfig
	Speech SpeechConfig
	Chat   ChatConfig
	Topics TopicsConfig
	Log    LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	chatCfg, err := loadChatConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		AI:     ai,
		Speech: speech,
		Chat:   chatCfg,
		Topics: TopicsConfig{File: strings.TrimSpace(os.Getenv("TOPICS_FILE"))},
		Log:    LogConfig{Mode: getEnvOrDefault("LOG_MODE", "dev")},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr     string
	UIOrigin string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}
	origin := getEnvOrDefault("UI_ORIGIN", "http://localhost:5173")

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, UIOrigin: origin}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: "127.0.0.1:" + port, UIOrigin: origin}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey string
	Model  string
	// HistoryLimit 为 0 时发送完整历史。
	HistoryLimit int
}

// Enabled 表示是否提供了必需的密钥。缺失时不是启动错误。
func (c AIConfig) Enabled() bool {
	return c.APIKey != ""
}

// NewChatModel 使用配置创建一个 Gemini 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("gemini credential missing: set GEMINI_API_KEY or API_KEY")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	modelName := c.Model
	if modelName == "" {
		modelName = DefaultModel
	}

	return gemini.NewChatModel(ctx, &gemini.Config{
		Client: client,
		Model:  modelName,
	})
}

func loadAIConfig() (AIConfig, error) {
	apiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("API_KEY"))
	}

	historyLimit := 0
	if limit, err := parseOptionalIntEnv("AI_HISTORY_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if limit != nil {
		if *limit < 0 {
			return AIConfig{}, fmt.Errorf("invalid AI_HISTORY_LIMIT value %d: must be >= 0", *limit)
		}
		historyLimit = *limit
	}

	return AIConfig{
		APIKey:       apiKey,
		Model:        getEnvOrDefault("GEMINI_MODEL", DefaultModel),
		HistoryLimit: historyLimit,
	}, nil
}

// SpeechConfig 描述语音服务相关配置
type SpeechConfig struct {
	AppID          string
	AccessToken    string
	APIKey         string
	BaseURL        string
	ConcurrentMode bool
	ASRLanguage    string
	TTSVoice       string
	TTSSpeed       float32
	TTSVolume      float32
	Voices         []speechmodel.Voice
	Timeout        time.Duration
	Enabled        bool
}

// Model 转换为语音服务使用的配置结构。
func (c SpeechConfig) Model() *speechmodel.SpeechConfig {
	return &speechmodel.SpeechConfig{
		AppID:          c.AppID,
		AccessToken:    c.AccessToken,
		APIKey:         c.APIKey,
		BaseURL:        c.BaseURL,
		ConcurrentMode: c.ConcurrentMode,
		ASRLanguage:    c.ASRLanguage,
		TTSVoice:       c.TTSVoice,
		TTSSpeed:       c.TTSSpeed,
		TTSVolume:      c.TTSVolume,
		Voices:         append([]speechmodel.Voice(nil), c.Voices...),
		Timeout:        int(c.Timeout / time.Second),
	}
}

func loadSpeechConfig() (SpeechConfig, error) {
	// 解析超时设置
	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 30 // 默认30秒
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	// 解析TTS速度和音量
	speed, err := parseOptionalFloat32Env("SPEECH_TTS_SPEED")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsSpeed := float32(1.0)
	if speed != nil {
		ttsSpeed = *speed
	}

	volume, err := parseOptionalFloat32Env("SPEECH_TTS_VOLUME")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsVolume := float32(1.0)
	if volume != nil {
		ttsVolume = *volume
	}

	concurrent, err := parseBoolEnv("SPEECH_ASR_CONCURRENT", false)
	if err != nil {
		return SpeechConfig{}, err
	}

	voices, err := parseVoices(os.Getenv("SPEECH_VOICES"))
	if err != nil {
		return SpeechConfig{}, err
	}

	appID := strings.TrimSpace(os.Getenv("SPEECH_APP_ID"))
	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))
	apiKey := strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	if accessToken == "" {
		accessToken = apiKey
	}

	return SpeechConfig{
		AppID:          appID,
		AccessToken:    accessToken,
		APIKey:         apiKey,
		BaseURL:        getEnvOrDefault("SPEECH_BASE_URL", "wss://openspeech.bytedance.com"),
		ConcurrentMode: concurrent,
		ASRLanguage:    getEnvOrDefault("SPEECH_ASR_LANGUAGE", "ar-SA"),
		TTSVoice:       getEnvOrDefault("SPEECH_TTS_VOICE", ""),
		TTSSpeed:       ttsSpeed,
		TTSVolume:      ttsVolume,
		Voices:         voices,
		Timeout:        time.Duration(timeoutSeconds) * time.Second,
		Enabled:        appID != "" && accessToken != "",
	}, nil
}

// parseVoices 解析 "id|lang|name" 逗号分隔列表，第一项为默认声音。
func parseVoices(raw string) ([]speechmodel.Voice, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var voices []speechmodel.Voice
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, "|")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid SPEECH_VOICES entry %q: want id|lang|name", entry)
		}
		id := strings.TrimSpace(parts[0])
		if id == "" {
			return nil, fmt.Errorf("invalid SPEECH_VOICES entry %q: empty id", entry)
		}
		voices = append(voices, speechmodel.Voice{
			ID:      id,
			Lang:    strings.TrimSpace(parts[1]),
			Name:    strings.TrimSpace(parts[2]),
			Default: len(voices) == 0,
		})
	}
	return voices, nil
}

// ChatConfig 描述会话相关配置。
type ChatConfig struct {
	AutoSpeak          bool
	AttachmentMaxBytes int64
}

func loadChatConfig() (ChatConfig, error) {
	autoSpeak, err := parseBoolEnv("AUTO_SPEAK", true)
	if err != nil {
		return ChatConfig{}, err
	}

	maxBytes := chat.DefaultAttachmentMaxBytes
	if override, err := parseOptionalIntEnv("ATTACHMENT_MAX_BYTES"); err != nil {
		return ChatConfig{}, err
	} else if override != nil {
		if *override <= 0 {
			return ChatConfig{}, fmt.Errorf("invalid ATTACHMENT_MAX_BYTES value %d: must be > 0", *override)
		}
		maxBytes = int64(*override)
	}

	return ChatConfig{AutoSpeak: autoSpeak, AttachmentMaxBytes: maxBytes}, nil
}

// TopicsConfig 指向可选的外部主题文件，为空时使用内置主题。
type TopicsConfig struct {
	File string
}

// LogConfig 控制 zap 日志模式。
type LogConfig struct {
	Mode string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
