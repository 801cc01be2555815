package speech

// SpeechConfig 语音服务配置
type SpeechConfig struct {
	// Volcengine 配置
	AppID          string `json:"appId"`            // 火山引擎 APP ID
	AccessToken    string `json:"accessToken"`      // 火山引擎 Access Token
	APIKey         string `json:"apiKey,omitempty"` // 兼容旧配置的 API Key
	BaseURL        string `json:"baseUrl"`          // websocket 根地址，默认 wss://openspeech.bytedance.com
	ConcurrentMode bool   `json:"concurrentMode"`   // ASR并发模式（false为小时版）

	// ASR 配置：识别语言固定，不随界面语言变化
	ASRLanguage string `json:"asrLanguage"`

	// TTS 配置
	TTSVoice  string  `json:"ttsVoice"` // 未匹配到语言时使用的默认 speaker
	TTSSpeed  float32 `json:"ttsSpeed"`
	TTSVolume float32 `json:"ttsVolume"`

	Voices []Voice `json:"voices"`

	// 通用配置
	Timeout int `json:"timeout"` // seconds
}
