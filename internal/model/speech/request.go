package speech

// TTSRequest 语音合成请求
type TTSRequest struct {
	Text     string  `json:"text"`
	Voice    string  `json:"voice"`    // speaker id
	Speed    float32 `json:"speed"`    // 语速倍率 0.5-2.0
	Volume   float32 `json:"volume"`   // 音量 0.0-1.0
	Format   string  `json:"format"`   // mp3, pcm
	Language string  `json:"language"` // ar-SA, en-US, etc.
}

// ASRRequest 语音识别请求。Audio 关闭即表示录音结束
type ASRRequest struct {
	SessionID string        `json:"sessionId"`
	Audio     <-chan []byte `json:"-"`
	Format    string        `json:"format"`   // pcm, wav
	Language  string        `json:"language"` // 固定识别语言
}
