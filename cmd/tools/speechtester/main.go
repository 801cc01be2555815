package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/ecolab/eco/backend/internal/config"
	speechmodel "github.com/ecolab/eco/backend/internal/model/speech"
	"github.com/ecolab/eco/backend/internal/platform/logger"
	"github.com/ecolab/eco/backend/internal/service/speech"
)

// frameSize is 200ms of 16kHz 16-bit mono PCM.
const frameSize = 6400

func main() {
	mode := flag.String("mode", "", "测试模式: asr 或 tts")
	audioPath := flag.String("audio", "", "ASR 输入音频文件路径 (16kHz 16bit 单声道 PCM/WAV)")
	text := flag.String("text", "", "TTS 输入文本")
	outputPath := flag.String("out", "", "TTS 输出音频文件路径 (默认根据格式自动生成)")
	format := flag.String("format", "", "音频格式 (ASR: 输入格式; TTS: 输出格式)")
	language := flag.String("lang", "", "语言代码，默认 ASR 使用配置语言、TTS 按文本检测")
	voice := flag.String("voice", "", "TTS 声音 ID，默认按语言从 SPEECH_VOICES 选择")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")
	flag.Parse()

	log, err := logger.New("dev")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := godotenv.Load(); err != nil {
		log.Warn("无法加载 .env，改用系统环境变量", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("配置加载失败", "error", err)
	}
	if !cfg.Speech.Enabled {
		log.Fatal("语音服务未启用，请先配置 SPEECH_APP_ID 与 SPEECH_ACCESS_TOKEN")
	}

	if *mode != "asr" && *mode != "tts" {
		flag.Usage()
		log.Fatal("请通过 -mode=asr 或 -mode=tts 指定测试模式")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	speechCfg := cfg.Speech.Model()
	switch *mode {
	case "asr":
		runASR(ctx, log, speech.NewVolcengineASRClient(speechCfg, log), cfg, *audioPath, *format, *language)
	case "tts":
		runTTS(ctx, log, speech.NewVolcengineTTSClient(speechCfg, log), cfg, *text, *voice, *format, *language, *outputPath)
	}
}

func runASR(ctx context.Context, log *logger.Logger, client *speech.VolcengineASRClient, cfg *config.Config, audioPath, format, language string) {
	if audioPath == "" {
		log.Fatal("ASR 模式需要通过 -audio 指定音频文件路径")
	}

	file, err := os.Open(audioPath)
	if err != nil {
		log.Fatal("打开音频文件失败", "error", err)
	}
	defer file.Close()

	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(audioPath)), ".")
		if format == "" {
			format = "pcm"
		}
	}
	if language == "" {
		language = cfg.Speech.ASRLanguage
	}

	frames := make(chan []byte, 8)
	go func() {
		defer close(frames)
		for {
			buf := make([]byte, frameSize)
			n, err := io.ReadFull(file, buf)
			if n > 0 {
				select {
				case frames <- buf[:n]:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
			// 模拟实时音频流
			time.Sleep(200 * time.Millisecond)
		}
	}()

	sessionID := uuid.NewString()
	log.Info("开始进行 ASR 测试", "session", sessionID, "format", format, "language", language)

	resp, err := client.Transcribe(ctx, &speechmodel.ASRRequest{
		SessionID: sessionID,
		Audio:     frames,
		Format:    format,
		Language:  language,
	})
	if err != nil {
		log.Fatal("ASR 调用失败", "error", err)
	}

	log.Info("ASR 识别成功", "text", resp.Text, "duration_ms", resp.Duration)
}

func runTTS(ctx context.Context, log *logger.Logger, client *speech.VolcengineTTSClient, cfg *config.Config, text, voice, format, language, outputPath string) {
	clean := speech.CleanForSpeech(text)
	if strings.TrimSpace(clean) == "" {
		log.Fatal("TTS 模式需要通过 -text 提供待合成文本")
	}

	if language == "" {
		language = speech.DetectLanguage(clean)
	}
	if voice == "" {
		catalog := speech.NewCatalog()
		catalog.Replace(cfg.Speech.Voices)
		if picked := catalog.Pick(language); picked != nil {
			voice = picked.ID
		}
	}
	if format == "" {
		format = "mp3"
	}
	if outputPath == "" {
		outputPath = fmt.Sprintf("tts-output-%d.%s", time.Now().Unix(), format)
	}

	log.Info("开始进行 TTS 测试", "voice", voice, "language", language, "format", format)

	resp, err := client.Synthesize(ctx, &speechmodel.TTSRequest{
		Text:     clean,
		Voice:    voice,
		Format:   format,
		Language: language,
	})
	if err != nil {
		log.Fatal("TTS 调用失败", "error", err)
	}

	if err := os.WriteFile(outputPath, resp.AudioData, 0o644); err != nil {
		log.Fatal("写入音频文件失败", "error", err)
	}

	log.Info("TTS 合成成功", "out", outputPath, "duration_ms", resp.Duration, "bytes", len(resp.AudioData))
}
