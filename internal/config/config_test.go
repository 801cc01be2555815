package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecolab/eco/backend/internal/model/chat"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "UI_ORIGIN", "GEMINI_API_KEY", "API_KEY", "GEMINI_MODEL", "AI_HISTORY_LIMIT",
		"SPEECH_APP_ID", "SPEECH_ACCESS_TOKEN", "SPEECH_API_KEY", "SPEECH_BASE_URL",
		"SPEECH_ASR_LANGUAGE", "SPEECH_ASR_CONCURRENT", "SPEECH_TTS_VOICE", "SPEECH_TTS_SPEED",
		"SPEECH_TTS_VOLUME", "SPEECH_VOICES", "SPEECH_TIMEOUT", "AUTO_SPEAK",
		"ATTACHMENT_MAX_BYTES", "TOPICS_FILE", "LOG_MODE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	assert.False(t, cfg.AI.Enabled())
	assert.Equal(t, DefaultModel, cfg.AI.Model)
	assert.Zero(t, cfg.AI.HistoryLimit)
	assert.False(t, cfg.Speech.Enabled)
	assert.Equal(t, "ar-SA", cfg.Speech.ASRLanguage)
	assert.Equal(t, 30*time.Second, cfg.Speech.Timeout)
	assert.True(t, cfg.Chat.AutoSpeak)
	assert.Equal(t, chat.DefaultAttachmentMaxBytes, cfg.Chat.AttachmentMaxBytes)
	assert.Equal(t, "dev", cfg.Log.Mode)
}

func TestLoadFallsBackToAPIKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_KEY", "legacy-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.AI.Enabled())
	assert.Equal(t, "legacy-key", cfg.AI.APIKey)

	t.Setenv("GEMINI_API_KEY", "primary-key")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "primary-key", cfg.AI.APIKey)
}

func TestLoadServerAddr(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "0.0.0.0:9000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)

	t.Setenv("PORT", "90 00")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadSpeechVoices(t *testing.T) {
	clearEnv(t)
	t.Setenv("SPEECH_APP_ID", "app")
	t.Setenv("SPEECH_API_KEY", "token")
	t.Setenv("SPEECH_VOICES", "en_female_amy|en-US|Google US English, ar_male_1|ar-SA|Maged Arabic")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Speech.Enabled)
	assert.Equal(t, "token", cfg.Speech.AccessToken)
	require.Len(t, cfg.Speech.Voices, 2)
	assert.True(t, cfg.Speech.Voices[0].Default)
	assert.Equal(t, "ar-SA", cfg.Speech.Voices[1].Lang)
	assert.Equal(t, "Maged Arabic", cfg.Speech.Voices[1].Name)

	model := cfg.Speech.Model()
	assert.Equal(t, 30, model.Timeout)
	assert.Len(t, model.Voices, 2)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"bad voices":        {"SPEECH_VOICES", "only-an-id"},
		"bad auto speak":    {"AUTO_SPEAK", "sometimes"},
		"negative history":  {"AI_HISTORY_LIMIT", "-1"},
		"zero attachment":   {"ATTACHMENT_MAX_BYTES", "0"},
		"bad speed":         {"SPEECH_TTS_SPEED", "fast"},
		"non-numeric limit": {"AI_HISTORY_LIMIT", "ten"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
