package speech

import (
	"context"
	"errors"
	"strings"
	"sync"

	speechmodel "github.com/ecolab/eco/backend/internal/model/speech"
	"github.com/ecolab/eco/backend/internal/platform/logger"
)

// Utterance is one cleaned piece of text ready for synthesis.
type Utterance struct {
	Text     string
	Language string
	// Voice is nil when no catalog voice matched; engines use their default.
	Voice *speechmodel.Voice
}

// Synthesizer speaks one utterance. Speak blocks until playback ends, fails, or ctx
// is cancelled.
type Synthesizer interface {
	Speak(ctx context.Context, u Utterance) error
}

// Speaker is the output channel. At most one utterance plays at a time and the
// newest request wins.
type Speaker struct {
	synth   Synthesizer
	catalog *Catalog
	log     *logger.Logger
	notify  func()

	mu       sync.Mutex
	gen      uint64
	cancel   context.CancelFunc
	speaking bool
}

func newSpeaker(synth Synthesizer, catalog *Catalog, log *logger.Logger, notify func()) *Speaker {
	return &Speaker{synth: synth, catalog: catalog, log: log.Named("speaker"), notify: notify}
}

// Speak cancels the current utterance and starts text. Text that is blank after
// cleanup only cancels.
func (s *Speaker) Speak(text string) {
	clean := CleanForSpeech(text)
	blank := strings.TrimSpace(clean) == "" || s.synth == nil

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	gen := s.gen
	wasSpeaking := s.speaking
	if blank {
		s.speaking = false
		s.mu.Unlock()
		if wasSpeaking {
			s.notify()
		}
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.speaking = true
	s.mu.Unlock()

	if !wasSpeaking {
		s.notify()
	}

	lang := DetectLanguage(clean)
	u := Utterance{Text: clean, Language: lang, Voice: s.catalog.Pick(lang)}
	go s.run(ctx, cancel, gen, u)
}

func (s *Speaker) run(ctx context.Context, cancel context.CancelFunc, gen uint64, u Utterance) {
	defer cancel()

	err := s.synth.Speak(ctx, u)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("synthesis failed", "language", u.Language, "error", err)
	}

	s.mu.Lock()
	if s.gen != gen {
		// superseded or stopped; the newer request owns the flag
		s.mu.Unlock()
		return
	}
	s.speaking = false
	s.cancel = nil
	s.mu.Unlock()
	s.notify()
}

// Stop cancels playback and clears the flag immediately.
func (s *Speaker) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	wasSpeaking := s.speaking
	s.speaking = false
	s.mu.Unlock()

	if wasSpeaking {
		s.notify()
	}
}

func (s *Speaker) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}
