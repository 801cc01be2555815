package speech

import (
	"sync"

	speechmodel "github.com/ecolab/eco/backend/internal/model/speech"
	"github.com/ecolab/eco/backend/internal/platform/logger"
)

// Subsystem owns both speech channels, the voice catalog, and the flags they report.
type Subsystem struct {
	catalog  *Catalog
	speaker  *Speaker
	listener *Listener

	mu        sync.RWMutex
	observers []func(speechmodel.State)
}

// Options wires engines into the subsystem. A nil Synthesizer makes Speak a no-op; a
// nil Recognizer makes ToggleListening report ErrRecognitionUnsupported.
type Options struct {
	Synthesizer Synthesizer
	Recognizer  Recognizer
	// RecognitionLanguage is fixed for every input session; defaults to ar-SA.
	RecognitionLanguage string
	Catalog             *Catalog
}

// NewSubsystem 创建语音子系统
func NewSubsystem(opts Options, log *logger.Logger) *Subsystem {
	if log == nil {
		log = logger.Nop()
	}
	log = log.Named("speech")

	catalog := opts.Catalog
	if catalog == nil {
		catalog = NewCatalog()
	}

	s := &Subsystem{catalog: catalog}
	s.speaker = newSpeaker(opts.Synthesizer, catalog, log, s.publish)
	s.listener = newListener(opts.Recognizer, opts.RecognitionLanguage, log, s.publish)
	return s
}

// OnStateChange registers fn to receive every flag transition.
func (s *Subsystem) OnStateChange(fn func(speechmodel.State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Subsystem) publish() {
	state := s.State()
	s.mu.RLock()
	observers := append([]func(speechmodel.State){}, s.observers...)
	s.mu.RUnlock()
	for _, fn := range observers {
		fn(state)
	}
}

func (s *Subsystem) State() speechmodel.State {
	return speechmodel.State{
		Speaking:  s.speaker.Speaking(),
		Listening: s.listener.Listening(),
	}
}

func (s *Subsystem) Speak(text string) {
	s.speaker.Speak(text)
}

func (s *Subsystem) StopSpeaking() {
	s.speaker.Stop()
}

func (s *Subsystem) ToggleListening(deliver func(string)) error {
	return s.listener.Toggle(deliver)
}

func (s *Subsystem) RecognitionSupported() bool {
	return s.listener.Supported()
}

func (s *Subsystem) Catalog() *Catalog {
	return s.catalog
}
