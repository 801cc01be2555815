package speech

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/ecolab/eco/backend/internal/platform/logger"
)

var ErrRecognitionUnsupported = errors.New("speech recognition not supported")

// Recognizer runs one single-utterance recognition session in language and returns
// the transcript, which may be empty.
type Recognizer interface {
	Recognize(ctx context.Context, language string) (string, error)
}

// Listener is the input channel. Sessions are exclusive; Toggle starts or stops one.
type Listener struct {
	rec      Recognizer
	language string
	log      *logger.Logger
	notify   func()

	mu        sync.Mutex
	gen       uint64
	cancel    context.CancelFunc
	listening bool
}

func newListener(rec Recognizer, language string, log *logger.Logger, notify func()) *Listener {
	if language == "" {
		language = LanguageArabic
	}
	return &Listener{rec: rec, language: language, log: log.Named("listener"), notify: notify}
}

// Supported reports whether a recognizer is available.
func (l *Listener) Supported() bool {
	return l.rec != nil
}

// Toggle stops the running session, or starts a new one whose non-empty transcript
// is passed to deliver. It returns ErrRecognitionUnsupported without touching any
// state when no recognizer exists.
func (l *Listener) Toggle(deliver func(string)) error {
	if l.rec == nil {
		return ErrRecognitionUnsupported
	}

	l.mu.Lock()
	if l.listening {
		if l.cancel != nil {
			l.cancel()
			l.cancel = nil
		}
		l.gen++
		l.listening = false
		l.mu.Unlock()
		l.notify()
		return nil
	}

	l.gen++
	gen := l.gen
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.listening = true
	l.mu.Unlock()
	l.notify()

	go l.run(ctx, cancel, gen, deliver)
	return nil
}

func (l *Listener) run(ctx context.Context, cancel context.CancelFunc, gen uint64, deliver func(string)) {
	text, err := l.rec.Recognize(ctx, l.language)
	stopped := ctx.Err() != nil
	cancel()

	l.mu.Lock()
	current := l.gen == gen
	if current {
		l.listening = false
		l.cancel = nil
	}
	l.mu.Unlock()

	if current {
		l.notify()
	}

	switch {
	case stopped:
		return
	case err != nil:
		l.log.Warn("recognition failed", "language", l.language, "error", err)
	case strings.TrimSpace(text) == "":
		l.log.Debug("recognition ended without result")
	case deliver != nil:
		deliver(strings.TrimSpace(text))
	}
}

func (l *Listener) Listening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.listening
}
