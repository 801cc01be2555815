package speech

import (
	"strings"
	"sync"

	speechmodel "github.com/ecolab/eco/backend/internal/model/speech"
)

// Catalog holds the voices the runtime currently offers. It starts empty and is
// repopulated whenever the engine reports a new list.
type Catalog struct {
	mu       sync.RWMutex
	voices   []speechmodel.Voice
	onChange []func([]speechmodel.Voice)
}

func NewCatalog() *Catalog {
	return &Catalog{}
}

// Replace swaps the voice list and notifies listeners.
func (c *Catalog) Replace(voices []speechmodel.Voice) {
	c.mu.Lock()
	c.voices = append([]speechmodel.Voice(nil), voices...)
	listeners := append([]func([]speechmodel.Voice){}, c.onChange...)
	snapshot := append([]speechmodel.Voice(nil), c.voices...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}

// OnChange registers fn to run after every Replace.
func (c *Catalog) OnChange(fn func([]speechmodel.Voice)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

func (c *Catalog) List() []speechmodel.Voice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]speechmodel.Voice(nil), c.voices...)
}

// Pick chooses a voice for lang. Arabic takes the first voice whose lang contains
// "ar" or whose name mentions Arabic. English prefers a Google en-US voice, then Zira.
// Nil means the engine default.
func (c *Catalog) Pick(lang string) *speechmodel.Voice {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var match func(v speechmodel.Voice) bool
	if lang == LanguageArabic {
		match = func(v speechmodel.Voice) bool {
			return strings.Contains(v.Lang, "ar") || strings.Contains(strings.ToLower(v.Name), "arabic")
		}
	} else {
		match = func(v speechmodel.Voice) bool {
			return (v.Lang == LanguageEnglish && strings.Contains(v.Name, "Google")) || strings.Contains(v.Name, "Zira")
		}
	}

	for i := range c.voices {
		if match(c.voices[i]) {
			v := c.voices[i]
			return &v
		}
	}
	return nil
}
