package speech

// Voice is one synthesis voice offered by the runtime.
type Voice struct {
	ID      string `json:"id"`   // engine speaker identifier
	Lang    string `json:"lang"` // BCP-47 tag, e.g. ar-SA
	Name    string `json:"name"`
	Default bool   `json:"default,omitempty"`
}
