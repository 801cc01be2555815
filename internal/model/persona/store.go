package persona

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

var ErrNoBranches = errors.New("topic catalog has no branches")

// Store exposes topic branch retrieval for HTTP handlers.
type Store interface {
	List() []Branch
	FindByID(id string) (Branch, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Branch
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied branches.
func NewMemoryStore(items []Branch) *MemoryStore {
	return &MemoryStore{items: append([]Branch(nil), items...)}
}

// List returns branches in catalog order.
func (s *MemoryStore) List() []Branch {
	return append([]Branch(nil), s.items...)
}

// FindByID looks up a branch by identifier.
func (s *MemoryStore) FindByID(id string) (Branch, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Branch{}, false
}

type catalogFile struct {
	Branches []Branch `toml:"branch"`
}

// ParseBranches decodes a TOML catalog made of [[branch]] tables.
func ParseBranches(data []byte) ([]Branch, error) {
	var file catalogFile
	meta, err := toml.Decode(string(data), &file)
	if err != nil {
		return nil, fmt.Errorf("decode topic catalog: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown topic catalog keys: %v", undecoded)
	}
	if len(file.Branches) == 0 {
		return nil, ErrNoBranches
	}

	seen := make(map[string]struct{}, len(file.Branches))
	for i, b := range file.Branches {
		if strings.TrimSpace(b.ID) == "" {
			return nil, fmt.Errorf("branch %d: missing id", i)
		}
		if _, dup := seen[b.ID]; dup {
			return nil, fmt.Errorf("branch %q: duplicate id", b.ID)
		}
		if b.PromptPrefix == "" {
			return nil, fmt.Errorf("branch %q: missing prompt_prefix", b.ID)
		}
		seen[b.ID] = struct{}{}
	}
	return file.Branches, nil
}

// LoadBranches 读取外部 TOML 主题文件；path 为空时返回内置主题
func LoadBranches(path string) ([]Branch, error) {
	if strings.TrimSpace(path) == "" {
		return Seed(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topic catalog: %w", err)
	}
	return ParseBranches(data)
}
