package persona

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedBranches(t *testing.T) {
	branches := Seed()
	require.Len(t, branches, 8)

	ids := make([]string, 0, len(branches))
	for _, b := range branches {
		ids = append(ids, b.ID)
		assert.NotEmpty(t, b.Label)
		assert.True(t, strings.HasSuffix(b.PromptPrefix, ": "), "prefix of %s", b.ID)
	}
	assert.Equal(t, []string{"production", "qc", "files", "curves", "robots", "theory", "translation", "life"}, ids)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(Seed())

	qc, ok := store.FindByID("qc")
	require.True(t, ok)
	assert.Equal(t, "I have industrial product data for Quality Control (QC) analysis: ", qc.PromptPrefix)

	_, ok = store.FindByID("alchemy")
	assert.False(t, ok)

	list := store.List()
	list[0].Label = "changed"
	assert.Equal(t, "Production", store.List()[0].Label)
}

func TestParseBranchesRejectsBadCatalogs(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"missing id":     "[[branch]]\nlabel = \"x\"\nprompt_prefix = \"p: \"\n",
		"missing prefix": "[[branch]]\nid = \"x\"\n",
		"duplicate":      "[[branch]]\nid = \"x\"\nprompt_prefix = \"a\"\n[[branch]]\nid = \"x\"\nprompt_prefix = \"b\"\n",
		"unknown key":    "[[branch]]\nid = \"x\"\nprompt_prefix = \"a\"\ncolour = \"red\"\n",
		"not toml":       "[[branch",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseBranches([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadBranchesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[branch]]\nid = \"corrosion\"\nlabel = \"Corrosion\"\nprompt_prefix = \"Assess corrosion risk for: \"\n"), 0o600))

	branches, err := LoadBranches(path)
	require.NoError(t, err)
	require.Len(t, branches, 1)
	assert.Equal(t, "corrosion", branches[0].ID)

	branches, err = LoadBranches("")
	require.NoError(t, err)
	assert.Len(t, branches, 8)

	_, err = LoadBranches(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
