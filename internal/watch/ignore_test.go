package watch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/dashlink/internal/config"
)

func TestDefaultIgnoreRules(t *testing.T) {
	rules := DefaultIgnoreRules()
	cases := []struct {
		path string
		want bool
	}{
		{"/proj/BP/scripts/main.ts", false},
		{"/proj/BP/scripts/main.ts.crswap", true},
		{"/proj/RP/.DS_Store", true},
		{"/proj/RP/textures.DS_Store", true},
		{"/proj/.bridge/config.json", true},
		{"/proj/BP/.bridge/cache", true},
		{"/proj/BP/foo.bridgework/x.json", true},
		{"/proj/crswap/file.json", false},
		{"C:\\proj\\.bridge\\x.json", true},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, rules.Match(tc.path), tc.path)
		// Same input, same answer.
		assert.Equal(t, rules.Match(tc.path), rules.Match(tc.path), tc.path)
	}
}

func TestNewIgnoreRules_ExtendsDefaults(t *testing.T) {
	rules, err := NewIgnoreRules(t.TempDir(), config.IgnoreConfig{
		Suffixes: []string{".swp"},
		Names:    []string{"Thumbs.db"},
		Markers:  []string{"node_modules"},
	})
	require.NoError(t, err)

	assert.True(t, rules.Match("/p/a.ts.swp"))
	assert.True(t, rules.Match("/p/Thumbs.db"))
	assert.True(t, rules.Match("/p/node_modules/x/index.js"))
	assert.True(t, rules.Match("/p/a.crswap"), "defaults still apply")
	assert.False(t, rules.Match("/p/a.ts"))
}

func TestNewIgnoreRules_Gitignore(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("dist/\n*.log\n"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "packs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "packs", ".gitignore"), []byte("generated.json\n"), 0o600))

	rules, err := NewIgnoreRules(root, config.IgnoreConfig{UseGitignore: true})
	require.NoError(t, err)

	assert.True(t, rules.Match(filepath.Join(root, "dist", "bundle.js")))
	assert.True(t, rules.MatchDir(filepath.Join(root, "dist")))
	assert.True(t, rules.Match(filepath.Join(root, "debug.log")))
	assert.True(t, rules.Match(filepath.Join(root, "packs", "generated.json")))
	assert.False(t, rules.Match(filepath.Join(root, "generated.json")), "nested patterns are scoped to their directory")
	assert.False(t, rules.Match(filepath.Join(root, "src", "main.ts")))
	assert.False(t, rules.Match("/elsewhere/debug.log"), "paths outside the root are not matched by gitignore")
	assert.True(t, rules.Match(filepath.Join(root, "..cache.log")), "dot-dot prefixed names are inside the root")
	assert.False(t, rules.Match(filepath.Join(root, "..", "sibling.log")))
}

func TestRelativeTo(t *testing.T) {
	root := filepath.Join(t.TempDir(), "proj")
	cases := []struct {
		path string
		rel  string
		ok   bool
	}{
		{filepath.Join(root, "BP", "main.ts"), filepath.Join("BP", "main.ts"), true},
		{filepath.Join(root, "..foo"), "..foo", true},
		{filepath.Join(root, "..foo", "bar.json"), filepath.Join("..foo", "bar.json"), true},
		{root, "", false},
		{filepath.Dir(root), "", false},
		{filepath.Join(filepath.Dir(root), "other", "x.json"), "", false},
	}
	for _, tc := range cases {
		rel, ok := relativeTo(root, tc.path)
		assert.Equal(t, tc.ok, ok, tc.path)
		assert.Equal(t, tc.rel, rel, tc.path)
	}
}
