package patterns

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsonCatalogue = `{
  "version": "1",
  "patterns": [
    {"id": "reviews", "name": "Review stars", "category": "social_proof", "status": "production",
     "targets": ["#reviews"], "performance": {"average_lift": 8}},
    {"id": "stock", "category": "scarcity", "status": "production",
     "targets": ["#stock"], "performance": {"average_lift": 6}},
    {"id": "draft", "category": "urgency", "status": "draft", "performance": {}}
  ]
}`

const yamlCatalogue = `
version: "1"
patterns:
  - id: reviews
    name: Review stars
    category: social_proof
    status: production
    targets: ["#reviews"]
    performance:
      average_lift: 8
  - id: stock
    category: scarcity
    status: production
    targets: ["#stock"]
    performance:
      average_lift: 6
  - id: draft
    category: urgency
    status: draft
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadCatalogue_JSONAndYAMLAgree(t *testing.T) {
	fromJSON, err := LoadCatalogue(writeFile(t, "patterns.json", jsonCatalogue))
	require.NoError(t, err)
	fromYAML, err := LoadCatalogue(writeFile(t, "patterns.yaml", yamlCatalogue))
	require.NoError(t, err)

	assert.Equal(t, fromJSON, fromYAML)
	require.Len(t, fromJSON.Patterns, 3)
	assert.Equal(t, 8.0, fromJSON.Patterns[0].Lift())
	assert.Equal(t, "stock", fromJSON.Patterns[1].DisplayName())
	assert.Equal(t, 0.0, fromJSON.Patterns[2].Lift())
}

func TestLoadCatalogue_Missing(t *testing.T) {
	_, err := LoadCatalogue(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, ErrCatalogueMissing)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"no patterns", `{"version": "1"}`},
		{"missing id", `{"patterns": [{"name": "x"}]}`},
		{"lift is text", `{"patterns": [{"id": "x", "performance": {"average_lift": "high"}}]}`},
		{"duplicate id", `{"patterns": [{"id": "x"}, {"id": "x"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJSON([]byte(tt.data))
			assert.ErrorIs(t, err, ErrCatalogueInvalid)
		})
	}
}

func TestCatalogue_Eligible(t *testing.T) {
	cat, err := ParseJSON([]byte(jsonCatalogue))
	require.NoError(t, err)

	assert.Len(t, cat.Eligible(true), 2)
	assert.Len(t, cat.Eligible(false), 3)

	p, ok := cat.Lookup("draft")
	require.True(t, ok)
	assert.False(t, p.IsProduction())
	_, ok = cat.Lookup("ghost")
	assert.False(t, ok)
}

func TestSource_ReloadsOnWrite(t *testing.T) {
	path := writeFile(t, "patterns.json", jsonCatalogue)
	src, err := NewSource(path, nil)
	require.NoError(t, err)
	require.Len(t, src.Catalogue().Patterns, 3)

	changed := make(chan int, 4)
	src.OnChange(func(c *Catalogue) { changed <- len(c.Patterns) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, src.Watch(ctx))

	require.NoError(t, os.WriteFile(path, []byte(`{"patterns": [{"id": "only"}]}`), 0644))

	select {
	case n := <-changed:
		assert.Equal(t, 1, n)
	case <-time.After(5 * time.Second):
		t.Fatal("catalogue was not reloaded")
	}
	assert.Len(t, src.Catalogue().Patterns, 1)
}

func TestSource_BadReloadKeepsPrevious(t *testing.T) {
	path := writeFile(t, "patterns.json", jsonCatalogue)
	src, err := NewSource(path, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"patterns": [`), 0644))
	assert.ErrorIs(t, src.Reload(), ErrCatalogueInvalid)
	assert.Len(t, src.Catalogue().Patterns, 3)
}
