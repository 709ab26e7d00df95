package lcm

import (
	"go/parser"
	"go/token"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackageDoc(t *testing.T) {
	f, err := parser.ParseFile(token.NewFileSet(), "doc.go", nil, parser.ParseComments)
	require.NoError(t, err)
	require.NotNil(t, f.Doc)
	assert.Equal(t, "lcm", f.Name.Name)

	doc := f.Doc.Text()
	for _, section := range []string{
		"# Architecture",
		"# Placement",
		"# Rendering",
		"# Linking",
		"# Concurrency",
		"# Errors",
		"# Monitoring",
		"# Troubleshooting",
	} {
		assert.Contains(t, doc, section)
	}
	assert.Contains(t, doc, "the task keeps its parameters exactly as\nwritten")
}
