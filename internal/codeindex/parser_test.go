package codeindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goFixture = `package widgets

import (
	"fmt"
	"github.com/acme/widgets/internal/style"
)

type Button struct {
	Label string
}

func (b *Button) Render() string {
	if b.Label == "" {
		return fmt.Sprintf("<button/>")
	}
	return fmt.Sprintf("<button>%s</button>", b.Label)
}

func newButton(label string) *Button {
	return &Button{Label: label}
}
`

func TestGoParser_ExtractsQualifiedNameVisibilityAndComplexity(t *testing.T) {
	p := NewGoParser()
	result, err := p.Parse(context.Background(), "button.go", []byte(goFixture))
	require.NoError(t, err)
	require.NotEmpty(t, result.Elements)

	var render, newButton *struct {
		qualifiedName string
		visibility    string
		complexity    int
	}
	for _, el := range result.Elements {
		el := el
		switch el.Name {
		case "Render":
			render = &struct {
				qualifiedName string
				visibility    string
				complexity    int
			}{el.QualifiedName, string(el.Visibility), el.ComplexityScore}
		case "newButton":
			newButton = &struct {
				qualifiedName string
				visibility    string
				complexity    int
			}{el.QualifiedName, string(el.Visibility), el.ComplexityScore}
		}
	}

	require.NotNil(t, render)
	assert.Equal(t, "widgets.Button.Render", render.qualifiedName)
	assert.Equal(t, "public", render.visibility)
	assert.GreaterOrEqual(t, render.complexity, 2, "the if statement should raise complexity above baseline")

	require.NotNil(t, newButton)
	assert.Equal(t, "widgets.newButton", newButton.qualifiedName)
	assert.Equal(t, "private", newButton.visibility)
}

func TestGoParser_ExtractsImportsClassifiedExternal(t *testing.T) {
	p := NewGoParser()
	result, err := p.Parse(context.Background(), "button.go", []byte(goFixture))
	require.NoError(t, err)

	require.Len(t, result.Imports, 2)
	for _, imp := range result.Imports {
		assert.True(t, imp.IsExternal)
	}
	assert.Equal(t, "fmt", result.Imports[0].Path)
	assert.Equal(t, "github.com/acme/widgets/internal/style", result.Imports[1].Path)
}

func TestGoParser_RecordsCallEdgesFromMethodBody(t *testing.T) {
	p := NewGoParser()
	result, err := p.Parse(context.Background(), "button.go", []byte(goFixture))
	require.NoError(t, err)

	found := false
	for _, edge := range result.CallEdges {
		if edge.CallerName == "widgets.Button.Render" && edge.CalleeName == "fmt.Sprintf" {
			found = true
		}
	}
	assert.True(t, found, "expected a call edge from Render to fmt.Sprintf, got %+v", result.CallEdges)
}

func TestPythonParser_ExtractsDocstring(t *testing.T) {
	p := NewPythonParser()
	src := []byte("def greet(name):\n    \"\"\"Say hello to name.\"\"\"\n    return \"hi \" + name\n")
	result, err := p.Parse(context.Background(), "greet.py", src)
	require.NoError(t, err)
	require.Len(t, result.Elements, 1)
	assert.Contains(t, result.Elements[0].Docstring, "Say hello")
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "go", DetectLanguage("main.go"))
	assert.Equal(t, "python", DetectLanguage("script.py"))
	assert.Equal(t, "", DetectLanguage("README.md"))
}
