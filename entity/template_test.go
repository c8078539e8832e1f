package entity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPromptRender(t *testing.T) {
	p := NewPrompt("review", "Review {{ lang }} code:\n{{code}}\nFocus on {{lang}}.")

	out := p.Render(map[string]string{"lang": "Go", "code": "func main() {}"})
	require.Equal(t, "Review Go code:\nfunc main() {}\nFocus on Go.", out)
}

func TestPromptRender_UnknownPlaceholderKept(t *testing.T) {
	p := NewPrompt("t", "Hello {{name}}, welcome to {{place}}")

	out := p.Render(map[string]string{"name": "Ada"})
	require.Equal(t, "Hello Ada, welcome to {{place}}", out)
}

func TestPromptVariables(t *testing.T) {
	p := NewPrompt("t", "{{a}} {{ b }} {{a}} {{c-d}}")
	require.Equal(t, []string{"a", "b", "c-d"}, p.Variables())

	require.Empty(t, NewPrompt("t", "no placeholders").Variables())
}
