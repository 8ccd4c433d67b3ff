package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaticRegistry(t *testing.T) {
	reg := NewStaticRegistry("search", "calculator")

	assert.True(t, reg.Has("search"))
	assert.True(t, reg.Has("calculator"))
	assert.False(t, reg.Has("browser"))

	reg.Register("browser")
	assert.True(t, reg.Has("browser"))

	assert.Equal(t, []string{"browser", "calculator", "search"}, reg.Names())
}

func TestEmptyRegistry(t *testing.T) {
	reg := NewStaticRegistry()
	assert.False(t, reg.Has("anything"))
	assert.Empty(t, reg.Names())
}

func TestFromEnv(t *testing.T) {
	t.Run("unset yields empty registry", func(t *testing.T) {
		t.Setenv(ToolsEnv, "")
		reg := FromEnv()
		assert.Empty(t, reg.Names())
	})

	t.Run("parses comma-separated names", func(t *testing.T) {
		t.Setenv(ToolsEnv, "search, calculator ,,browser")
		reg := FromEnv()
		assert.Equal(t, []string{"browser", "calculator", "search"}, reg.Names())
		assert.False(t, reg.Has("anything-else"))
	})
}
