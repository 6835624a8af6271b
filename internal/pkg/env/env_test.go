package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvPrecedence(t *testing.T) {
	old := Env
	t.Cleanup(func() { Env = old })

	t.Setenv("CP_TEST_KEY", "from-os")
	Env = map[string]string{}
	assert.Equal(t, "from-os", GetEnv("CP_TEST_KEY", "def"))

	Env = map[string]string{"CP_TEST_KEY": "from-file"}
	assert.Equal(t, "from-file", GetEnv("CP_TEST_KEY", "def"))

	assert.Equal(t, "def", GetEnv("CP_TEST_MISSING", "def"))
}

func TestEnvironOverlay(t *testing.T) {
	old := Env
	t.Cleanup(func() { Env = old })

	t.Setenv("CP_TEST_A", "os")
	t.Setenv("CP_TEST_B", "os")
	Env = map[string]string{"CP_TEST_B": "file"}

	merged := Environ()
	assert.Equal(t, "os", merged["CP_TEST_A"])
	assert.Equal(t, "file", merged["CP_TEST_B"])
}
