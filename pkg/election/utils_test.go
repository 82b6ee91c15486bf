package election

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPanicMessage(t *testing.T) {
	assert.Equal(t, "boom", PanicMessage("boom"))
	assert.Equal(t, "boom", PanicMessage(fmt.Errorf("boom")))
	assert.Equal(t, "42", PanicMessage(42))
}

func TestPanicf(t *testing.T) {
	defer func() {
		value := recover()
		require.NotNil(t, value)
		assert.Equal(t, "invalid state \"x\"", PanicMessage(value))
	}()

	Panicf("invalid state %q", "x")
}

func TestPanicStackTrace(t *testing.T) {
	assert.True(t, strings.Contains(PanicStackTrace(), "TestPanicStackTrace"))
}
