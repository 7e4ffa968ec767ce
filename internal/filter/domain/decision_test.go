package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterDecision_Constructors(t *testing.T) {
	a := Allow()
	assert.False(t, a.IsBlocked())
	assert.Equal(t, "allow", a.Action.String())
	assert.Empty(t, a.Body)

	b := Block("matched gambling.com", "<html>blocked</html>")
	assert.True(t, b.IsBlocked())
	assert.Equal(t, "block", b.Action.String())
	assert.Equal(t, "matched gambling.com", b.Reason)
	assert.Equal(t, "<html>blocked</html>", b.Body)
}
