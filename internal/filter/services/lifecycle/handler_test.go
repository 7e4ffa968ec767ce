package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/haukened/rr-filter/internal/filter/common/clock"
	"github.com/haukened/rr-filter/internal/filter/domain"
	"github.com/haukened/rr-filter/internal/filter/repos/blocklist"
	"github.com/haukened/rr-filter/internal/filter/services/filter"
)

func TestHandler_JoinsClassifierAndFilter(t *testing.T) {
	idx, errs := blocklist.Build([]blocklist.Source{{Name: "test", Lines: []string{"gambling.com", "  ", "nsfw.net"}}})
	assert.Empty(t, errs)

	h := NewHandler(
		filter.NewClassifier(filter.ClassifierOptions{Index: idx}),
		filter.NewRequestFilter(filter.RequestFilterOptions{Index: idx, Clock: &clock.MockClock{}}),
	)

	assert.True(t, h.OnNewConnection("ads.nsfw.net:443"))
	assert.False(t, h.OnNewConnection("example.org:443"))

	d := h.OnRequest(domain.Request{Method: "GET", URL: "http://www.gambling.com/play"})
	assert.True(t, d.IsBlocked())
	assert.Contains(t, d.Body, "blocked")

	assert.False(t, h.OnRequest(domain.Request{Method: "GET", URL: "http://example.org"}).IsBlocked())
}
