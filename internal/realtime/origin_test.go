package realtime

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:5173/"})

	req := httptest.NewRequest("GET", "/ws", nil)
	assert.True(t, check(req), "missing Origin is allowed")

	req.Header.Set("Origin", "http://localhost:5173")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))
}

func TestOriginChecker_Wildcard(t *testing.T) {
	for _, allowed := range [][]string{nil, {"*"}} {
		check := originChecker(allowed)
		req := httptest.NewRequest("GET", "/ws", nil)
		req.Header.Set("Origin", "https://anything.example")
		assert.True(t, check(req))
	}
}
