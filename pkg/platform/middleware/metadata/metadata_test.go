package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIPFromRequest(t *testing.T) {
	newReq := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "10.0.0.5:41234"
		r.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
		return r
	}

	t.Run("ignores forwarding headers when proxy is untrusted", func(t *testing.T) {
		assert.Equal(t, "10.0.0.5", ClientIPFromRequest(newReq(), false))
	})

	t.Run("takes first forwarded address behind trusted proxy", func(t *testing.T) {
		assert.Equal(t, "198.51.100.7", ClientIPFromRequest(newReq(), true))
	})

	t.Run("ipv6 remote addr", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "[2001:db8::1]:443"
		assert.Equal(t, "2001:db8::1", ClientIPFromRequest(r, false))
	})
}
