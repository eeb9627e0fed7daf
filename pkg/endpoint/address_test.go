package endpoint

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svcmodel/svcmodel-go/pkg/fault"
)

func TestParse(t *testing.T) {
	tests := []struct {
		raw    string
		scheme string
		host   string
	}{
		{"http://localhost/echo", "http", "localhost:80"},
		{"HTTPS://example.com:8443/svc", "https", "example.com:8443"},
		{"net.tcp://127.0.0.1/echo", "net.tcp", "127.0.0.1:808"},
		{"ws://[::1]:9000/duplex", "ws", "[::1]:9000"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			a, err := Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.scheme, a.Scheme())
			assert.Equal(t, tt.host, a.Host())
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, raw := range []string{"", "no-scheme", "http://", "://x"} {
		_, err := Parse(raw)
		assert.True(t, errors.Is(err, fault.ErrAddress), "raw=%q err=%v", raw, err)
	}
}

func TestPipeAddressNeedsNoHost(t *testing.T) {
	a, err := Parse("net.pipe:///tmp/echo.sock")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/echo.sock", a.Path())
}

func TestEqual(t *testing.T) {
	a := MustParse("http://localhost:8080/echo")
	b := MustParse("http://localhost:8080/echo")
	c := a.WithIdentity(Identity{Kind: IdentityDNS, Value: "localhost"})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.True(t, c.Equal(b.WithIdentity(Identity{Kind: IdentityDNS, Value: "localhost"})))
	assert.False(t, a.Equal(nil))
}

func TestURIIsCopy(t *testing.T) {
	a := MustParse("http://localhost/echo")
	u := a.URI()
	u.Path = "/changed"
	assert.Equal(t, "/echo", a.Path())
}

func TestJoinAndFormat(t *testing.T) {
	base := MustParse(Format("https", "localhost", 44300, "/base"))
	a, err := Join(base, "https-basic")
	require.NoError(t, err)
	assert.Equal(t, "https://localhost:44300/base/https-basic", a.String())
}

func TestParseIdentityKind(t *testing.T) {
	k, err := ParseIdentityKind("DNS")
	require.NoError(t, err)
	assert.Equal(t, IdentityDNS, k)

	_, err = ParseIdentityKind("spn")
	assert.True(t, errors.Is(err, fault.ErrConfiguration))
}
