package account

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProxyValidatesInput(t *testing.T) {
	_, err := NewProxy(ProxyHTTP, "", 8080, "", "")
	assert.Error(t, err)
	_, err = NewProxy(ProxyHTTP, "host", 0, "", "")
	assert.Error(t, err)
	_, err = NewProxy("bogus", "host", 8080, "", "")
	assert.Error(t, err)

	p, err := NewProxy(ProxySOCKS5, "proxy.internal", 1080, "u", "p")
	require.NoError(t, err)
	assert.Equal(t, ProxyUnknown, p.Status)
	assert.Equal(t, "socks5://u:p@proxy.internal:1080", p.URL())
	assert.False(t, p.IsAlive())
}

func TestProxyURLWithoutAuth(t *testing.T) {
	p, err := NewProxy(ProxyHTTP, "proxy.internal", 8080, "", "")
	require.NoError(t, err)
	assert.Equal(t, "http://proxy.internal:8080", p.URL())
}

func TestProxyDefaultsToHTTPType(t *testing.T) {
	p, err := NewProxy("", "host", 80, "", "")
	require.NoError(t, err)
	assert.Equal(t, ProxyHTTP, p.Type)
}
