package httpclient

import (
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateURLSchemes(t *testing.T) {
	c := New(5 * time.Second)

	u, err := url.Parse("https://example.com/data")
	require.NoError(t, err)
	assert.NoError(t, c.ValidateURL(u))

	u, err = url.Parse("file:///etc/passwd")
	require.NoError(t, err)
	assert.Error(t, c.ValidateURL(u))

	u, err = url.Parse("ftp://example.com/data")
	require.NoError(t, err)
	assert.Error(t, c.ValidateURL(u))
}

func TestValidateURLUserinfo(t *testing.T) {
	c := New(5 * time.Second)

	u, err := url.Parse("http://evil.com@localhost/")
	require.NoError(t, err)
	assert.Error(t, c.ValidateURL(u))
}

func TestValidateURLPrivateIP(t *testing.T) {
	c := New(5 * time.Second)

	for _, raw := range []string{
		"http://127.0.0.1/",
		"http://10.0.0.1/internal",
		"http://192.168.1.1/admin",
		"http://169.254.169.254/latest/meta-data",
	} {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Error(t, c.ValidateURL(u), "expected %s to be blocked", raw)
	}
}

func TestAllowPrivateIPOption(t *testing.T) {
	c := NewWithOptions(5*time.Second, Options{AllowPrivateIP: true})

	u, err := url.Parse("http://127.0.0.1:8080/webhook")
	require.NoError(t, err)
	assert.NoError(t, c.ValidateURL(u))
}

func TestIsPrivateIP(t *testing.T) {
	assert.True(t, isPrivateIP(net.ParseIP("127.0.0.1")))
	assert.True(t, isPrivateIP(net.ParseIP("10.1.2.3")))
	assert.True(t, isPrivateIP(net.ParseIP("fe80::1")))
	assert.False(t, isPrivateIP(net.ParseIP("93.184.216.34")))
}
