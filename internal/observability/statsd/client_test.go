package statsd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricName(t *testing.T) {
	tests := map[string]string{
		" auth/role_resolution ": "auth_role_resolution",
		"auth..guard":            "auth.guard",
		".leading.trailing.":     "leading.trailing",
		"two  spaces":            "two__spaces",
		"   ":                    "",
	}
	for input, want := range tests {
		assert.Equal(t, want, metricName(input), "metricName(%q)", input)
	}
}

func TestFormat(t *testing.T) {
	c := &Client{prefix: "dhanmatrix", tags: cleanTags(map[string]string{" env ": " prod ", "service": "web"})}

	got := c.format("auth.role_resolution", "1", "c", map[string]string{"outcome": " server_admin ", "env": "stage", "": "dropped"})
	assert.Equal(t, "dhanmatrix.auth.role_resolution:1|c|#env:stage,outcome:server_admin,service:web", got)

	assert.Equal(t, "dhanmatrix.x:2|g|#env:prod,service:web", c.format("x", "2", "g", nil))
	assert.Empty(t, c.format(" ", "1", "c", nil))
	assert.Equal(t, map[string]string{"env": "prod", "service": "web"}, c.tags, "per-call tags never leak into globals")

	bare := &Client{tags: cleanTags(nil)}
	assert.Equal(t, "x:1|c", bare.format("x", "1", "c", nil))
}

func TestClient_SendsOverUDP(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	c, err := NewClient(Config{Enabled: true, Address: pc.LocalAddr().String(), Prefix: ".dhanmatrix."})
	require.NoError(t, err)
	defer c.Close()
	require.True(t, c.Enabled())

	read := func() string {
		t.Helper()
		buf := make([]byte, 512)
		require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
		n, _, err := pc.ReadFrom(buf)
		require.NoError(t, err)
		return string(buf[:n])
	}

	c.Count("auth.role_resolution", 3, map[string]string{"outcome": "timeout"})
	assert.Equal(t, "dhanmatrix.auth.role_resolution:3|c|#outcome:timeout", read())

	c.Timing("auth.role_resolution.duration", 1500*time.Microsecond, nil)
	assert.Equal(t, "dhanmatrix.auth.role_resolution.duration:1.5|ms", read())

	c.Gauge("auth.contexts", 12, nil)
	assert.Equal(t, "dhanmatrix.auth.contexts:12|g", read())
}

func TestClient_Close(t *testing.T) {
	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()
	c := &Client{conn: clientConn, tags: cleanTags(nil)}

	require.True(t, c.Enabled())
	require.NoError(t, c.Close())
	assert.False(t, c.Enabled())
	require.NoError(t, c.Close(), "second close is a no-op")
	c.Count("after.close", 1, nil)

	var nilClient *Client
	assert.False(t, nilClient.Enabled())
	require.NoError(t, nilClient.Close())
	nilClient.Count("dropped", 1, nil)
}

func TestNewClient_Disabled(t *testing.T) {
	for _, cfg := range []Config{{Enabled: true, Address: "   "}, {Address: "127.0.0.1:8125"}} {
		c, err := NewClient(cfg)
		require.NoError(t, err)
		assert.False(t, c.Enabled())
	}
}

func TestNewClient_DialError(t *testing.T) {
	_, err := NewClient(Config{Enabled: true, Address: "bad address"})
	require.ErrorContains(t, err, "statsd dial")
}
