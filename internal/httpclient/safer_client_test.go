package httpclient

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/linkpulse/errors"
)

func TestNewSaferClient(t *testing.T) {
	client := NewSaferClient(30 * time.Second)

	require.NotNil(t, client)
	assert.Equal(t, 30*time.Second, client.Timeout)
	assert.Equal(t, 10, client.maxRedirects)
	assert.True(t, client.blockPrivateIP)
	assert.Equal(t, "linkpulse", client.userAgent)
}

func TestValidateURL(t *testing.T) {
	client := NewSaferClient(30 * time.Second)

	tests := []struct {
		name        string
		url         string
		errContains string
	}{
		{name: "https", url: "https://example.com/path"},
		{name: "http", url: "http://example.com"},
		{name: "public IP", url: "http://8.8.8.8/"},
		{name: "file scheme", url: "file:///etc/passwd", errContains: "scheme"},
		{name: "localhost", url: "http://localhost:8080/", errContains: "localhost"},
		{name: "loopback", url: "http://127.0.0.1/", errContains: "private IP"},
		{name: "10.x", url: "http://10.0.0.1/", errContains: "private IP"},
		{name: "metadata", url: "http://169.254.169.254/metadata", errContains: "private IP"},
		{name: "credential injection", url: "http://evil.com@localhost/", errContains: "@"},
		{name: "empty hostname", url: "http:///path", errContains: "hostname"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.ValidateURL(tt.url)
			if tt.errContains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip        string
		isPrivate bool
	}{
		{"10.255.255.255", true},
		{"172.31.255.255", true},
		{"192.168.0.1", true},
		{"127.0.0.1", true},
		{"0.0.0.0", true},
		{"224.0.0.1", true},
		{"240.0.0.1", true},
		{"8.8.8.8", false},
		{"93.184.216.34", false},
		{"::1", true},
		{"fe80::1", true},
		{"fd12:3456::1", true},
		{"2001:db8::1", true},
		{"2001:4860:4860::8888", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			ip := net.ParseIP(tt.ip)
			require.NotNil(t, ip)
			assert.Equal(t, tt.isPrivate, isPrivateIP(ip))
		})
	}
}

func TestIsLocalhost(t *testing.T) {
	assert.True(t, isLocalhost("LOCALHOST"))
	assert.True(t, isLocalhost("localhost.localdomain"))
	assert.True(t, isLocalhost("agent.localhost"))
	assert.False(t, isLocalhost("local.host"))
	assert.False(t, isLocalhost("example.com"))
}

func TestOptions(t *testing.T) {
	maxRedirects := 5
	allow := false
	client := NewSaferClientWithOptions(time.Second, SaferClientOptions{
		AllowedSchemes: []string{"https"},
		MaxRedirects:   &maxRedirects,
		BlockPrivateIP: &allow,
		UserAgent:      "linkpulse/test",
	})

	assert.Equal(t, 5, client.maxRedirects)
	assert.False(t, client.blockPrivateIP)
	assert.Nil(t, client.Transport, "no guarded dialer when private addresses are allowed")

	_, err := client.ValidateURL("http://example.com")
	assert.Error(t, err, "http blocked by https-only config")
	_, err = client.ValidateURL("https://127.0.0.1:9000/")
	assert.NoError(t, err)
}

func TestDo_BlocksLocalhost(t *testing.T) {
	client := NewSaferClient(time.Second)
	req, err := http.NewRequest(http.MethodGet, "http://localhost/", nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SSRF protection")
}

func TestMaxRedirects(t *testing.T) {
	allow := false
	client := NewSaferClientWithOptions(5*time.Second, SaferClientOptions{BlockPrivateIP: &allow})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/again", http.StatusFound)
	}))
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	_, err = client.Do(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stopped after 10 redirects")
}

func TestPostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "linkpulse", r.Header.Get("User-Agent"))
		assert.Equal(t, "secret", r.Header.Get("X-Agent-Token"))

		var in map[string]int
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]int{"doubled": in["n"] * 2})
	}))
	defer server.Close()

	client := WrapClient(server.Client())
	var out struct {
		Doubled int `json:"doubled"`
	}
	headers := http.Header{"X-Agent-Token": []string{"secret"}}
	require.NoError(t, client.PostJSON(context.Background(), server.URL, headers, map[string]int{"n": 21}, &out))
	assert.Equal(t, 42, out.Doubled)
}

func TestPostJSON_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent restarting", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := WrapClient(server.Client())
	err := client.PostJSON(context.Background(), server.URL, nil, struct{}{}, nil)

	var status *StatusError
	require.True(t, errors.As(err, &status))
	assert.Equal(t, http.StatusServiceUnavailable, status.StatusCode)
	assert.Equal(t, "agent restarting", status.Body)
}
