package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ourstudio-se/go-contentauth"
	"github.com/ourstudio-se/go-contentauth/internal/config"
)

const testToken = "test-token-0123456789"

var (
	fixtureOnce sync.Once
	fixtureAuth *contentauth.Authenticator
	fixtureReg  *prometheus.Registry
	fixtureErr  error
	otherKey    contentauth.KeyPair
)

func testServer(t *testing.T, cfg config.ServerConfig) (*httptest.Server, *contentauth.Authenticator) {
	t.Helper()

	fixtureOnce.Do(func() {
		dir, err := os.MkdirTemp("", "contentauth-server-test")
		if err != nil {
			fixtureErr = err
			return
		}

		fixtureReg = prometheus.NewRegistry()
		fixtureAuth, fixtureErr = contentauth.New(
			contentauth.RSA2048_PKCS1v15_SHA256,
			contentauth.WithFile(filepath.Join(dir, "keys")),
			contentauth.WithMetrics(contentauth.NewMetrics(fixtureReg)),
		)
		if fixtureErr != nil {
			return
		}

		otherKey, fixtureErr = contentauth.GenerateKeyPair()
	})
	require.NoError(t, fixtureErr)

	if cfg.APIToken == "" {
		cfg.APIToken = testToken
	}

	srv := httptest.NewServer(New(fixtureAuth, cfg, zerolog.Nop(), fixtureReg).Handler())
	t.Cleanup(srv.Close)

	return srv, fixtureAuth
}

func call(t *testing.T, srv *httptest.Server, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set(tokenHeader, token)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}

	return resp, decoded
}

func TestHealthNeedsNoToken(t *testing.T) {
	srv, _ := testServer(t, config.ServerConfig{})

	resp, body := call(t, srv, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestTokenRequired(t *testing.T) {
	srv, _ := testServer(t, config.ServerConfig{})

	table := []struct {
		name  string
		token string
	}{
		{name: "Missing", token: ""},
		{name: "Wrong", token: "wrong-token"},
		{name: "Prefix", token: testToken[:5]},
	}

	for _, tt := range table {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := call(t, srv, http.MethodGet, "/v1/keys/current", tt.token, nil)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
			assert.Equal(t, "FORBIDDEN", body["error"].(map[string]any)["code"])
		})
	}
}

func TestCurrentKey(t *testing.T) {
	srv, auth := testServer(t, config.ServerConfig{})
	current, err := auth.Current()
	require.NoError(t, err)

	resp, body := call(t, srv, http.MethodGet, "/v1/keys/current", testToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, current.ID, body["key_id"])
	assert.Equal(t, current.PublicKey, body["public_key"])
	assert.Equal(t, current.Fingerprint(), body["fingerprint"])
}

func TestSignThenVerify(t *testing.T) {
	srv, auth := testServer(t, config.ServerConfig{})
	current, err := auth.Current()
	require.NoError(t, err)

	resp, body := call(t, srv, http.MethodPost, "/v1/sign", testToken, signRequest{Message: "hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sig := body["signature"].(string)
	assert.Equal(t, current.ID, body["key_id"])

	assert.True(t, contentauth.VerifySignature(current.PublicKey, "hello", sig))

	table := []struct {
		name     string
		req      verifyRequest
		expected bool
	}{
		{name: "Own key ring", req: verifyRequest{Message: "hello", Signature: sig}, expected: true},
		{name: "Explicit public key", req: verifyRequest{Message: "hello", Signature: sig, PublicKey: current.PublicKey}, expected: true},
		{name: "Tampered message", req: verifyRequest{Message: "hello!", Signature: sig}, expected: false},
		{name: "Other public key", req: verifyRequest{Message: "hello", Signature: sig, PublicKey: otherKey.PublicKey}, expected: false},
		{name: "Malformed signature", req: verifyRequest{Message: "hello", Signature: "not base64 ###"}, expected: false},
		{name: "Malformed public key", req: verifyRequest{Message: "hello", Signature: sig, PublicKey: "garbage"}, expected: false},
	}

	for _, tt := range table {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := call(t, srv, http.MethodPost, "/v1/verify", testToken, tt.req)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, tt.expected, body["valid"])
		})
	}
}

func TestBindThenVerifyBound(t *testing.T) {
	srv, auth := testServer(t, config.ServerConfig{})
	current, err := auth.Current()
	require.NoError(t, err)

	resp, body := call(t, srv, http.MethodPost, "/v1/bind", testToken, bindRequest{Content: "post"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sig := body["signature"].(string)
	fp := body["fingerprint"].(string)
	assert.Equal(t, current.Fingerprint(), fp)

	externalSig, err := contentauth.BindContent(otherKey.PrivateKey, otherKey.Fingerprint(), "post")
	require.NoError(t, err)

	table := []struct {
		name     string
		req      verifyBoundRequest
		expected bool
	}{
		{name: "Valid", req: verifyBoundRequest{Signature: sig, Fingerprint: fp, Content: "post"}, expected: true},
		{name: "Changed content", req: verifyBoundRequest{Signature: sig, Fingerprint: fp, Content: "post2"}, expected: false},
		{name: "Unknown fingerprint", req: verifyBoundRequest{Signature: sig, Fingerprint: otherKey.Fingerprint(), Content: "post"}, expected: false},
		{
			name:     "Third party key",
			req:      verifyBoundRequest{Signature: externalSig, Fingerprint: otherKey.Fingerprint(), Content: "post", PublicKey: otherKey.PublicKey},
			expected: true,
		},
		{
			name:     "Third party without key",
			req:      verifyBoundRequest{Signature: externalSig, Fingerprint: otherKey.Fingerprint(), Content: "post"},
			expected: false,
		},
	}

	for _, tt := range table {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := call(t, srv, http.MethodPost, "/v1/verify-bound", testToken, tt.req)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, tt.expected, body["valid"])
		})
	}
}

func TestBadRequests(t *testing.T) {
	srv, _ := testServer(t, config.ServerConfig{})

	table := []struct {
		name string
		path string
		body string
		code string
	}{
		{name: "Invalid JSON", path: "/v1/sign", body: "{", code: "INVALID_JSON"},
		{name: "Unknown field", path: "/v1/sign", body: `{"msg":"x"}`, code: "INVALID_JSON"},
		{name: "Missing signature", path: "/v1/verify", body: `{"message":"x"}`, code: "VALIDATION_ERROR"},
		{name: "Missing fingerprint", path: "/v1/verify-bound", body: `{"signature":"eA==","content":"x"}`, code: "VALIDATION_ERROR"},
	}

	for _, tt := range table {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := call(t, srv, http.MethodPost, tt.path, testToken, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.code, body["error"].(map[string]any)["code"])
		})
	}
}

func TestRateLimit(t *testing.T) {
	srv, _ := testServer(t, config.ServerConfig{RateLimit: 2, RateWindow: time.Minute})

	for i := 0; i < 2; i++ {
		resp, _ := call(t, srv, http.MethodGet, "/v1/keys/current", testToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body := call(t, srv, http.MethodGet, "/v1/keys/current", testToken, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "RATE_LIMITED", body["error"].(map[string]any)["code"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := testServer(t, config.ServerConfig{})

	call(t, srv, http.MethodPost, "/v1/verify", testToken, verifyRequest{Message: "m", Signature: "AAAA"})

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, buf.String(), "contentauth_verifications_total")
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := testServer(t, config.ServerConfig{CORSAllowedOrigins: []string{"https://blog.example.com"}})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/v1/verify", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://blog.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", tokenHeader)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "https://blog.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}
