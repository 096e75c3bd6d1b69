package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgrimes/keygate/api"
	"github.com/tgrimes/keygate/password"
	"github.com/tgrimes/keygate/session/kv"
	"github.com/tgrimes/keygate/storage/memory"
	"github.com/tgrimes/keygate/token"
	"github.com/tgrimes/keygate/transport"
)

// cheapParams keeps Argon2id fast in tests.
var cheapParams = password.Params{Time: 1, MemoryKiB: 8 * 1024, Parallelism: 1, KeyLen: 32}

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()

	repo := memory.NewRepository()
	keys, err := token.NewKeyring(
		bytes.Repeat([]byte{0x7e}, 32),
		bytes.Repeat([]byte{0xe7}, 32),
	)
	require.NoError(t, err)

	cfg := token.DefaultConfig()
	cfg.RequireSecure = false
	protocol := token.New(keys, kv.NewStore(repo), cfg)

	a := api.New(protocol, repo,
		api.WithPasswordParams(cheapParams),
		api.WithCookiePolicy(transport.Policy{Path: "/", Secure: false, SameSite: http.SameSiteLaxMode}),
		api.WithTokenTTL(time.Hour),
	)
	r := chi.NewRouter()
	r.Mount("/api/v1", a.Router())

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) *http.Response {
	t.Helper()
	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, &reqBody)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeResult(t *testing.T, resp *http.Response) api.Result {
	t.Helper()
	defer resp.Body.Close()
	var result api.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}

func register(t *testing.T, client *http.Client, baseURL, username, pass string) api.SessionData {
	t.Helper()
	resp := doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/register", map[string]string{
		"username": username,
		"password": pass,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	result := decodeResult(t, resp)
	require.True(t, result.OK)

	var data api.SessionData
	require.NoError(t, json.Unmarshal(result.Data, &data))
	require.NotZero(t, data.UserID)
	return data
}

func TestRegisterIssuesSession(t *testing.T) {
	srv := setupServer(t)
	client := newClient(t)

	data := register(t, client, srv.URL, "alice", "correct horse battery staple")
	assert.Equal(t, "alice", data.Username)
	assert.Greater(t, data.ExpiresAt, data.IssuedAt)

	// Registration logs in: the session endpoint works immediately.
	resp := doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/auth/session", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decodeResult(t, resp)
	assert.True(t, result.OK)
}

func TestRegisterRejections(t *testing.T) {
	srv := setupServer(t)
	client := newClient(t)

	for name, body := range map[string]map[string]string{
		"missing username": {"password": "a strong password"},
		"empty password":   {"username": "bob", "password": ""},
		"oversize password": {
			"username": "bob",
			"password": string(bytes.Repeat([]byte{'x'}, 73)),
		},
	} {
		t.Run(name, func(t *testing.T) {
			resp := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/auth/register", body)
			result := decodeResult(t, resp)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.False(t, result.OK)
			assert.Equal(t, http.StatusBadRequest, result.Status)
		})
	}

	t.Run("duplicate username", func(t *testing.T) {
		register(t, client, srv.URL, "carol", "a strong password")
		resp := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/auth/register", map[string]string{
			"username": "carol",
			"password": "another password",
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("garbage body", func(t *testing.T) {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodPost,
			srv.URL+"/api/v1/auth/register", bytes.NewBufferString("{not json"))
		require.NoError(t, err)
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestLogin(t *testing.T) {
	srv := setupServer(t)
	register(t, newClient(t), srv.URL, "dave", "open sesame please")

	t.Run("success", func(t *testing.T) {
		client := newClient(t)
		resp := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/auth/login", map[string]string{
			"username": "dave",
			"password": "open sesame please",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		result := decodeResult(t, resp)
		require.True(t, result.OK)

		var data api.SessionData
		require.NoError(t, json.Unmarshal(result.Data, &data))
		assert.Equal(t, "dave", data.Username)

		resp = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/auth/session", nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("wrong password", func(t *testing.T) {
		resp := doJSON(t, newClient(t), http.MethodPost, srv.URL+"/api/v1/auth/login", map[string]string{
			"username": "dave",
			"password": "wrong",
		})
		result := decodeResult(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "invalid credentials", result.Message)
	})

	t.Run("unknown username", func(t *testing.T) {
		resp := doJSON(t, newClient(t), http.MethodPost, srv.URL+"/api/v1/auth/login", map[string]string{
			"username": "nobody",
			"password": "whatever password",
		})
		result := decodeResult(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		// Same message as a wrong password: no account enumeration.
		assert.Equal(t, "invalid credentials", result.Message)
	})
}

func TestSessionRequiresAuth(t *testing.T) {
	srv := setupServer(t)

	resp := doJSON(t, newClient(t), http.MethodGet, srv.URL+"/api/v1/auth/session", nil)
	result := decodeResult(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, result.OK)
}

func TestSessionRotatesRefreshCookie(t *testing.T) {
	srv := setupServer(t)
	client := newClient(t)
	register(t, client, srv.URL, "erin", "a strong password")

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	cookieValue := func() string {
		for _, c := range client.Jar.Cookies(u) {
			if c.Name == "kg_api_refresh" {
				return c.Value
			}
		}
		return ""
	}

	before := cookieValue()
	require.NotEmpty(t, before)

	resp := doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/auth/session", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-Keygate-Nonce"))
	resp.Body.Close()

	after := cookieValue()
	require.NotEmpty(t, after)
	assert.NotEqual(t, before, after, "refresh cookie should rotate on validation")
}

func TestLogout(t *testing.T) {
	srv := setupServer(t)
	client := newClient(t)
	register(t, client, srv.URL, "frank", "a strong password")

	resp := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/auth/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/auth/session", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Logging out again is still a 200.
	resp = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/auth/logout", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReplayedCookiesAreRejected(t *testing.T) {
	srv := setupServer(t)
	client := newClient(t)
	register(t, client, srv.URL, "grace", "a strong password")

	// Capture the cookies as issued, before any rotation.
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	stolen := client.Jar.Cookies(u)
	require.NotEmpty(t, stolen)

	// Legitimate client validates once, rotating the refresh nonce.
	resp := doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/auth/session", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The stolen pre-rotation cookies no longer authenticate.
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/api/v1/auth/session", nil)
	require.NoError(t, err)
	for _, c := range stolen {
		req.AddCookie(c)
	}
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRequestIDHeader(t *testing.T) {
	srv := setupServer(t)
	client := newClient(t)

	resp := doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/auth/session", nil)
	defer resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/api/v1/auth/session", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-123")
	resp2, err := client.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, "req-123", resp2.Header.Get("X-Request-ID"))
}

func TestOpenAPISpecServed(t *testing.T) {
	srv := setupServer(t)
	resp, err := http.Get(srv.URL + "/api/v1/openapi.yaml")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/yaml", resp.Header.Get("Content-Type"))
}
