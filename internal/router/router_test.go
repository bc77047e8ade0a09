package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/pixsearch-identity/config"
	"github.com/oksasatya/pixsearch-identity/internal/container"
	"github.com/oksasatya/pixsearch-identity/internal/infrastructure/sqlite"
	"github.com/oksasatya/pixsearch-identity/pkg/helpers"
	"github.com/oksasatya/pixsearch-identity/pkg/mailer"
)

type outbox struct {
	mu   sync.Mutex
	msgs []mailer.Message
	err  error
}

func (o *outbox) Send(_ context.Context, msg mailer.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) last(t *testing.T) mailer.Message {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.msgs)
	return o.msgs[len(o.msgs)-1]
}

type envelope struct {
	Status  int             `json:"status"`
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
}

type server struct {
	engine *gin.Engine
	outbox *outbox
	c      *container.Container
}

func testConfig() *config.Config {
	return &config.Config{
		AppName:        "identity-test",
		Env:            "test",
		JWTSecret:      "router-test-secret",
		SessionTTL:     time.Hour,
		BcryptCost:     4,
		VerifyTokenTTL: 24 * time.Hour,
		ResetTokenTTL:  30 * time.Minute,
		StoreTimeout:   5 * time.Second,
		NotifyTimeout:  time.Second,
		BaseURL:        "http://client.test/api",
		MetricsEnabled: true,
	}
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "router.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	box := &outbox{}
	c, err := container.New(testConfig(), helpers.NewNopLogger(), store, box)
	require.NoError(t, err)
	c.Ping = func(ctx context.Context) error { return store.DB().PingContext(ctx) }
	return &server{engine: NewEngine(c), outbox: box, c: c}
}

func (s *server) do(t *testing.T, method, path string, body any, mutate ...func(*http.Request)) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, m := range mutate {
		m(req)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func (s *server) verifyPath(t *testing.T) string {
	t.Helper()
	link, _ := s.outbox.last(t).Data["VerifyURL"].(string)
	require.NotEmpty(t, link)
	return strings.TrimPrefix(link, "http://client.test")
}

func signupBody(email string) map[string]string {
	return map[string]string{"firstName": "Ada", "lastName": "Lovelace", "email": email, "password": "Abc12345!"}
}

func TestSignupVerifyLoginFlow(t *testing.T) {
	s := newServer(t)

	w, env := s.do(t, http.MethodPost, "/api/signup", signupBody("a@x.com"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.True(t, env.Success)
	var created struct {
		ID       string `json:"id"`
		Email    string `json:"email"`
		Verified bool   `json:"verified"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.Equal(t, "a@x.com", created.Email)
	require.False(t, created.Verified)
	require.NotContains(t, w.Body.String(), "password")

	w, _ = s.do(t, http.MethodPost, "/api/login", map[string]string{"email": "a@x.com", "password": "Abc12345!"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Empty(t, w.Result().Cookies(), "unverified login sets no session")

	verify := s.verifyPath(t)
	require.True(t, strings.HasPrefix(verify, "/api/users/"+created.ID+"/verify/"))
	w, _ = s.do(t, http.MethodGet, verify, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w, _ = s.do(t, http.MethodGet, verify, nil)
	require.Equal(t, http.StatusBadRequest, w.Code, "verification link is single use")

	w, env = s.do(t, http.MethodPost, "/api/login", map[string]string{"email": "A@x.com", "password": "Abc12345!"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login struct {
		Token string         `json:"token"`
		User  map[string]any `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &login))
	require.NotEmpty(t, login.Token)
	require.Equal(t, created.ID, login.User["id"])
	require.Equal(t, "a@x.com", login.User["email"])
	for _, field := range []string{"verified", "createdAt", "updatedAt", "password", "passwordHash"} {
		require.NotContains(t, login.User, field)
	}
	sub, err := s.c.JWT.Parse(login.Token)
	require.NoError(t, err)
	require.Equal(t, created.ID, sub)

	var session *http.Cookie
	for _, ck := range w.Result().Cookies() {
		if ck.Name == helpers.SessionCookieName {
			session = ck
		}
	}
	require.NotNil(t, session)
	require.True(t, session.HttpOnly)

	w, _ = s.do(t, http.MethodPost, "/api/login", map[string]string{"email": "a@x.com", "password": "Wrong123!"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, env = s.do(t, http.MethodGet, "/api/users/me", nil, func(r *http.Request) { r.AddCookie(session) })
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, string(env.Data), created.ID)
}

func TestVerifyUnknownUserIsBadRequest(t *testing.T) {
	s := newServer(t)
	w, env := s.do(t, http.MethodGet, "/api/users/00000000-0000-0000-0000-000000000000/verify/abc", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.False(t, env.Success)
}

func TestSignupErrors(t *testing.T) {
	s := newServer(t)

	w, _ := s.do(t, http.MethodPost, "/api/signup", signupBody("dup@x.com"))
	require.Equal(t, http.StatusCreated, w.Code)
	w, env := s.do(t, http.MethodPost, "/api/users", signupBody("dup@x.com"))
	require.Equal(t, http.StatusConflict, w.Code)
	require.NotEmpty(t, env.Message)

	w, _ = s.do(t, http.MethodPost, "/api/signup", "{not json")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, env = s.do(t, http.MethodPost, "/api/signup", map[string]string{"email": "nope", "password": "short"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	var details map[string]string
	require.NoError(t, json.Unmarshal(env.Error, &details))
	require.Contains(t, details, "email")
	require.Contains(t, details, "password")
	require.Contains(t, details, "firstName")
}

func TestSignupDeliveryFailure(t *testing.T) {
	s := newServer(t)
	s.outbox.err = errors.New("mail down")

	w, env := s.do(t, http.MethodPost, "/api/signup", signupBody("late@x.com"))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, env.Message, "log in")

	w, _ = s.do(t, http.MethodPost, "/api/signup", signupBody("late@x.com"))
	require.Equal(t, http.StatusConflict, w.Code, "account was kept")
}

func TestPasswordResetFlow(t *testing.T) {
	s := newServer(t)
	s.do(t, http.MethodPost, "/api/signup", signupBody("r@x.com"))
	w, _ := s.do(t, http.MethodGet, s.verifyPath(t), nil)
	require.Equal(t, http.StatusOK, w.Code)

	unknownW, unknown := s.do(t, http.MethodPost, "/api/reset-password", map[string]string{"email": "ghost@x.com"})
	knownW, known := s.do(t, http.MethodPost, "/api/auth/reset-password", map[string]string{"email": "r@x.com"})
	require.Equal(t, http.StatusOK, unknownW.Code)
	require.Equal(t, http.StatusOK, knownW.Code)
	require.Equal(t, unknown.Message, known.Message)
	require.Equal(t, string(unknown.Data), string(known.Data))

	code, _ := s.outbox.last(t).Data["Code"].(string)
	require.Len(t, code, 6)

	w, _ = s.do(t, http.MethodPost, "/api/reset-password-update", map[string]string{"token": code, "password": "NewPass1!"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w, _ = s.do(t, http.MethodPost, "/api/auth/reset-password-update", map[string]string{"token": code, "password": "NewPass2!"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/auth", map[string]string{"email": "r@x.com", "password": "Abc12345!"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = s.do(t, http.MethodPost, "/api/auth", map[string]string{"email": "r@x.com", "password": "NewPass1!"})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestUserDirectoryRequiresSession(t *testing.T) {
	s := newServer(t)
	s.do(t, http.MethodPost, "/api/signup", signupBody("admin@x.com"))
	s.do(t, http.MethodGet, s.verifyPath(t), nil)
	s.do(t, http.MethodPost, "/api/signup", signupBody("other@x.com"))

	w, _ := s.do(t, http.MethodGet, "/api/users", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	_, env := s.do(t, http.MethodPost, "/api/login", map[string]string{"email": "admin@x.com", "password": "Abc12345!"})
	var login struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &login))
	auth := bearer(login.Token)

	w, env = s.do(t, http.MethodGet, "/api/users?q=other", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	var list []struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	require.Equal(t, "other@x.com", list[0].Email)

	w, _ = s.do(t, http.MethodPut, "/api/users/"+list[0].ID, map[string]string{"firstName": "O", "lastName": "T", "email": "admin@x.com"}, auth)
	require.Equal(t, http.StatusConflict, w.Code)
	w, _ = s.do(t, http.MethodPut, "/api/users/"+list[0].ID, map[string]string{"firstName": "O", "lastName": "T", "email": "renamed@x.com"}, auth)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodDelete, "/api/users/"+list[0].ID, nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodDelete, "/api/users/"+list[0].ID, nil, auth)
	require.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodDelete, "/api/users/"+login.User.ID, nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodGet, "/api/users/me", nil, auth)
	require.Equal(t, http.StatusUnauthorized, w.Code, "session of a deleted user is rejected")
}

func TestOpsEndpoints(t *testing.T) {
	s := newServer(t)

	w, _ := s.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	s.do(t, http.MethodPost, "/api/login", map[string]string{"email": "x@x.com", "password": "Abc12345!"})
	w, _ = s.do(t, http.MethodGet, "/metrics", nil, func(r *http.Request) { r.Header.Set("X-Forwarded-For", "127.0.0.1") })
	require.Equal(t, http.StatusForbidden, w.Code, "forwarding headers from an untrusted peer are ignored")

	w, _ = s.do(t, http.MethodGet, "/metrics", nil, func(r *http.Request) { r.RemoteAddr = "127.0.0.1:40000" })
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `identity_auth_operations_total{op="login",outcome="bad_credentials"} 1`)
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
