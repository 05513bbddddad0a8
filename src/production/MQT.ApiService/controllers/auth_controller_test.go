package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	auth_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/auth"
)

func loginForm(t *testing.T, env *testEnv, username, password string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/users/", "", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "correct-horse",
	})
	requireStatus(t, w, http.StatusCreated)
	var created map[string]interface{}
	decodeBody(t, w, &created)
	assert.Equal(t, "alice", created["username"])
	assert.Equal(t, auth_models.RoleUser, created["role"])
	assert.NotContains(t, created, "password")

	w = env.do(t, http.MethodPost, "/api/v1/users/", "", map[string]string{"username": "alice", "password": "correct-horse"})
	requireStatus(t, w, http.StatusBadRequest)
	assert.Contains(t, w.Body.String(), "Username already registered")

	w = loginForm(t, env, "alice", "wrong-horse")
	requireStatus(t, w, http.StatusBadRequest)
	assert.Contains(t, w.Body.String(), "Incorrect username or password")

	w = loginForm(t, env, "alice", "correct-horse")
	requireStatus(t, w, http.StatusOK)
	var token struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		Username    string `json:"username"`
	}
	decodeBody(t, w, &token)
	assert.Equal(t, "bearer", token.TokenType)
	assert.Equal(t, "alice", token.Username)
	require.NotEmpty(t, token.AccessToken)

	var hasRefresh bool
	for _, c := range w.Result().Cookies() {
		if c.Name == refreshCookie && c.Value != "" && c.HttpOnly {
			hasRefresh = true
		}
	}
	assert.True(t, hasRefresh)

	w = env.do(t, http.MethodGet, "/api/v1/users/me", token.AccessToken, nil)
	requireStatus(t, w, http.StatusOK)
	assert.Contains(t, w.Body.String(), `"username":"alice"`)
}

func TestJSONLogin(t *testing.T) {
	env := newTestEnv(t)
	requireStatus(t, env.do(t, http.MethodPost, "/api/v1/users/", "", map[string]string{"username": "bob", "password": "long-password"}), http.StatusCreated)

	w := env.do(t, http.MethodPost, "/token", "", map[string]string{"username": "bob", "password": "long-password"})
	requireStatus(t, w, http.StatusOK)

	w = env.do(t, http.MethodPost, "/token", "", map[string]string{"username": "bob"})
	requireStatus(t, w, http.StatusBadRequest)
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	env := newTestEnv(t)
	requireStatus(t, env.do(t, http.MethodPost, "/api/v1/users/", "", map[string]string{"username": "alice", "password": "correct-horse"}), http.StatusCreated)

	w := loginForm(t, env, "alice", "correct-horse")
	requireStatus(t, w, http.StatusOK)
	var token struct {
		AccessToken string `json:"access_token"`
	}
	decodeBody(t, w, &token)
	cookies := w.Result().Cookies()

	requireStatus(t, env.do(t, http.MethodPost, "/api/auth/logout", token.AccessToken, nil), http.StatusOK)
	requireStatus(t, env.do(t, http.MethodGet, "/api/v1/users/me", token.AccessToken, nil), http.StatusUnauthorized)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rw := httptest.NewRecorder()
	env.router.ServeHTTP(rw, req)
	requireStatus(t, rw, http.StatusUnauthorized)
}

func TestRefreshIssuesNewAccessToken(t *testing.T) {
	env := newTestEnv(t)
	requireStatus(t, env.do(t, http.MethodPost, "/api/v1/users/", "", map[string]string{"username": "alice", "password": "correct-horse"}), http.StatusCreated)

	w := loginForm(t, env, "alice", "correct-horse")
	requireStatus(t, w, http.StatusOK)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	for _, c := range w.Result().Cookies() {
		req.AddCookie(c)
	}
	rw := httptest.NewRecorder()
	env.router.ServeHTTP(rw, req)
	requireStatus(t, rw, http.StatusOK)

	var refreshed struct {
		AccessToken string `json:"access_token"`
	}
	decodeBody(t, rw, &refreshed)
	requireStatus(t, env.do(t, http.MethodGet, "/api/v1/users/me", refreshed.AccessToken, nil), http.StatusOK)

	requireStatus(t, env.do(t, http.MethodPost, "/api/auth/refresh", "", nil), http.StatusUnauthorized)
}

func TestUpdateOwnProfile(t *testing.T) {
	env := newTestEnv(t)
	requireStatus(t, env.do(t, http.MethodPost, "/api/v1/users/", "", map[string]string{"username": "alice", "password": "correct-horse"}), http.StatusCreated)
	user, _ := env.users.GetByUsername(context.Background(), "alice")
	token := env.token(t, user.UserID, auth_models.RoleUser)

	w := env.do(t, http.MethodPatch, "/api/v1/users/me", token, map[string]string{"email": "new@example.com"})
	requireStatus(t, w, http.StatusOK)
	assert.Contains(t, w.Body.String(), "new@example.com")

	w = env.do(t, http.MethodPatch, "/api/v1/users/me", token, map[string]string{"password": "x"})
	requireStatus(t, w, http.StatusBadRequest)
}

func TestAdminUserManagement(t *testing.T) {
	env := newTestEnv(t)
	requireStatus(t, env.do(t, http.MethodPost, "/api/v1/users/", "", map[string]string{"username": "alice", "password": "correct-horse"}), http.StatusCreated)
	alice, _ := env.users.GetByUsername(context.Background(), "alice")

	userToken := env.token(t, alice.UserID, auth_models.RoleUser)
	adminToken := env.token(t, "root", auth_models.RoleAdmin)

	requireStatus(t, env.do(t, http.MethodGet, "/api/v1/users/", userToken, nil), http.StatusForbidden)

	w := env.do(t, http.MethodGet, "/api/v1/users/", adminToken, nil)
	requireStatus(t, w, http.StatusOK)
	assert.Contains(t, w.Body.String(), `"username":"alice"`)

	requireStatus(t, env.do(t, http.MethodPatch, "/api/v1/users/"+alice.UserID+"/role", adminToken, map[string]string{"role": "wizard"}), http.StatusBadRequest)
	requireStatus(t, env.do(t, http.MethodPatch, "/api/v1/users/nobody/role", adminToken, map[string]string{"role": "admin"}), http.StatusNotFound)

	w = env.do(t, http.MethodPatch, "/api/v1/users/"+alice.UserID+"/role", adminToken, map[string]string{"role": "admin"})
	requireStatus(t, w, http.StatusOK)
	assert.Contains(t, w.Body.String(), `"role":"admin"`)

	w = env.do(t, http.MethodPatch, "/api/v1/users/"+alice.UserID+"/active", adminToken, map[string]bool{"active": false})
	requireStatus(t, w, http.StatusOK)
	requireStatus(t, loginForm(t, env, "alice", "correct-horse"), http.StatusBadRequest)
}
