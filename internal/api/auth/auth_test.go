package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, revoker Revoker) (*gin.Engine, *fakeUserStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc, users := newTestService(t, revoker)
	h := NewHandler(svc, CookieConfig{Secure: true}, nil)

	r := gin.New()
	r.POST("/register", h.Register)
	r.POST("/token", h.Token)
	r.POST("/token/refresh", h.Refresh)
	r.POST("/logout", h.Logout)
	return r, users
}

func doJSON(r http.Handler, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func cookieByName(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestHandler_Register(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	w := doJSON(r, http.MethodPost, "/register", `{"username":"alice","password":"Pass@123"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotContains(t, w.Body.String(), "password")

	var resp UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alice", resp.Username)
	assert.NotZero(t, resp.ID)
	assert.False(t, resp.IsStaff)
	assert.False(t, resp.IsSuperuser)

	w = doJSON(r, http.MethodPost, "/register", `{"username":"Bob","password":"abc"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	var errs map[string][]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errs))
	assert.Equal(t, []string{"Username should be all lowercase characters"}, errs["username"])
	assert.Equal(t, []string{"Password must contain more than 6 characters"}, errs["password"])

	w = doJSON(r, http.MethodPost, "/register", `{"username":"alice","password":"Pass@123"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), msgUsernameTaken)

	w = doJSON(r, http.MethodPost, "/register", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_RegisterRejectsOverlongPassword(t *testing.T) {
	r, users := newTestRouter(t, nil)

	body := `{"username":"longpw","password":"a1@` + strings.Repeat("x", 80) + `"}`
	w := doJSON(r, http.MethodPost, "/register", body)
	require.Equal(t, http.StatusBadRequest, w.Code)
	var errs map[string][]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errs))
	assert.Equal(t, []string{msgPasswordTooLong}, errs["password"])
	assert.Empty(t, users.users)
}

func TestHandler_RegisterMissingFields(t *testing.T) {
	r, users := newTestRouter(t, nil)

	cases := []struct {
		name string
		body string
		want map[string][]string
	}{
		{"missing username", `{"password":"Pass@123"}`, map[string][]string{"username": {msgRequired}}},
		{"missing both", `{}`, map[string][]string{"username": {msgRequired}, "password": {msgRequired}}},
		{"blank username missing password", `{"username":""}`, map[string][]string{"username": {msgBlank}, "password": {msgRequired}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(r, http.MethodPost, "/register", tc.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			var errs map[string][]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errs))
			assert.Equal(t, tc.want, errs)
		})
	}
	assert.Empty(t, users.users)
}

func TestHandler_TokenSetsCookies(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	doJSON(r, http.MethodPost, "/register", `{"username":"alice","password":"Pass@123"}`)

	w := doJSON(r, http.MethodPost, "/token", `{"username":"alice","password":"Pass@123"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())

	access := cookieByName(w, AccessCookieName)
	refresh := cookieByName(w, RefreshCookieName)
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	for _, c := range []*http.Cookie{access, refresh} {
		assert.True(t, c.HttpOnly)
		assert.True(t, c.Secure)
		assert.Equal(t, http.SameSiteNoneMode, c.SameSite)
		assert.Equal(t, "/", c.Path)
		assert.Greater(t, c.MaxAge, 0)
	}
	assert.Greater(t, refresh.MaxAge, access.MaxAge)
}

func TestHandler_TokenFailure(t *testing.T) {
	r, users := newTestRouter(t, nil)
	doJSON(r, http.MethodPost, "/register", `{"username":"alice","password":"Pass@123"}`)

	w := doJSON(r, http.MethodPost, "/token", `{"username":"alice","password":"Wrong@123"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"success":false}`, w.Body.String())
	assert.Nil(t, cookieByName(w, AccessCookieName))

	w = doJSON(r, http.MethodPost, "/token", `{`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"success":false}`, w.Body.String())

	users.findErr = assert.AnError
	w = doJSON(r, http.MethodPost, "/token", `{"username":"alice","password":"Pass@123"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"success":false}`, w.Body.String())
}

func TestHandler_Refresh(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	doJSON(r, http.MethodPost, "/register", `{"username":"alice","password":"Pass@123"}`)
	login := doJSON(r, http.MethodPost, "/token", `{"username":"alice","password":"Pass@123"}`)
	refresh := cookieByName(login, RefreshCookieName)
	require.NotNil(t, refresh)

	w := doJSON(r, http.MethodPost, "/token/refresh", "", refresh)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"refreshed":true}`, w.Body.String())
	assert.NotNil(t, cookieByName(w, AccessCookieName))
	assert.Nil(t, cookieByName(w, RefreshCookieName))

	// refresh token 只从 Cookie 读取
	w = doJSON(r, http.MethodPost, "/token/refresh", `{"refresh":"`+refresh.Value+`"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())

	access := cookieByName(login, AccessCookieName)
	w = doJSON(r, http.MethodPost, "/token/refresh", "", &http.Cookie{Name: RefreshCookieName, Value: access.Value})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandler_LogoutRevokes(t *testing.T) {
	dl, _ := newTestDenylist(t)
	r, _ := newTestRouter(t, dl)
	doJSON(r, http.MethodPost, "/register", `{"username":"alice","password":"Pass@123"}`)
	login := doJSON(r, http.MethodPost, "/token", `{"username":"alice","password":"Pass@123"}`)
	access := cookieByName(login, AccessCookieName)
	refresh := cookieByName(login, RefreshCookieName)

	w := doJSON(r, http.MethodPost, "/logout", "", access, refresh)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())
	for _, name := range []string{AccessCookieName, RefreshCookieName} {
		c := cookieByName(w, name)
		require.NotNil(t, c)
		assert.Empty(t, c.Value)
		assert.Less(t, c.MaxAge, 0)
	}

	w = doJSON(r, http.MethodPost, "/token/refresh", "", refresh)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// 未登录时注销同样成功
	w = doJSON(r, http.MethodPost, "/logout", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCookieConfig_InsecureUsesLax(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/token", bytes.NewReader(nil))

	CookieConfig{Secure: false, Domain: "example.com"}.ClearTokenCookies(c)
	access := cookieByName(w, AccessCookieName)
	require.NotNil(t, access)
	assert.False(t, access.Secure)
	assert.Equal(t, http.SameSiteLaxMode, access.SameSite)
	assert.Equal(t, "example.com", access.Domain)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Empty(t, BearerToken("Basic abc"))
	assert.Empty(t, BearerToken(""))
}
