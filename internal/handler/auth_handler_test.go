package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cyberguard-api/internal/models"
	appErrors "github.com/noah-isme/cyberguard-api/pkg/errors"
)

type fakeAuthService struct {
	signupReq  models.SignupRequest
	loginReq   models.LoginRequest
	logoutUser string
	err        error
}

func (f *fakeAuthService) Signup(_ context.Context, req models.SignupRequest) (*models.LoginResponse, error) {
	f.signupReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.LoginResponse{AccessToken: "a", RefreshToken: "r", User: models.UserInfo{Email: req.Email, Role: models.RoleUser}}, nil
}

func (f *fakeAuthService) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	f.loginReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.LoginResponse{AccessToken: "a", RefreshToken: "r"}, nil
}

func (f *fakeAuthService) Refresh(_ context.Context, _ models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.RefreshTokenResponse{AccessToken: "a2", RefreshToken: "r2"}, nil
}

func (f *fakeAuthService) Logout(_ context.Context, userID string, _ models.LogoutRequest) error {
	f.logoutUser = userID
	return f.err
}

func (f *fakeAuthService) Me(_ context.Context, userID string) (*models.UserInfo, error) {
	return &models.UserInfo{ID: userID}, f.err
}

func TestAuthHandlerSignup(t *testing.T) {
	svc := &fakeAuthService{}
	h := NewAuthHandler(svc)

	c, rec := newContext(http.MethodPost, "/auth/signup", map[string]string{"email": "a@example.com", "password": "longenough", "full_name": "A"}, nil)
	c.Request.Header.Set("User-Agent", "test-agent")
	h.Signup(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "a@example.com", svc.signupReq.Email)
	assert.Equal(t, "test-agent", svc.signupReq.UserAgent)
}

func TestAuthHandlerLoginErrors(t *testing.T) {
	h := NewAuthHandler(&fakeAuthService{err: appErrors.ErrInvalidCredentials})

	c, rec := newContext(http.MethodPost, "/auth/login", map[string]string{"email": "a@example.com", "password": "x"}, nil)
	h.Login(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, decode(t, rec).Error.Code)

	c, rec = newContext(http.MethodPost, "/auth/login", nil, nil)
	c.Request.Body = http.NoBody
	h.Login(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandlerRefresh(t *testing.T) {
	h := NewAuthHandler(&fakeAuthService{})
	c, rec := newContext(http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": "r"}, nil)
	h.Refresh(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(decode(t, rec).Data), "a2")
}

func TestAuthHandlerLogout(t *testing.T) {
	svc := &fakeAuthService{}
	h := NewAuthHandler(svc)

	c, rec := newContext(http.MethodPost, "/auth/logout", map[string]string{"refresh_token": "r"}, nil)
	h.Logout(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c, rec = newContext(http.MethodPost, "/auth/logout", map[string]string{"refresh_token": "r"}, userClaims)
	h.Logout(c)
	require.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, "user-1", svc.logoutUser)
	_ = rec
}

func TestAuthHandlerMe(t *testing.T) {
	h := NewAuthHandler(&fakeAuthService{})
	c, rec := newContext(http.MethodGet, "/auth/me", nil, officerClaims)
	h.Me(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(decode(t, rec).Data), "officer-1")
}
