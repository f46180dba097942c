package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	middleware "github.com/ShriAmogh/artikate-assignment/internal/api/middlewares"
	"github.com/ShriAmogh/artikate-assignment/internal/core"
	"github.com/ShriAmogh/artikate-assignment/internal/models"
	"github.com/ShriAmogh/artikate-assignment/internal/services"
)

const testSecret = "test-secret"

// userStore implements just the user operations of core.DbClient.
type userStore struct {
	core.DbClient

	mu    sync.Mutex
	users map[string]*models.User
}

func newUserStore() *userStore {
	return &userStore{users: make(map[string]*models.User)}
}

func (s *userStore) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.Email]; ok {
		return assert.AnError
	}
	s.users[u.Email] = u
	return nil
}

func (s *userStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[email], nil
}

func newAuthHandler() *AuthHandler {
	return NewAuthHandler(services.NewUserService(newUserStore()), testSecret)
}

func postJSON(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestSignupIssuesToken(t *testing.T) {
	h := newAuthHandler()

	rec := postJSON(t, h.Signup, map[string]string{
		"email":    "a@b.com",
		"password": "hunter2",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["token"])
}

func TestSignupRejectsMissingFields(t *testing.T) {
	h := newAuthHandler()

	rec := postJSON(t, h.Signup, map[string]string{"email": "a@b.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginRoundTrip(t *testing.T) {
	h := newAuthHandler()

	rec := postJSON(t, h.Signup, map[string]string{"email": "a@b.com", "password": "hunter2"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(t, h.Login, map[string]string{"email": "a@b.com", "password": "hunter2"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, h.Login, map[string]string{"email": "a@b.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, h.Login, map[string]string{"email": "nobody@b.com", "password": "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTMiddlewarePassesUserID(t *testing.T) {
	h := newAuthHandler()
	token, err := h.generateToken("user-42")
	require.NoError(t, err)

	var gotUserID string
	protected := middleware.JWT(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = middleware.UserID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-42", gotUserID)
}

func TestJWTMiddlewareRejectsBadTokens(t *testing.T) {
	protected := middleware.JWT(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
