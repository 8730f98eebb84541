package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-learn/backend/internal/models"
	"github.com/aura-learn/backend/internal/policy"
	"github.com/aura-learn/backend/pkg/clock"
	"github.com/aura-learn/backend/pkg/validation"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newMemUsers() *memUsers { return &memUsers{users: map[string]*models.User{}} }

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return nil, models.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) Create(_ context.Context, email, hash, name string, role models.Role) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &models.User{ID: uuid.New(), Email: email, Password: hash, FullName: name, Role: role, CreatedAt: time.Now()}
	m.users[email] = u
	return u, nil
}

func (m *memUsers) List(context.Context) ([]models.UserPublic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.UserPublic
	for _, u := range m.users {
		out = append(out, u.ToPublic())
	}
	return out, nil
}

func newAuthRouter(t *testing.T) (*gin.Engine, *JWTService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, validation.Setup())
	svc := NewJWTService("secret", 1)
	h := NewHandler(newMemUsers(), svc, nil)
	r := gin.New()
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	return r, svc
}

func postJSON(r http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterAndLogin(t *testing.T) {
	r, svc := newAuthRouter(t)

	w := postJSON(r, "/auth/register", gin.H{"email": "Ada@Example.com", "password": "s3cretpass", "full_name": "Ada", "role": "TEACHER"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = postJSON(r, "/auth/register", gin.H{"email": "ada@example.com", "password": "s3cretpass", "full_name": "Ada"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = postJSON(r, "/auth/login", gin.H{"email": "ada@example.com", "password": "wrongpass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postJSON(r, "/auth/login", gin.H{"email": "ada@example.com", "password": "s3cretpass"})
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data TokenResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	claims, err := svc.Validate(body.Data.Token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleTeacher, claims.Role)
	assert.Equal(t, body.Data.User.ID, claims.UserID)
}

func TestRegisterValidation(t *testing.T) {
	r, _ := newAuthRouter(t)

	w := postJSON(r, "/auth/register", gin.H{"email": "not-an-email", "password": "short", "role": "ADMIN"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Message string `json:"message"`
		Errors  []struct {
			Field string `json:"field"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Validation failed", body.Message)
	fields := map[string]bool{}
	for _, e := range body.Errors {
		fields[e.Field] = true
	}
	assert.True(t, fields["email"])
	assert.True(t, fields["password"])
	assert.True(t, fields["full_name"])
	assert.True(t, fields["role"])
}

func TestJWTServiceRejectsForeignSecret(t *testing.T) {
	token, err := NewJWTService("one", 1).Generate(uuid.New(), "a@example.com", models.RoleLearner)
	require.NoError(t, err)

	_, err = NewJWTService("two", 1).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := hashPassword("s3cretpass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cretpass", hash)
	assert.True(t, checkPassword("s3cretpass", hash))
	assert.False(t, checkPassword("s3cretpasS", hash))

	_, err = hashPassword(strings.Repeat("x", 73))
	assert.ErrorIs(t, err, errPasswordTooLong)
}

func TestRegisterRejectsOverlongPassword(t *testing.T) {
	r, _ := newAuthRouter(t)
	w := postJSON(r, "/auth/register", gin.H{"email": "long@example.com", "password": strings.Repeat("p", 80), "full_name": "Long"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "password must be at most 72 bytes")
}

func TestJWTExpiry(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	svc := NewJWTService("secret", 2).WithClock(clk)
	id := uuid.New()
	token, err := svc.Generate(id, "a@example.com", models.RoleLearner)
	require.NoError(t, err)

	clk.Advance(119 * time.Minute)
	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, policy.Caller{ID: id, Role: models.RoleLearner}, claims.Caller())

	clk.Advance(2 * time.Minute)
	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
