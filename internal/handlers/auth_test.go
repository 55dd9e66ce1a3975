package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/assaytrack/apiserver/internal/apperr"
	"github.com/assaytrack/apiserver/internal/services"
	"github.com/assaytrack/apiserver/types"
)

const testSecret = "test-secret"

// fakeUserRepo is an in-memory services.UserRepository.
type fakeUserRepo struct {
	users  map[int]types.User
	nextID int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int]types.User), nextID: 1}
}

func (f *fakeUserRepo) GetByID(_ context.Context, id int) (types.User, error) {
	user, ok := f.users[id]
	if !ok {
		return types.User{}, apperr.NotFound("user")
	}
	return user, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	for _, user := range f.users {
		if strings.EqualFold(user.Email, strings.TrimSpace(email)) {
			return user, nil
		}
	}
	return types.User{}, apperr.NotFound("user")
}

func (f *fakeUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	if _, err := f.GetByEmail(context.Background(), user.Email); err == nil {
		return types.User{}, apperr.Conflict("email already registered")
	}
	user.ID = f.nextID
	f.nextID++
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUserRepo) Update(_ context.Context, user types.User) (types.User, error) {
	if _, ok := f.users[user.ID]; !ok {
		return types.User{}, apperr.NotFound("user")
	}
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUserRepo) TouchLastLogin(_ context.Context, id int, at time.Time) error {
	user, ok := f.users[id]
	if !ok {
		return apperr.NotFound("user")
	}
	user.LastLoginAt = &at
	f.users[id] = user
	return nil
}

func (f *fakeUserRepo) List(_ context.Context, offset, limit int) ([]types.User, int, error) {
	var out []types.User
	for _, user := range f.users {
		out = append(out, user)
	}
	return out, len(out), nil
}

func newAuthTestRouter(t *testing.T) (*chi.Mux, *fakeUserRepo) {
	t.Helper()
	repo := newFakeUserRepo()
	userService := services.NewUserService(repo)

	router := chi.NewRouter()
	router.Route("/auth", func(r chi.Router) {
		AuthRouter(r, userService, testSecret)
	})
	return router, repo
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRegisterLoginMe(t *testing.T) {
	router, _ := newAuthTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/auth/register", "", RegisterRequest{
		Email:    "Alice@Acme.example",
		Name:     "Alice",
		Company:  "Acme Mining",
		Password: "correct horse",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var registered AuthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&registered))
	require.NotEmpty(t, registered.Token)
	require.Equal(t, "alice@acme.example", registered.User.Email)
	require.Equal(t, types.RoleClient, registered.User.Role)
	require.Empty(t, registered.User.PasswordHash, "hash must never serialize")

	rec = doJSON(t, router, http.MethodPost, "/auth/login", "", LoginRequest{
		Email:    "alice@acme.example",
		Password: "correct horse",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var loggedIn AuthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&loggedIn))

	rec = doJSON(t, router, http.MethodGet, "/auth/me", loggedIn.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var me types.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&me))
	require.Equal(t, registered.User.ID, me.ID)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	router, _ := newAuthTestRouter(t)

	req := RegisterRequest{Email: "alice@acme.example", Name: "Alice", Password: "correct horse"}
	rec := doJSON(t, router, http.MethodPost, "/auth/register", "", req)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/auth/register", "", req)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	router, _ := newAuthTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/auth/register", "", RegisterRequest{
		Email: "alice@acme.example", Name: "Alice", Password: "correct horse",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/auth/login", "", LoginRequest{
		Email: "alice@acme.example", Password: "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Unknown accounts yield the same response as bad passwords.
	rec = doJSON(t, router, http.MethodPost, "/auth/login", "", LoginRequest{
		Email: "nobody@acme.example", Password: "whatever",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeactivatedAccountCannotAuthenticate(t *testing.T) {
	router, repo := newAuthTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/auth/register", "", RegisterRequest{
		Email: "alice@acme.example", Name: "Alice", Password: "correct horse",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var registered AuthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&registered))

	user := repo.users[registered.User.ID]
	user.Active = false
	repo.users[user.ID] = user

	rec = doJSON(t, router, http.MethodPost, "/auth/login", "", LoginRequest{
		Email: "alice@acme.example", Password: "correct horse",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// An already-issued token stops working too.
	rec = doJSON(t, router, http.MethodGet, "/auth/me", registered.Token, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeRejectsGarbageToken(t *testing.T) {
	router, _ := newAuthTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/auth/me", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/auth/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
