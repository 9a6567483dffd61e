package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu       sync.Mutex
	accounts map[string]*Account
	hashes   map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{accounts: map[string]*Account{}, hashes: map[string]string{}}
}

func (f *fakeStore) Create(_ context.Context, email, passwordHash, displayName, role string) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[email]; ok {
		return nil, &pgconn.PgError{Code: "23505"}
	}
	a := &Account{ID: uuid.New(), Email: email, DisplayName: displayName, Role: role}
	if role == RoleWorker {
		a.KYCStatus = KYCPending
	}
	f.accounts[email] = a
	f.hashes[email] = passwordHash
	return a, nil
}

func (f *fakeStore) GetByEmail(_ context.Context, email string) (*Account, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[email]
	if !ok {
		return nil, "", nil
	}
	return a, f.hashes[email], nil
}

func TestRegisterAndLogin(t *testing.T) {
	svc := NewService(newFakeStore(), "test-secret")
	ctx := context.Background()

	acc, err := svc.Register(ctx, "ani@example.com", "hunter22", "Ani", RoleWorker)
	require.NoError(t, err)
	assert.Equal(t, RoleWorker, acc.Role)

	token, got, err := svc.Login(ctx, "  Ani@Example.com ", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)
	assert.Equal(t, KYCPending, got.KYCStatus)

	id, role, err := svc.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, id)
	assert.Equal(t, RoleWorker, role)
}

func TestRegisterRejectsAdminAndUnknownRoles(t *testing.T) {
	svc := NewService(newFakeStore(), "test-secret")
	for _, role := range []string{RoleAdmin, "requester", ""} {
		_, err := svc.Register(context.Background(), "x@example.com", "pw", "X", role)
		assert.ErrorIs(t, err, ErrInvalidRole, role)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := NewService(newFakeStore(), "test-secret")
	ctx := context.Background()
	_, err := svc.Register(ctx, "dup@example.com", "pw", "A", RoleBusiness)
	require.NoError(t, err)
	_, err = svc.Register(ctx, "dup@example.com", "pw", "B", RoleBusiness)
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestLoginWrongPassword(t *testing.T) {
	svc := NewService(newFakeStore(), "test-secret")
	ctx := context.Background()
	_, err := svc.Register(ctx, "b@example.com", "right", "B", RoleBusiness)
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "b@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "nobody@example.com", "right")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateTokenRejectsForeignAndExpired(t *testing.T) {
	svc := NewService(newFakeStore(), "test-secret")
	other := NewService(newFakeStore(), "other-secret")

	foreign, err := other.IssueToken(uuid.New(), RoleAdmin)
	require.NoError(t, err)
	_, _, err = svc.ValidateToken(context.Background(), foreign)
	assert.Error(t, err)

	svc.now = func() time.Time { return time.Now().Add(-2 * tokenTTL) }
	expired, err := svc.IssueToken(uuid.New(), RoleWorker)
	require.NoError(t, err)
	svc.now = time.Now
	_, _, err = svc.ValidateToken(context.Background(), expired)
	assert.Error(t, err)
}

func post(h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return rec
}

func TestHandlerLoginStatusCodes(t *testing.T) {
	svc := NewService(newFakeStore(), "test-secret")
	_, err := svc.Register(context.Background(), "h@example.com", "pw", "H", RoleWorker)
	require.NoError(t, err)
	h := NewHandler(svc, nil)

	rec := post(h.Login, "/api/v1/auth/login", `{"email":"h@example.com","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var out LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.NotEmpty(t, out.Token)
	assert.Equal(t, RoleWorker, out.Account.Role)
	assert.Equal(t, KYCPending, out.Account.KYCStatus)

	rec = post(h.Login, "/api/v1/auth/login", `{"email":"h@example.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid credentials"}`, rec.Body.String())

	rec = post(h.Login, "/api/v1/auth/login", `{"email":"h@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerRegister(t *testing.T) {
	h := NewHandler(NewService(newFakeStore(), "test-secret"), nil)

	rec := post(h.Register, "/api/v1/auth/register", `{"email":"w@b.c","password":"pw","display_name":"W","role":"worker"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var worker AccountResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&worker))
	assert.Equal(t, KYCPending, worker.KYCStatus)

	rec = post(h.Register, "/api/v1/auth/register", `{"email":"biz@b.c","password":"pw","display_name":"B","role":"business"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "kyc_status")

	cases := []struct {
		name string
		body string
		code int
		err  string
	}{
		{"admin role", `{"email":"a@b.c","password":"pw","display_name":"A","role":"admin"}`, http.StatusBadRequest, "role must be worker or business"},
		{"missing name", `{"email":"a@b.c","password":"pw","role":"worker"}`, http.StatusBadRequest, "display_name is required"},
		{"bad json", `{`, http.StatusBadRequest, "invalid JSON"},
		{"duplicate", `{"email":"W@B.C","password":"pw","display_name":"W","role":"worker"}`, http.StatusConflict, "email already registered"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := post(h.Register, "/api/v1/auth/register", tc.body)
			assert.Equal(t, tc.code, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var body errorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tc.err, body.Error)
		})
	}
}
