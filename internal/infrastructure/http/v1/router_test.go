package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"crudschema/internal/auth"
	"crudschema/internal/engine"
	v1 "crudschema/internal/infrastructure/http/v1"
	"crudschema/internal/infrastructure/storage/postgres/pgfake"
	"crudschema/internal/mutation"
	"crudschema/internal/schema/schematest"
	"crudschema/pkg/logger"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type server struct {
	handler http.Handler
	db      *pgfake.DB
	tokens  *auth.JWTService
}

func newServer(t *testing.T) *server {
	t.Helper()
	db := pgfake.New().
		On("COUNT(*)", pgfake.Result{Columns: []string{"count"}, Rows: [][]any{{int64(2)}}}).
		On("INSERT INTO users", pgfake.Result{Columns: []string{"id", "name"}, Rows: [][]any{{int64(5), "Al"}}}).
		On("INSERT INTO role_user", pgfake.Result{Tag: "INSERT 0 1"}).
		On("SELECT", pgfake.Result{Columns: []string{"id", "name"}, Rows: [][]any{{int64(1), "Ann"}, {int64(2), "Bob"}}})

	v, err := mutation.NewValidator()
	require.NoError(t, err)
	st := schematest.Store(t)
	eng := engine.New(st, db, v, engine.Options{MaxPageSize: 100})

	tokens := auth.NewJWTService(auth.DefaultJWTConfig("router-secret"))
	router := v1.NewRouter(v1.RouterConfig{
		Engine:          eng,
		Schemas:         st,
		DB:              pinger{},
		Logger:          logger.NewFromZap(zap.NewNop()),
		JWTValidator:    tokens,
		DefaultPageSize: 20,
	})
	return &server{handler: router, db: db, tokens: tokens}
}

func (s *server) do(t *testing.T, method, path string, body any, perms ...string) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if perms != nil {
		token, _, err := s.tokens.GenerateAccessToken("u1", "u1@example.com", perms)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func (s *server) lastSQL(t *testing.T) string {
	t.Helper()
	sql := s.db.SQL()
	require.NotEmpty(t, sql)
	return sql[len(sql)-1]
}

func TestCrud_ListRequiresViewPermission(t *testing.T) {
	s := newServer(t)

	code, body := s.do(t, http.MethodGet, "/api/v1/crud/users", nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "ACCESS_DENIED", body["code"])
	assert.Empty(t, s.db.Calls())
}

func TestCrud_ListUsesDefaultPageSize(t *testing.T) {
	s := newServer(t)

	code, body := s.do(t, http.MethodGet, "/api/v1/crud/users?search=an", nil, "view_user")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "users", body["model"])
	assert.Len(t, body["rows"], 2)
	assert.EqualValues(t, 2, body["count"])
	assert.Contains(t, s.lastSQL(t), "LIMIT 20")
}

func TestCrud_ListRejectsBadPage(t *testing.T) {
	s := newServer(t)

	code, body := s.do(t, http.MethodGet, "/api/v1/crud/users?page=-1", nil, "view_user")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
}

func TestCrud_RelationFallback(t *testing.T) {
	s := newServer(t)

	code, body := s.do(t, http.MethodGet, "/api/v1/crud/users/1/nowhere?size=5", nil, "view_user")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["fallback"])
	assert.Equal(t, "nowhere", body["relation"])
	assert.Contains(t, s.lastSQL(t), "LIMIT 5")
}

func TestCrud_UnknownModel(t *testing.T) {
	s := newServer(t)

	code, body := s.do(t, http.MethodGet, "/api/v1/crud/ghosts", nil, "view_user")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "SCHEMA_NOT_FOUND", body["code"])
}

func TestCrud_Create(t *testing.T) {
	s := newServer(t)

	code, body := s.do(t, http.MethodPost, "/api/v1/crud/users",
		map[string]any{"name": "Al", "email": "al@example.com"}, "create_user")
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "Users created", body["title"])
	assert.EqualValues(t, 5, body["id"])
	assert.Equal(t, 1, s.db.Commits)
}

func TestCrud_CreateValidationError(t *testing.T) {
	s := newServer(t)

	code, body := s.do(t, http.MethodPost, "/api/v1/crud/users",
		map[string]any{"name": "A", "email": "al@example.com"}, "create_user")
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
	details, ok := body["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "name", details["field"])
	assert.Equal(t, "length", details["rule"])
}

func TestCrud_AttachConvertsNumericIDs(t *testing.T) {
	s := newServer(t)

	code, body := s.do(t, http.MethodPost, "/api/v1/crud/users/9/roles",
		map[string]any{"ids": []any{3}}, "update_user")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["count"])

	calls := s.db.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, []any{int64(9), int64(3)}, calls[len(calls)-1].Args)
}

func TestCrud_AttachRequiresIDs(t *testing.T) {
	s := newServer(t)

	code, _ := s.do(t, http.MethodPost, "/api/v1/crud/users/9/roles",
		map[string]any{"ids": []any{}}, "update_user")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Empty(t, s.db.Calls())
}

func TestSchema_Endpoints(t *testing.T) {
	s := newServer(t)

	code, body := s.do(t, http.MethodGet, "/api/v1/schema", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"activities", "permissions", "roles", "users"}, body["models"])

	code, body = s.do(t, http.MethodGet, "/api/v1/schema/users?context=list&wrap=true", nil, "view_user")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "schema")
}

func TestAdmin_ReloadIsGuarded(t *testing.T) {
	s := newServer(t)

	code, body := s.do(t, http.MethodPost, "/api/v1/admin/schemas/reload", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "UNAUTHORIZED", body["code"])

	code, body = s.do(t, http.MethodPost, "/api/v1/admin/schemas/reload", nil, "view_user")
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "FORBIDDEN", body["code"])
}

func TestHealth(t *testing.T) {
	s := newServer(t)

	code, body := s.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	code, body = s.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}
