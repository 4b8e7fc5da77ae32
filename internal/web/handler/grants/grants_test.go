package grants_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accessgate/accessgate/internal/auth"
	"github.com/accessgate/accessgate/internal/config"
	"github.com/accessgate/accessgate/internal/grant"
	"github.com/accessgate/accessgate/internal/web/handler/grants"
)

func newApp(t *testing.T) (*fiber.App, *auth.Engine) {
	t.Helper()

	engine, err := auth.New(auth.WithGrantStore(grant.NewManager()))
	require.NoError(t, err)

	app := fiber.New()
	require.NoError(t, grants.New().Init(app, &config.Config{}, engine))

	return app, engine
}

func do(t *testing.T, app *fiber.App, method, path, actorRole string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(auth.HeaderActorID, actorRole+"-1")
	req.Header.Set(auth.HeaderActorRole, actorRole)

	resp, err := app.Test(req)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = resp.Body.Close()
	})

	return resp
}

func create(t *testing.T, app *fiber.App, req grants.CreateRequest) grant.Grant {
	t.Helper()

	resp := do(t, app, http.MethodPost, grants.Path, "admin", req)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var g grant.Grant
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&g))

	return g
}

func TestCreate(t *testing.T) {
	app, engine := newApp(t)

	g := create(t, app, grants.CreateRequest{UserID: "v1", Permission: "reports:export", Reason: "quarterly close"})

	assert.NotEmpty(t, g.ID)
	assert.Equal(t, "admin-1", g.GrantedBy)
	assert.True(t, g.IsActive)

	res := engine.Evaluate(&auth.Context{ActorID: "v1", ActorRole: "viewer"}, "reports:export", "")
	assert.True(t, res.Granted)
	assert.Equal(t, auth.SourceDynamic, res.Source)

	resp := do(t, app, http.MethodPost, grants.Path, "admin",
		grants.CreateRequest{UserID: "v1", Permission: "reports:export", Reason: "again"})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestCreate_Errors(t *testing.T) {
	app, _ := newApp(t)

	past := time.Now().Add(-time.Hour)

	testCases := []struct {
		name   string
		role   string
		body   grants.CreateRequest
		status int
	}{
		{"viewer is forbidden", "viewer", grants.CreateRequest{UserID: "v1", Permission: "reports:export", Reason: "r"}, fiber.StatusForbidden},
		{"missing reason", "admin", grants.CreateRequest{UserID: "v1", Permission: "reports:export"}, fiber.StatusBadRequest},
		{"malformed permission", "admin", grants.CreateRequest{UserID: "v1", Permission: "products:", Reason: "r"}, fiber.StatusBadRequest},
		{"unknown scoped role", "admin", grants.CreateRequest{UserID: "v1", Permission: "a:b", Reason: "r", Role: "ghost"}, fiber.StatusBadRequest},
		{"expiry in the past", "admin", grants.CreateRequest{UserID: "v1", Permission: "a:b", Reason: "r", ExpiresAt: &past}, fiber.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := do(t, app, http.MethodPost, grants.Path, tc.role, tc.body)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestListAndGet(t *testing.T) {
	app, _ := newApp(t)

	g := create(t, app, grants.CreateRequest{UserID: "v1", Permission: "reports:export", Reason: "r"})

	resp := do(t, app, http.MethodGet, grants.Path+"?userId=v1", "admin", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var list []grant.Grant
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, g.ID, list[0].ID)

	resp = do(t, app, http.MethodGet, grants.Path+"/"+g.ID, "admin", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = do(t, app, http.MethodGet, grants.Path+"/missing", "admin", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp = do(t, app, http.MethodGet, grants.Path, "admin", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRevoke(t *testing.T) {
	app, engine := newApp(t)

	g := create(t, app, grants.CreateRequest{UserID: "v1", Permission: "reports:export", Reason: "r"})

	resp := do(t, app, http.MethodDelete, grants.Path+"/"+g.ID, "admin", grants.RevokeRequest{
		Reason:   "done",
		Metadata: map[string]string{"ticket": "OPS-7"},
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var rev grant.Revocation
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rev))
	assert.Equal(t, g.ID, rev.GrantID)
	assert.Equal(t, "admin-1", rev.RevokedBy)
	assert.Equal(t, "OPS-7", rev.Metadata["ticket"])

	res := engine.Evaluate(&auth.Context{ActorID: "v1", ActorRole: "viewer"}, "reports:export", "")
	assert.False(t, res.Granted)

	// a second revocation conflicts
	resp = do(t, app, http.MethodDelete, grants.Path+"/"+g.ID+"?reason=again", "admin", nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp = do(t, app, http.MethodDelete, grants.Path+"/missing?reason=x", "admin", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestRevokeAll(t *testing.T) {
	app, _ := newApp(t)

	create(t, app, grants.CreateRequest{UserID: "v1", Permission: "reports:export", Reason: "r"})
	create(t, app, grants.CreateRequest{UserID: "v1", Permission: "reports:read", Reason: "r"})

	resp := do(t, app, http.MethodDelete, "/v1/users/v1/grants?reason=offboarding", "admin", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out []grants.RevokeAllResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out, 2)

	for _, r := range out {
		assert.Empty(t, r.Error)
		require.NotNil(t, r.Revocation)
		assert.Equal(t, "offboarding", r.Revocation.Reason)
	}
}

func TestList_ByRoleAndPermission(t *testing.T) {
	app, _ := newApp(t)

	scoped := create(t, app, grants.CreateRequest{UserID: "e1", Permission: "workflow:approve", Reason: "r", Role: "editor"})
	create(t, app, grants.CreateRequest{UserID: "v1", Permission: "workflow:approve", Reason: "r"})
	create(t, app, grants.CreateRequest{UserID: "v1", Permission: "reports:export", Reason: "r"})

	testCases := []struct {
		name   string
		query  string
		status int
		count  int
	}{
		{"by role", "?role=Editor", fiber.StatusOK, 1},
		{"by permission", "?permission=workflow:approve", fiber.StatusOK, 2},
		{"no match", "?permission=products:delete", fiber.StatusOK, 0},
		{"unknown role", "?role=ghost", fiber.StatusBadRequest, 0},
		{"malformed permission", "?permission=products:", fiber.StatusBadRequest, 0},
		{"two filters", "?role=editor&userId=e1", fiber.StatusBadRequest, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := do(t, app, http.MethodGet, grants.Path+tc.query, "admin", nil)
			require.Equal(t, tc.status, resp.StatusCode)

			if tc.status != fiber.StatusOK {
				return
			}

			var list []grant.Grant
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
			assert.Len(t, list, tc.count)
		})
	}

	resp := do(t, app, http.MethodGet, grants.Path+"?role=editor", "admin", nil)

	var list []grant.Grant
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, scoped.ID, list[0].ID)
}

func TestRevocationsAndStats(t *testing.T) {
	app, _ := newApp(t)

	g := create(t, app, grants.CreateRequest{UserID: "v1", Permission: "reports:export", Reason: "r"})
	create(t, app, grants.CreateRequest{UserID: "v1", Permission: "reports:read", Reason: "r"})

	resp := do(t, app, http.MethodDelete, grants.Path+"/"+g.ID+"?reason=done", "admin", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = do(t, app, http.MethodGet, "/v1/users/v1/revocations", "admin", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var revs []grant.Revocation
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&revs))
	require.Len(t, revs, 1)
	assert.Equal(t, g.ID, revs[0].GrantID)
	assert.Equal(t, "done", revs[0].Reason)

	resp = do(t, app, http.MethodGet, "/v1/users/nobody/revocations", "admin", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = do(t, app, http.MethodGet, grants.StatsPath, "admin", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var stats grant.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, grant.Stats{Total: 2, InForce: 1, Revoked: 1, Revocations: 1}, stats)

	resp = do(t, app, http.MethodGet, grants.StatsPath, "viewer", nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}
