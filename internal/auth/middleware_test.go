package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProtectedApp(t *testing.T, handler fiber.Handler) *fiber.App {
	t.Helper()

	app := fiber.New()
	app.Get("/protected", handler, func(c fiber.Ctx) error {
		actx, ok := FromLocals(c)
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}

		return c.SendString(actx.ActorID)
	})

	return app
}

func TestRequirePermission(t *testing.T) {
	f := newFixture(t)
	app := newProtectedApp(t, RequirePermission(f.engine, PermAuditRead))

	testCases := []struct {
		name   string
		id     string
		role   string
		status int
	}{
		{"missing actor", "", "admin", fiber.StatusUnauthorized},
		{"viewer is forbidden", "v1", "viewer", fiber.StatusForbidden},
		{"unknown role is forbidden", "x1", "ghost", fiber.StatusForbidden},
		{"admin passes", "a1", "admin", fiber.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			req.Header.Set(HeaderActorID, tc.id)
			req.Header.Set(HeaderActorRole, tc.role)
			req.Header.Set(HeaderRequestID, "req-1")

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() {
				_ = resp.Body.Close()
			}()

			assert.Equal(t, tc.status, resp.StatusCode)

			if tc.status == fiber.StatusForbidden {
				var body map[string]string
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, "forbidden", body["error"])
				assert.NotEmpty(t, body["reason"])
			}
		})
	}
}

func TestRequirePermission_AuditsRequestMetadata(t *testing.T) {
	f := newFixture(t)
	app := newProtectedApp(t, RequirePermission(f.engine, PermAuditRead))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(HeaderActorID, "a1")
	req.Header.Set(HeaderActorRole, "admin")
	req.Header.Set(HeaderRequestID, "req-7")
	req.Header.Set(HeaderSessionID, "sess-7")

	resp, err := app.Test(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	events := f.engine.AuditQuery(auditFilterForActor("a1"))
	require.Len(t, events, 1)
	assert.Equal(t, "req-7", events[0].RequestID)
	assert.Equal(t, "sess-7", events[0].SessionID)
	assert.Equal(t, PermAuditRead, events[0].Action)
}

func TestRequireAnyPermission(t *testing.T) {
	f := newFixture(t)
	app := newProtectedApp(t, RequireAnyPermission(f.engine, PermCacheManage, "dashboard:view"))

	testCases := []struct {
		role   string
		status int
	}{
		{"viewer", fiber.StatusOK},
		{"editor", fiber.StatusOK},
		{"ghost", fiber.StatusForbidden},
	}

	for _, tc := range testCases {
		t.Run(tc.role, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			req.Header.Set(HeaderActorID, "u1")
			req.Header.Set(HeaderActorRole, tc.role)

			resp, err := app.Test(req)
			require.NoError(t, err)
			_ = resp.Body.Close()

			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}
