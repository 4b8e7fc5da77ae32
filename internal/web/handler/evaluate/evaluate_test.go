package evaluate_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accessgate/accessgate/internal/audit"
	"github.com/accessgate/accessgate/internal/auth"
	"github.com/accessgate/accessgate/internal/config"
	"github.com/accessgate/accessgate/internal/grant"
	"github.com/accessgate/accessgate/internal/web/handler/evaluate"
)

func newApp(t *testing.T) (*fiber.App, *auth.Engine) {
	t.Helper()

	engine, err := auth.New(auth.WithGrantStore(grant.NewManager()))
	require.NoError(t, err)

	app := fiber.New()
	require.NoError(t, evaluate.New().Init(app, &config.Config{}, engine))

	return app, engine
}

func post(t *testing.T, app *fiber.App, path string, body any) *http.Response {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(auth.HeaderRequestID, "req-1")

	resp, err := app.Test(req)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = resp.Body.Close()
	})

	return resp
}

func TestInit_NilArguments(t *testing.T) {
	require.Error(t, evaluate.New().Init(nil, &config.Config{}, nil))
}

func TestEvaluate(t *testing.T) {
	app, _ := newApp(t)

	testCases := []struct {
		name   string
		body   any
		status int
		source auth.Source
	}{
		{
			name:   "editor creates products",
			body:   evaluate.Request{Context: auth.Context{ActorID: "e1", ActorRole: "editor"}, Action: "products:create"},
			status: fiber.StatusOK,
			source: auth.SourceRole,
		},
		{
			name:   "viewer is denied",
			body:   evaluate.Request{Context: auth.Context{ActorID: "v1", ActorRole: "viewer"}, Action: "products:create"},
			status: fiber.StatusForbidden,
			source: auth.SourceDenied,
		},
		{
			name:   "missing actor is denied",
			body:   evaluate.Request{Context: auth.Context{ActorRole: "viewer"}, Action: "products:read"},
			status: fiber.StatusForbidden,
			source: auth.SourceDenied,
		},
		{
			name:   "missing action is rejected",
			body:   evaluate.Request{Context: auth.Context{ActorID: "v1", ActorRole: "viewer"}},
			status: fiber.StatusBadRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := post(t, app, evaluate.Path, tc.body)
			assert.Equal(t, tc.status, resp.StatusCode)

			if tc.status == fiber.StatusBadRequest {
				return
			}

			var res auth.Result
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
			assert.Equal(t, tc.source, res.Source)
			assert.Equal(t, tc.status == fiber.StatusOK, res.Granted)
		})
	}
}

func TestEvaluate_BrokenBody(t *testing.T) {
	app, _ := newApp(t)

	req := httptest.NewRequest(http.MethodPost, evaluate.Path, bytes.NewBufferString(`{"action":`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestEvaluate_RecordsRequestID(t *testing.T) {
	app, engine := newApp(t)

	resp := post(t, app, evaluate.Path, evaluate.Request{
		Context: auth.Context{ActorID: "e1", ActorRole: "editor"},
		Action:  "products:read",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	events := engine.AuditQuery(audit.Filter{ActorID: "e1"})
	require.NotEmpty(t, events)
	assert.Equal(t, "req-1", events[0].RequestID)
}

func TestEvaluateBatch(t *testing.T) {
	app, _ := newApp(t)

	resp := post(t, app, evaluate.BatchPath, evaluate.BatchRequest{
		Context: auth.Context{ActorID: "e1", ActorRole: "editor"},
		Requests: []auth.Request{
			{Action: "products:create"},
			{Action: "workflow:approve"},
			{Action: "products:read", Resource: "products"},
		},
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out evaluate.BatchResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Results, 3)
	assert.True(t, out.Results["products:create"].Granted)
	assert.False(t, out.Results["workflow:approve"].Granted)
}

func TestEvaluateBatch_Empty(t *testing.T) {
	app, _ := newApp(t)

	resp := post(t, app, evaluate.BatchPath, evaluate.BatchRequest{
		Context: auth.Context{ActorID: "e1", ActorRole: "editor"},
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestEffective(t *testing.T) {
	app, engine := newApp(t)

	_, err := engine.Grant("v1", "reports:export", "a1", "quarterly close", grant.Options{})
	require.NoError(t, err)

	testCases := []struct {
		name    string
		body    evaluate.EffectiveRequest
		want    []string
		notWant []string
	}{
		{
			name:    "role only",
			body:    evaluate.EffectiveRequest{Context: auth.Context{ActorID: "v1", ActorRole: "viewer"}},
			notWant: []string{"reports:export"},
		},
		{
			name: "with dynamic grants",
			body: evaluate.EffectiveRequest{Context: auth.Context{ActorID: "v1", ActorRole: "viewer"}, IncludeDynamic: true},
			want: []string{"reports:export"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := post(t, app, evaluate.EffectivePath, tc.body)
			require.Equal(t, fiber.StatusOK, resp.StatusCode)

			var out evaluate.EffectiveResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
			assert.Equal(t, "v1", out.ActorID)
			assert.NotEmpty(t, out.Permissions)

			for _, p := range tc.want {
				assert.Contains(t, out.Permissions, p)
			}

			for _, p := range tc.notWant {
				assert.NotContains(t, out.Permissions, p)
			}
		})
	}
}

func TestEffective_MissingContext(t *testing.T) {
	app, _ := newApp(t)

	resp := post(t, app, evaluate.EffectivePath, evaluate.EffectiveRequest{})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
