package requestid_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accessgate/accessgate/internal/web/middleware/requestid"
)

func TestNew(t *testing.T) {
	app := fiber.New()
	app.Use(requestid.New())
	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString(c.Get(fiber.HeaderXRequestID))
	})

	tests := []struct {
		name     string
		incoming string
	}{
		{name: "keeps the caller id", incoming: "req-42"},
		{name: "generates a missing id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(fiber.HeaderXRequestID, tt.incoming)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() {
				_ = resp.Body.Close()
			}()

			got := resp.Header.Get(fiber.HeaderXRequestID)
			if tt.incoming != "" {
				assert.Equal(t, tt.incoming, got)

				return
			}

			_, err = uuid.Parse(got)
			assert.NoError(t, err)
		})
	}
}
