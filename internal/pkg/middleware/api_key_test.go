package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIKeyAuthMiddleware(t *testing.T) {
	newApp := func(key string) *fiber.App {
		app := fiber.New()
		app.Get("/", APIKeyAuthMiddleware(key), func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusNoContent)
		})
		return app
	}

	tests := []struct {
		name    string
		key     string
		headers map[string]string
		want    int
	}{
		{"header", "s3cret", map[string]string{"X-API-Key": "s3cret"}, fiber.StatusNoContent},
		{"bearer", "s3cret", map[string]string{"Authorization": "Bearer s3cret"}, fiber.StatusNoContent},
		{"missing", "s3cret", nil, fiber.StatusUnauthorized},
		{"wrong", "s3cret", map[string]string{"X-API-Key": "nope"}, fiber.StatusUnauthorized},
		{"prefix of key", "s3cret", map[string]string{"X-API-Key": "s3c"}, fiber.StatusUnauthorized},
		{"disabled", "", map[string]string{"X-API-Key": "anything"}, fiber.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			resp, err := newApp(tt.key).Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
