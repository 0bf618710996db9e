package rider

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/pashagolub/pgxmock/v3"
)

func newApp(svc *Service) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app.Group("/riders"), svc, func(c *fiber.Ctx) error {
		c.Locals("user_id", "ann")
		return c.Next()
	})
	return app
}

func TestPreferencesRoutes(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`UPDATE users`).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`FROM users WHERE id=\$1`).
		WithArgs("ann").
		WillReturnRows(pgxmock.NewRows([]string{"enabled", "local", "cancel", "msgs", "dms", "radius", "lat", "lng"}).
			AddRow(true, true, true, true, true, f64(10), nil, nil))

	app := newApp(NewService(mock))

	req := httptest.NewRequest(http.MethodPut, "/riders/me/preferences", bytes.NewReader([]byte(`{"notifications_enabled":true,"radius_miles":10,"lat":33.8,"lng":-84.6}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("put status: %v %d", err, resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/riders/me/preferences", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("get status: %v %d", err, resp.StatusCode)
	}
}

func TestPreferencesRequiresBothCoordinates(t *testing.T) {
	app := newApp(NewService(nil))
	for _, body := range []string{`{"lat":33.8}`, `{"lat":33.8,"lng":-200}`} {
		req := httptest.NewRequest(http.MethodPut, "/riders/me/preferences", bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, resp.StatusCode)
		}
	}
}
