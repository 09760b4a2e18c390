package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"testing"

	"cacaowallet/internal/models"
)

func TestGetUserByUsername(t *testing.T) {
	h := newTestHandler(Deps{
		Users: stubUserStore{getByUsernameFn: func(_ context.Context, username string) (models.User, error) {
			if username != "farmer1" {
				return models.User{}, sql.ErrNoRows
			}
			return models.User{ID: "user-1", Username: username, Email: "farmer@example.com"}, nil
		}},
	})
	rr := serve(t, h, http.MethodGet, "/users/username/farmer1", "", "user-2")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr.Body.Bytes())
	if body["id"] != "user-1" {
		t.Fatalf("unexpected body %v", body)
	}
	if _, leaked := body["email"]; leaked {
		t.Fatalf("lookup must not expose email")
	}

	rr = serve(t, h, http.MethodGet, "/users/username/ghost", "", "user-2")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestGetUserByEmailUnescapes(t *testing.T) {
	h := newTestHandler(Deps{
		Users: stubUserStore{getByEmailFn: func(_ context.Context, email string) (models.User, error) {
			if email != "farmer+1@example.com" {
				t.Fatalf("unexpected email %q", email)
			}
			return models.User{ID: "user-1", Username: "farmer1"}, nil
		}},
	})
	rr := serve(t, h, http.MethodGet, "/users/email/farmer%2B1@example.com", "", "user-2")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}
