package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/arklim/moodwell/internal/core/domain"
	"github.com/arklim/moodwell/internal/usecase"
)

type fakeParser struct {
	subject domain.TokenSubject
	err     error
	seen    string
}

func (f *fakeParser) ParseAccessToken(token string) (domain.TokenSubject, error) {
	f.seen = token
	return f.subject, f.err
}

func serveMe(t *testing.T, parser *fakeParser, header string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var principalID string
	router := gin.New()
	router.Use(EnrichContext())
	router.GET("/me", RequireAccessToken(parser), func(c *gin.Context) {
		principalID, _ = GetPrincipalID(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr, principalID
}

func TestRequireAccessTokenAcceptsBearer(t *testing.T) {
	parser := &fakeParser{subject: domain.TokenSubject{PrincipalID: "principal-1"}}

	rr, principalID := serveMe(t, parser, "bearer abc.def.ghi")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if parser.seen != "abc.def.ghi" || principalID != "principal-1" {
		t.Fatalf("unexpected token %q principal %q", parser.seen, principalID)
	}
}

func TestRequireAccessTokenStatuses(t *testing.T) {
	cases := []struct {
		name   string
		header string
		err    error
		status int
		kind   string
	}{
		{name: "missing header", header: "", status: http.StatusUnauthorized, kind: "Unauthorized"},
		{name: "wrong scheme", header: "Basic Zm9vOmJhcg==", status: http.StatusUnauthorized, kind: "Unauthorized"},
		{name: "empty token", header: "Bearer   ", status: http.StatusUnauthorized, kind: "Unauthorized"},
		{name: "expired", header: "Bearer t", err: fmt.Errorf("verify: %w", usecase.ErrExpiredAccessToken), status: http.StatusUnauthorized, kind: "Unauthorized"},
		{name: "invalid", header: "Bearer t", err: usecase.ErrInvalidAccessToken, status: http.StatusForbidden, kind: "Forbidden"},
		{name: "unexpected", header: "Bearer t", err: errors.New("boom"), status: http.StatusInternalServerError, kind: "StorageError"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr, _ := serveMe(t, &fakeParser{err: tc.err}, tc.header)

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			var body ErrorResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Kind != tc.kind {
				t.Fatalf("expected kind %s, got %s", tc.kind, body.Kind)
			}
		})
	}
}
