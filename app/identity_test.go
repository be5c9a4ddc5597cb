package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/night131rd/referensiku.ai-sub000/app/models"
	"github.com/night131rd/referensiku.ai-sub000/auth"

	"github.com/gin-gonic/gin"
)

func resolveWith(t *testing.T, prepare func(*http.Request), wrap func(*gin.Context)) (models.Identity, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	var id models.Identity
	r := gin.New()
	r.GET("/probe", func(c *gin.Context) {
		if wrap != nil {
			wrap(c)
		}
		id = ResolveIdentity(c)
		c.Status(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	if prepare != nil {
		prepare(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return id, w
}

func TestResolveIdentityAnonymousHeader(t *testing.T) {
	withMemStore(t, newMemStore())
	id, w := resolveWith(t, func(req *http.Request) {
		req.Header.Set("X-Anonymous-ID", "anon_existing")
	}, nil)
	if id.Kind != models.IdentityAnonymous || id.Key != "anon_existing" {
		t.Fatalf("identity = %+v", id)
	}
	// An existing token is not echoed back; only minted ones are.
	if got := w.Header().Get("X-Anonymous-ID"); got != "" {
		t.Fatalf("response header = %q, want empty", got)
	}
}

func TestResolveIdentityMints(t *testing.T) {
	ms := newMemStore()
	withMemStore(t, ms)
	id, w := resolveWith(t, nil, nil)
	if id.Kind != models.IdentityAnonymous {
		t.Fatalf("identity = %+v", id)
	}
	if !strings.HasPrefix(id.Key, "anon_") {
		t.Fatalf("minted token = %q, want anon_ prefix", id.Key)
	}
	if got := w.Header().Get("X-Anonymous-ID"); got != id.Key {
		t.Fatalf("response header = %q, want %q", got, id.Key)
	}
	// The guest record exists before the token reaches the client.
	if _, ok := ms.anonymous[id.Key]; !ok {
		t.Fatal("quota record not seeded for minted token")
	}
}

func TestResolveIdentityClaimsWin(t *testing.T) {
	withMemStore(t, newMemStore())
	id, _ := resolveWith(t, func(req *http.Request) {
		req.Header.Set("X-Anonymous-ID", "anon_ignored")
	}, func(c *gin.Context) {
		ctx := auth.WithClaims(c.Request.Context(), &auth.Claims{Subject: "user-77"})
		c.Request = c.Request.WithContext(ctx)
	})
	if id.Kind != models.IdentityAuthenticated || id.Key != "user-77" {
		t.Fatalf("identity = %+v, verified session must win", id)
	}
}

func TestEnsureProfile(t *testing.T) {
	ms := newMemStore()
	withMemStore(t, ms)
	if err := EnsureProfile(context.Background(), &auth.Claims{Subject: "user-88"}); err != nil {
		t.Fatalf("EnsureProfile: %v", err)
	}
	rec, ok := ms.profiles["user-88"]
	if !ok {
		t.Fatal("profile row not created")
	}
	if rec.Role != models.RoleFree || rec.Remaining != models.FreeQuota {
		t.Fatalf("profile = %+v, want free with full allowance", rec)
	}

	if err := EnsureProfile(context.Background(), nil); err != nil {
		t.Fatalf("nil claims: %v", err)
	}
}
