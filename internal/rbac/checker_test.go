package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChecker_Has(t *testing.T) {
	c := NewChecker(map[string][]string{
		"student": {"sitting:take"},
		"editor":  {"catalog:*"},
		"admin":   {"*"},
	})
	cases := []struct {
		role, perm string
		want       bool
	}{
		{"student", "sitting:take", true},
		{"student", "catalog:edit", false},
		{"editor", "catalog:edit", true},
		{"editor", "sitting:take", false},
		{"admin", "anything", true},
		{"ghost", "sitting:take", false},
	}
	for _, tc := range cases {
		if got := c.Has(tc.role, tc.perm); got != tc.want {
			t.Fatalf("Has(%q,%q) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
}

func TestRequire(t *testing.T) {
	h := Require("catalog:edit")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for role, want := range map[string]int{"teacher": 200, "student": 403, "": 403, "admin": 200} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/quizzes", nil)
		req = req.WithContext(WithRole(context.Background(), role))
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("role %q: expected %d, got %d", role, want, rec.Code)
		}
	}
}
