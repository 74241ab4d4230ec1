package rbac

import (
	"testing"

	"github.com/Bradawan/sqtracker/internal/auth"
)

func TestCan(t *testing.T) {
	cases := []struct {
		name     string
		role     Role
		required Role
		allow    bool
	}{
		{name: "user any", role: RoleUser, required: RoleAuthenticated, allow: true},
		{name: "user admin", role: RoleUser, required: RoleAdmin, allow: false},
		{name: "moderator admin", role: RoleModerator, required: RoleAdmin, allow: false},
		{name: "moderator user", role: RoleModerator, required: RoleUser, allow: true},
		{name: "admin admin", role: RoleAdmin, required: RoleAdmin, allow: true},
		{name: "admin any", role: RoleAdmin, required: RoleAuthenticated, allow: true},
		{name: "unknown any", role: Role("ghost"), required: RoleAuthenticated, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.required); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.required, got, tc.allow)
			}
		})
	}
}

func TestAuthorize(t *testing.T) {
	if Authorize(nil, RoleAuthenticated) {
		t.Fatal("nil session must not be authorized")
	}
	admin := &auth.Claims{ID: "1", Role: "admin"}
	user := &auth.Claims{ID: "2", Role: "user"}
	unknown := &auth.Claims{ID: "3", Role: "superuser"}

	if !Authorize(admin, RoleAdmin) {
		t.Fatal("admin must pass admin requirement")
	}
	if Authorize(user, RoleAdmin) {
		t.Fatal("user must not pass admin requirement")
	}
	if !Authorize(user, RoleAuthenticated) {
		t.Fatal("user must pass authenticated requirement")
	}
	if Authorize(unknown, RoleAdmin) {
		t.Fatal("unknown roles normalize to user")
	}
}
