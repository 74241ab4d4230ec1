package rbac

import "github.com/Bradawan/sqtracker/internal/auth"

type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"

	// RoleAuthenticated is a requirement, not a role a token can carry:
	// any verified session satisfies it.
	RoleAuthenticated Role = "*"
)

func rank(role Role) int {
	switch role {
	case RoleAdmin:
		return 3
	case RoleModerator:
		return 2
	case RoleUser:
		return 1
	default:
		return 0
	}
}

// Can reports whether role meets required.
func Can(role Role, required Role) bool {
	if required == RoleAuthenticated {
		return rank(role) > 0
	}
	if required == RoleAdmin {
		return role == RoleAdmin
	}
	return rank(role) >= rank(required) && rank(required) > 0
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleUser, RoleModerator, RoleAdmin:
		return Role(role)
	default:
		return RoleUser
	}
}

// Authorize decides whether the resolved session may proceed. A nil session never may.
func Authorize(claims *auth.Claims, required Role) bool {
	if claims == nil {
		return false
	}
	return Can(Normalize(claims.Role), required)
}
