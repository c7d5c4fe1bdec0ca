package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/recruitment-go-api/internal/utils"
)

// Roles carried in the token role claim.
const (
	RoleCandidate = "candidate"
	RoleAdmin     = "admin"
	RoleHR        = "hr"
	RoleRecruiter = "recruiter"
)

// ReviewerRoles may decide stages and inspect sessions.
var ReviewerRoles = []string{RoleAdmin, RoleHR, RoleRecruiter}

// IsReviewer reports whether role belongs to the reviewer group.
func IsReviewer(role string) bool {
	role = normalizeRoleValue(role)
	for _, allowed := range ReviewerRoles {
		if role == allowed {
			return true
		}
	}
	return false
}

// RequireRole ensures that the authenticated user possesses one of the allowed roles.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if normalized := normalizeRoleValue(role); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		if _, ok := allowed[UserRole(c)]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}

func normalizeRoleValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case fmt.Stringer:
		return strings.ToLower(strings.TrimSpace(v.String()))
	default:
		return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", value)))
	}
}
