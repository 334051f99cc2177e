package server

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/wanderparty/tripchat/pkg/internal/models"
)

// sessionClaims is what the authentication collaborator puts into the
// bearer token; it supplies attribution for every event this user emits.
type sessionClaims struct {
	jwt.RegisteredClaims

	Name     string `json:"name"`
	PhotoURL string `json:"photo_url,omitempty"`
	Role     string `json:"role,omitempty"`
}

func authMiddleware(c *fiber.Ctx) error {
	token := c.Query("tk")
	if len(token) == 0 {
		authorization := c.Get(fiber.HeaderAuthorization)
		token = strings.TrimPrefix(authorization, "Bearer ")
	}
	if len(token) == 0 {
		return fiber.NewError(fiber.StatusUnauthorized, "missing credentials")
	}

	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(viper.GetString("security.secret")), nil
	})
	if err != nil || !parsed.Valid {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}

	role := claims.Role
	if len(role) == 0 {
		role = models.RoleMember
	}

	c.Locals("principal", models.Account{
		UserID:   claims.Subject,
		UserName: claims.Name,
		PhotoURL: claims.PhotoURL,
		Role:     role,
	})

	return c.Next()
}
