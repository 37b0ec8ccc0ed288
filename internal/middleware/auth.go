package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/agendaclin/booking-api/internal/handler"
	"github.com/agendaclin/booking-api/internal/model"
)

const actorContextKey = "actor"

// Claims is the token payload this subsystem cares about. Issuing and
// refreshing tokens belongs to the auth service; here we only read them.
type Claims struct {
	UserID   string `json:"user_id"`
	ClinicID string `json:"clinic_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type AuthMiddleware struct {
	secret []byte
}

func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(secret)}
}

// Authenticate verifies the bearer token and sets the actor in context
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing authorization header"))
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid authorization format"))
			c.Abort()
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
			return m.secret, nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid token"))
			c.Abort()
			return
		}

		actor, err := claims.actor()
		if err != nil {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid token claims"))
			c.Abort()
			return
		}

		c.Set(actorContextKey, actor)
		c.Next()
	}
}

func (cl *Claims) actor() (model.Actor, error) {
	userID, err := uuid.Parse(cl.UserID)
	if err != nil {
		return model.Actor{}, err
	}
	clinicID, err := uuid.Parse(cl.ClinicID)
	if err != nil {
		return model.Actor{}, err
	}
	return model.Actor{UserID: userID, ClinicID: clinicID, Role: cl.Role}, nil
}

// ActorFrom pulls the authenticated actor out of the gin context.
func ActorFrom(c *gin.Context) (model.Actor, bool) {
	value, ok := c.Get(actorContextKey)
	if !ok {
		return model.Actor{}, false
	}
	actor, ok := value.(model.Actor)
	return actor, ok
}
