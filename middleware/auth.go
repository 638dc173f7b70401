package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tuinawx/booking-api/config"
	"github.com/tuinawx/booking-api/models"
	"github.com/tuinawx/booking-api/services"
)

const (
	actorContextKey  = "actor"
	claimsContextKey = "validated_claims"
)

// CustomClaims carries the principal of a mini-program token. A customer token
// sets userId, a technician token sets technicianId.
type CustomClaims struct {
	UserID       uint   `json:"userId,omitempty"`
	TechnicianID uint   `json:"technicianId,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Validate rejects tokens that name no principal or both kinds at once.
func (c CustomClaims) Validate(ctx context.Context) error {
	switch {
	case c.UserID == 0 && c.TechnicianID == 0:
		return errors.New("token names no user or technician")
	case c.UserID != 0 && c.TechnicianID != 0:
		return errors.New("token names both a user and a technician")
	}
	return nil
}

// Actor converts the claims into the service-level caller.
func (c CustomClaims) Actor() services.Actor {
	if c.TechnicianID != 0 {
		return services.TechnicianActor(c.TechnicianID)
	}
	return services.Customer(c.UserID)
}

// HasScope checks whether our claims have a specific scope.
func (c CustomClaims) HasScope(expectedScope string) bool {
	for _, scope := range strings.Fields(c.Scope) {
		if scope == expectedScope {
			return true
		}
	}
	return false
}

// NewTokenValidator builds the HS256 validator for tokens signed with the shared secret.
func NewTokenValidator(cfg *config.Config) (*validator.Validator, error) {
	secret := []byte(cfg.JWTSecret)
	return validator.New(
		func(context.Context) (interface{}, error) {
			return secret, nil
		},
		validator.HS256,
		cfg.JWTIssuer,
		[]string{cfg.JWTAudience},
		validator.WithCustomClaims(
			func() validator.CustomClaims {
				return &CustomClaims{}
			},
		),
		validator.WithAllowedClockSkew(time.Minute),
	)
}

// EnsureValidToken is a middleware that will check the validity of our JWT
// and store the caller as a services.Actor on the context.
func EnsureValidToken(jwtValidator *validator.Validator, logger *zap.Logger) gin.HandlerFunc {
	errorHandler := func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Info("rejected bearer token",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		body, _ := json.Marshal(gin.H{"code": http.StatusUnauthorized, "message": "invalid or missing token", "data": nil})
		if _, writeErr := w.Write(body); writeErr != nil {
			logger.Warn("failed to write error response", zap.Error(writeErr))
		}
	}

	checker := jwtmiddleware.New(
		jwtValidator.ValidateToken,
		jwtmiddleware.WithErrorHandler(errorHandler),
	)

	return func(c *gin.Context) {
		authenticated := false
		var handler http.HandlerFunc = func(w http.ResponseWriter, r *http.Request) {
			token, ok := r.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)
			if !ok {
				return
			}
			claims, ok := token.CustomClaims.(*CustomClaims)
			if !ok {
				return
			}

			authenticated = true
			c.Request = r
			c.Set(claimsContextKey, token)
			c.Set(actorContextKey, claims.Actor())
		}

		checker.CheckJWT(handler).ServeHTTP(c.Writer, c.Request)
		if !authenticated {
			if !c.Writer.Written() {
				errorHandler(c.Writer, c.Request, errors.New("token carries no claims"))
			}
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetActor extracts the authenticated caller from the Gin context
func GetActor(c *gin.Context) (services.Actor, error) {
	value, exists := c.Get(actorContextKey)
	if !exists {
		return services.Actor{}, &AuthError{Code: "MISSING_ACTOR", Message: "Caller not found in context"}
	}

	actor, ok := value.(services.Actor)
	if !ok {
		return services.Actor{}, &AuthError{Code: "INVALID_ACTOR", Message: "Caller is not in the expected format"}
	}

	return actor, nil
}

// SetActor stores the caller on the context (used by tests and internal callers)
func SetActor(c *gin.Context, actor services.Actor) {
	c.Set(actorContextKey, actor)
}

// GetClaims extracts the validated JWT claims from the Gin context
func GetClaims(c *gin.Context) (*validator.ValidatedClaims, error) {
	claims, exists := c.Get(claimsContextKey)
	if !exists {
		return nil, &AuthError{Code: "MISSING_CLAIMS", Message: "Claims not found in context"}
	}

	validatedClaims, ok := claims.(*validator.ValidatedClaims)
	if !ok {
		return nil, &AuthError{Code: "INVALID_CLAIMS", Message: "Claims are not in the expected format"}
	}

	return validatedClaims, nil
}

// RequireRole is a middleware that answers 401 without a caller and 403 for
// callers of any other role
func RequireRole(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := GetActor(c)
		if err != nil || actor.ID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    http.StatusUnauthorized,
				"message": "unauthenticated",
				"data":    nil,
			})
			return
		}
		if actor.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    http.StatusForbidden,
				"message": "a " + string(role) + " account is required",
				"data":    nil,
			})
			return
		}

		c.Next()
	}
}

// AuthError represents an authentication error
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}
