package middleware

import (
	"caseprep_backend/internal/config"
	"caseprep_backend/internal/model"
	"caseprep_backend/internal/util"
	"caseprep_backend/pkg/logger"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func AuthMiddleware(cfg *config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}

		if tokenString == "" {
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		claims, err := util.ParseJWT(tokenString, cfg.Secret)
		if err != nil {
			logger.Log.Debug("JWT rejected", zap.Error(err))
			util.Unauthorized(c)
			c.Abort()
			return
		}

		c.Set("user", claims)
		c.Next()
	}
}

func RoleMiddleware(roles ...model.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := util.GetUserFromContext(c)
		if user == nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		hasRole := false
		for _, role := range roles {
			// admins pass every role check
			if user.Role == model.Admin || user.Role == role {
				hasRole = true
				break
			}
		}

		if !hasRole {
			util.Forbidden(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

// UserEnsurer creates the user row for a principal that has not been seen yet.
type UserEnsurer interface {
	EnsureUser(ctx context.Context, claims *util.Claims) error
}

// UserSyncMiddleware makes sure every authenticated principal has a users row.
// Known ids are remembered so the insert is attempted once per process.
func UserSyncMiddleware(ensurer UserEnsurer) gin.HandlerFunc {
	var seen sync.Map
	return func(c *gin.Context) {
		claims := util.GetUserFromContext(c)
		if claims == nil {
			c.Next()
			return
		}
		if _, ok := seen.Load(claims.UserID); !ok {
			if err := ensurer.EnsureUser(c.Request.Context(), claims); err != nil {
				util.LogInternalError(c, err)
				c.Abort()
				return
			}
			seen.Store(claims.UserID, struct{}{})
		}
		c.Next()
	}
}

type UserActivityRepo interface {
	TouchLastSeen(ctx context.Context, userID string) error
}

func ActivityMiddleware(repo UserActivityRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := util.GetUserFromContext(c)
		if claims != nil {
			userID := claims.UserID
			// async, must not block the request
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := repo.TouchLastSeen(ctx, userID); err != nil {
					logger.Log.Debug("Last seen update failed", zap.String("userID", userID), zap.Error(err))
				}
			}()
		}
		c.Next()
	}
}
