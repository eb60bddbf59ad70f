package server

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/ambassador/internal/authorization"
	obslogger "github.com/smallbiznis/ambassador/internal/observability/logger"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const contextActorKey = "admin_actor"

type adminKey struct {
	subject string
	role    string
	hash    []byte
}

// parseAdminKeys reads ADMIN_API_KEY_HASHES entries. An entry is a bcrypt hash,
// optionally prefixed with "<role>=". Keys without a role are admins.
func parseAdminKeys(entries []string) ([]adminKey, error) {
	keys := make([]adminKey, 0, len(entries))
	for i, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		role := authorization.RoleAdmin
		if prefix, hash, ok := strings.Cut(entry, "="); ok {
			role = strings.ToLower(strings.TrimSpace(prefix))
			entry = strings.TrimSpace(hash)
		}
		if _, err := bcrypt.Cost([]byte(entry)); err != nil {
			return nil, fmt.Errorf("admin api key %d: %w", i, err)
		}
		keys = append(keys, adminKey{
			subject: fmt.Sprintf("api_key:%d", i),
			role:    role,
			hash:    []byte(entry),
		})
	}
	return keys, nil
}

// AdminKeyRequired authenticates a bearer API key against the configured
// bcrypt hashes.
func (s *Server) AdminKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		secret := []byte(parts[1])
		for _, key := range s.adminKeys {
			if bcrypt.CompareHashAndPassword(key.hash, secret) == nil {
				c.Set(contextActorKey, key.subject)
				c.Next()
				return
			}
		}

		obslogger.FromContext(c.Request.Context()).Warn("admin api key rejected",
			zap.String("route", c.FullPath()),
		)
		AbortWithError(c, ErrUnauthorized)
	}
}

func (s *Server) authorizeAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := c.GetString(contextActorKey)
		if actor == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), actor, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
