package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lessonforge/lessonforge-backend/internal/logger"
)

const (
	ctxKeyOrgID   = "org_id"
	ctxKeyActorID = "actor_id"
)

type AuthMiddleware struct {
	log    *logger.Logger
	secret []byte
}

func NewAuthMiddleware(log *logger.Logger, secret string) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("Middleware", "AuthMiddleware"), secret: []byte(secret)}
}

type authClaims struct {
	OrgID   string `json:"org_id"`
	ActorID string `json:"actor_id"`
	jwt.RegisteredClaims
}

// RequireAuth validates the bearer token and stashes the caller's
// organization and actor ids on the request context. Every scoped route reads
// them through OrgID/ActorID.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		claims := &authClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return am.secret, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		orgID, err := uuid.Parse(claims.OrgID)
		if err != nil || orgID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token missing org_id"})
			return
		}
		actorID, err := uuid.Parse(claims.ActorID)
		if err != nil || actorID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token missing actor_id"})
			return
		}
		c.Set(ctxKeyOrgID, orgID)
		c.Set(ctxKeyActorID, actorID)
		c.Next()
	}
}

// OrgID returns the authenticated organization id, or uuid.Nil outside an
// authenticated request.
func OrgID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(ctxKeyOrgID); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

func ActorID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(ctxKeyActorID); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

func extractToken(c *gin.Context) string {
	// SSE clients cannot set headers from EventSource; they pass the token in
	// the query string.
	if qToken := c.Query("token"); qToken != "" {
		return qToken
	}
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}
