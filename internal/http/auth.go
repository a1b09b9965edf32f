package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

const claimsKey = "claims"

var errAuthDisabled = errors.New("auth not configured")

// AuthMiddleware accepts HS256 Bearer tokens signed with secret. With an
// empty secret every protected request is rejected.
func AuthMiddleware(secret string, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := verifyBearer(c.GetHeader("Authorization"), secret)
		if err != nil {
			log.Warn().
				Err(err).
				Str("path", c.FullPath()).
				Str("client_ip", c.ClientIP()).
				Msg("unauthorized request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized"))
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

func verifyBearer(header, secret string) (jwt.MapClaims, error) {
	if secret == "" {
		return nil, errAuthDisabled
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, errors.New("authorization header is missing or malformed")
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// subject returns the token subject for audit logs.
func subject(c *gin.Context) string {
	v, ok := c.Get(claimsKey)
	if !ok {
		return ""
	}
	claims, ok := v.(jwt.MapClaims)
	if !ok {
		return ""
	}
	sub, _ := claims.GetSubject()
	return sub
}
