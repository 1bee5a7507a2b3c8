package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	CtxClaimsKey = "auth_claims"
	CtxReaderKey = "auth_reader"
)

// Reader is the authenticated profile attached to the request once the
// token checks out. It carries the favorite genres that seed personalized
// discovery, so downstream handlers never re-fetch the user.
type Reader struct {
	UserID         string
	Username       string
	Email          string
	FavoriteGenres []string
}

// AuthMiddleware validates the bearer token and, when a repo is supplied,
// loads the reader profile. The single profile read doubles as the
// revocation check: logout and password changes bump the stored token
// version, which kills every token minted before the bump.
func AuthMiddleware(tokens TokenService, repo *Repo) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" || !strings.HasPrefix(strings.ToLower(h), "bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			c.Abort()
			return
		}

		raw := strings.TrimSpace(h[len("Bearer "):])
		claims, err := tokens.Parse(raw)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		if repo != nil {
			u, err := repo.GetByID(c.Request.Context(), claims.UserID)
			if err != nil || u == nil || u.TokenVersion != claims.TokenVersion {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				c.Abort()
				return
			}
			c.Set(CtxReaderKey, &Reader{
				UserID:         u.ID,
				Username:       u.Username,
				Email:          u.Email,
				FavoriteGenres: u.FavoriteGenres,
			})
		}

		c.Set(CtxClaimsKey, claims)
		c.Next()
	}
}

func MustGetClaims(c *gin.Context) *Claims {
	v, ok := c.Get(CtxClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*Claims)
	return claims
}

// MustGetReader returns the profile loaded by the middleware, or nil when
// the middleware ran without a repo.
func MustGetReader(c *gin.Context) *Reader {
	v, ok := c.Get(CtxReaderKey)
	if !ok {
		return nil
	}
	reader, _ := v.(*Reader)
	return reader
}
