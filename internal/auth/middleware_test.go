package auth

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novelhub/pkg/database"
)

func newMiddlewareFixture(t *testing.T) (*gin.Engine, *Repo, TokenService) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db))

	repo := NewRepo(db)
	tokens := TokenService{
		Secret:   []byte("test-secret"),
		Issuer:   "novelhub",
		Duration: time.Hour,
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/genres", AuthMiddleware(tokens, repo), func(c *gin.Context) {
		reader := MustGetReader(c)
		require.NotNil(t, reader)
		c.JSON(http.StatusOK, gin.H{
			"user_id": reader.UserID,
			"genres":  reader.FavoriteGenres,
		})
	})
	return router, repo, tokens
}

func doGet(router *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/genres", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddlewareAttachesReaderProfile(t *testing.T) {
	router, repo, tokens := newMiddlewareFixture(t)

	u := User{
		ID:             "u1",
		Username:       "alice",
		Email:          "alice@example.com",
		PasswordHash:   "x",
		FavoriteGenres: []string{"horror", "mystery"},
	}
	require.NoError(t, repo.CreateUser(context.Background(), u))

	token, _, err := tokens.Sign(&u)
	require.NoError(t, err)

	w := doGet(router, token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "horror")
	assert.Contains(t, w.Body.String(), "mystery")
	assert.Contains(t, w.Body.String(), `"user_id":"u1"`)
}

func TestAuthMiddlewareRejectsBumpedTokenVersion(t *testing.T) {
	router, repo, tokens := newMiddlewareFixture(t)

	u := User{ID: "u2", Username: "bob", Email: "bob@example.com", PasswordHash: "x"}
	require.NoError(t, repo.CreateUser(context.Background(), u))

	token, _, err := tokens.Sign(&u)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, doGet(router, token).Code)

	// logout bumps the stored version; tokens minted before are dead
	require.NoError(t, repo.BumpTokenVersion(context.Background(), u.ID))
	assert.Equal(t, http.StatusUnauthorized, doGet(router, token).Code)
}

func TestAuthMiddlewareRejectsMissingOrGarbageToken(t *testing.T) {
	router, _, _ := newMiddlewareFixture(t)

	assert.Equal(t, http.StatusUnauthorized, doGet(router, "").Code)
	assert.Equal(t, http.StatusUnauthorized, doGet(router, "not.a.jwt").Code)

	req := httptest.NewRequest(http.MethodGet, "/genres", nil)
	req.Header.Set("Authorization", "Basic "+strings.Repeat("a", 16))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
