package reviews

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novelhub/internal/novels"
	"novelhub/pkg/database"
	"novelhub/pkg/models"
)

func newRepoFixture(t *testing.T) (*Repo, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(db))
	require.NoError(t, novels.NewRepo(db).Upsert(context.Background(), models.NovelDB{
		ID: "n1", Title: "Emberfall", Genres: []string{"fantasy"},
	}))
	return NewRepo(db), db
}

func TestCreateAndListReviews(t *testing.T) {
	repo, _ := newRepoFixture(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, "u1", "n1", 5, "gripping")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "u1", created.UserID)
	assert.Equal(t, "n1", created.NovelID)
	assert.Equal(t, 5, created.Rating)
	assert.Equal(t, "gripping", created.Text)
	assert.False(t, created.Timestamp.IsZero())

	_, err = repo.Create(ctx, "u2", "n1", 3, "")
	require.NoError(t, err)

	list, err := repo.ListByNovel(ctx, "n1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestDeleteReviewOwnership(t *testing.T) {
	repo, _ := newRepoFixture(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, "u1", "n1", 4, "")
	require.NoError(t, err)

	// another user can't delete it
	ok, err := repo.Delete(ctx, created.ID, "u2")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Delete(ctx, created.ID, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	gone, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestRefreshNovelStats(t *testing.T) {
	repo, db := newRepoFixture(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, "u1", "n1", 5, "")
	require.NoError(t, err)
	_, err = repo.Create(ctx, "u2", "n1", 2, "")
	require.NoError(t, err)

	require.NoError(t, repo.RefreshNovelStats(ctx, "n1"))

	var rating float64
	var count int
	require.NoError(t, db.QueryRowContext(ctx, `
		SELECT rating, review_count FROM novels WHERE id = 'n1'
	`).Scan(&rating, &count))

	assert.Equal(t, 2, count)
	assert.InDelta(t, 3.5, rating, 0.001)

	// removing the last reviews resets the denormalized columns
	_, err = db.ExecContext(ctx, `DELETE FROM reviews WHERE novel_id = 'n1'`)
	require.NoError(t, err)
	require.NoError(t, repo.RefreshNovelStats(ctx, "n1"))

	require.NoError(t, db.QueryRowContext(ctx, `
		SELECT rating, review_count FROM novels WHERE id = 'n1'
	`).Scan(&rating, &count))
	assert.Zero(t, count)
	assert.Zero(t, rating)
}
