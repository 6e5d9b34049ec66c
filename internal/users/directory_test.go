package users

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLDirectoryCachesNames(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT name FROM users WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Alice"))

	dir, err := NewSQLDirectory(db, 16)
	require.NoError(t, err)

	ctx := context.Background()
	assert.Equal(t, "Alice", dir.DisplayName(ctx, "u1"))
	// second lookup is served from the cache; no further query is expected
	assert.Equal(t, "Alice", dir.DisplayName(ctx, "u1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLDirectoryFallsBackToID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT name FROM users`).WithArgs("ghost").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT name FROM users`).WithArgs("ghost").WillReturnError(errors.New("conn reset"))

	dir, err := NewSQLDirectory(db, 16)
	require.NoError(t, err)

	ctx := context.Background()
	assert.Equal(t, "ghost", dir.DisplayName(ctx, "ghost"))
	assert.Equal(t, "ghost", dir.DisplayName(ctx, "ghost"))
	assert.Equal(t, "", dir.DisplayName(ctx, ""))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStaticDirectory(t *testing.T) {
	dir := StaticDirectory{"u1": "Alice"}
	assert.Equal(t, "Alice", dir.DisplayName(context.Background(), "u1"))
	assert.Equal(t, "u2", dir.DisplayName(context.Background(), "u2"))
}
