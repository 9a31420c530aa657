package pagination

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type event struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	Kind      string
	CreatedAt time.Time
}

func eventCursor(e event) Cursor { return Cursor{CreatedAt: e.CreatedAt, ID: e.ID} }

func openEvents(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(&event{}))
	return conn
}

func TestCursorTokens(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 123, time.UTC), ID: uuid.New()}
	token := EncodeCursor(in)
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")

	out, err := ParseCursor(token)
	require.NoError(t, err)
	assert.True(t, out.CreatedAt.Equal(in.CreatedAt))
	assert.Equal(t, in.ID, out.ID)

	none, err := ParseCursor("")
	require.NoError(t, err)
	assert.Nil(t, none)

	for _, bad := range []string{"%%%", "bm90LWpzb24", EncodeCursor(Cursor{})} {
		_, err := ParseCursor(bad)
		assert.True(t, errors.Is(err, ErrInvalidCursor), "token %q", bad)
	}
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, MaxLimit, NormalizeLimit(500))
	assert.Equal(t, 10, NormalizeLimit(10))
}

func TestFetchWalksPagesNewestFirst(t *testing.T) {
	conn := openEvents(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	// Two rows share a timestamp so the id tiebreak is exercised.
	rows := []event{
		{ID: uuid.New(), Kind: "payment", CreatedAt: base},
		{ID: uuid.New(), Kind: "payment", CreatedAt: base.Add(time.Minute)},
		{ID: uuid.New(), Kind: "payment", CreatedAt: base.Add(time.Minute)},
		{ID: uuid.New(), Kind: "booking", CreatedAt: base.Add(2 * time.Minute)},
		{ID: uuid.New(), Kind: "payment", CreatedAt: base.Add(3 * time.Minute)},
	}
	require.NoError(t, conn.Create(&rows).Error)

	var seen []uuid.UUID
	params := Params{Limit: 2}
	for pages := 0; ; pages++ {
		require.Less(t, pages, 5, "pagination did not terminate")
		page, err := Fetch(conn.Model(&event{}).Where("kind = ?", "payment"), params, eventCursor)
		require.NoError(t, err)
		for _, e := range page.Items {
			seen = append(seen, e.ID)
		}
		if page.NextCursor == "" {
			break
		}
		params.Cursor = page.NextCursor
	}

	require.Len(t, seen, 4)
	assert.Equal(t, rows[4].ID, seen[0])
	assert.Equal(t, rows[0].ID, seen[3])
	assert.ElementsMatch(t, []uuid.UUID{rows[1].ID, rows[2].ID}, seen[1:3])
}

func TestFetchEmptyAndBadCursor(t *testing.T) {
	conn := openEvents(t)

	page, err := Fetch(conn.Model(&event{}), Params{}, eventCursor)
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.Empty(t, page.NextCursor)

	_, err = Fetch(conn.Model(&event{}), Params{Cursor: "%%%"}, eventCursor)
	assert.ErrorIs(t, err, ErrInvalidCursor)
}
