package postgis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1F47E/go-proximity/pkg/models"
)

// openTestStore connects to PROXIMITY_TEST_POSTGIS_DSN or skips
func openTestStore(t *testing.T) *StopStore {
	t.Helper()
	dsn := os.Getenv("PROXIMITY_TEST_POSTGIS_DSN")
	if dsn == "" {
		t.Skip("PROXIMITY_TEST_POSTGIS_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.InitSchema(ctx))
	_, err = store.db.ExecContext(ctx, "TRUNCATE stops")
	require.NoError(t, err)
	return store
}

func TestStopStore(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	stops := []models.Stop{
		{ID: "alderman", Name: "Alderman Library", Lat: 38.0365, Lon: -78.5053, Routes: []string{"gold"}},
		{ID: "downtown", Name: "Downtown Mall", Lat: 38.0293, Lon: -78.4767},
		{ID: "richmond", Name: "Main Street Station", Lat: 37.5326, Lon: -77.4294},
	}
	require.NoError(t, store.UpsertStops(ctx, stops))

	// upsert replaces by id
	stops[0].Name = "Alderman"
	require.NoError(t, store.UpsertStops(ctx, stops[:1]))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	inRegion, err := store.StopsInRegion(ctx, models.BoundingBox{North: 38.1, South: 37.9, East: -78.4, West: -78.6})
	require.NoError(t, err)
	require.Len(t, inRegion, 2)
	assert.Equal(t, "Alderman", inRegion[0].Name)
	assert.Equal(t, []string{"gold"}, inRegion[0].Routes)
	assert.Nil(t, inRegion[1].Routes)

	near, err := store.StopsNear(ctx, models.Coordinate{Lat: 38.0336, Lon: -78.5080}, 500)
	require.NoError(t, err)
	require.Len(t, near, 1)
	assert.Equal(t, "alderman", near[0].ID)
}

func TestOpenBadDSN(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := Open(ctx, "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1")
	assert.Error(t, err)
}
