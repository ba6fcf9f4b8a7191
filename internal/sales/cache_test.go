package sales

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestCacheFetchSalesPopulatesAndServes(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	loads := 0
	loader := func(context.Context) ([]SaleWithItems, error) {
		loads++
		return []SaleWithItems{{Sale: Sale{ID: 7, TotalAmount: 80000}, ClientName: "Mamadou Ba"}}, nil
	}

	first, err := cache.FetchSales(ctx, loader)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Equal(t, 1, loads)

	second, err := cache.FetchSales(ctx, loader)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, loads)
}

func TestCacheInvalidateForcesReload(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	loads := 0
	loader := func(context.Context) ([]SaleWithItems, error) {
		loads++
		return []SaleWithItems{{Sale: Sale{ID: int64(loads)}}}, nil
	}

	_, err := cache.FetchSales(ctx, loader)
	require.NoError(t, err)
	cache.Invalidate(ctx)
	reloaded, err := cache.FetchSales(ctx, loader)
	require.NoError(t, err)
	require.Equal(t, 2, loads)
	require.Equal(t, int64(2), reloaded[0].ID)
}

func TestCacheLoaderErrorPropagates(t *testing.T) {
	cache := newTestCache(t)
	wantErr := errors.New("db down")
	_, err := cache.FetchSales(context.Background(), func(context.Context) ([]SaleWithItems, error) {
		return nil, wantErr
	})
	require.ErrorIs(t, err, wantErr)
}

func TestCacheNilClientFallsThrough(t *testing.T) {
	var cache *Cache
	out, err := cache.FetchSales(context.Background(), func(context.Context) ([]SaleWithItems, error) {
		return []SaleWithItems{{Sale: Sale{ID: 3}}}, nil
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	cache.Invalidate(context.Background())
}
