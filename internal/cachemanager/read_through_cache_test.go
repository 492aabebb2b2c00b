package cachemanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReadThroughCache_Get_FillsOnMiss(t *testing.T) {
	ctx := context.Background()
	calls := 0
	rt := NewReadThroughCache[moduleKey, string, string](newTestCache[string](), func(_ context.Context, in string) (string, error) {
		calls++
		return "loaded:" + in, nil
	}, false)

	v, err := rt.Get(ctx, "k", "apollo", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "loaded:apollo", v)

	v, err = rt.Get(ctx, "k", "ignored", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "loaded:apollo", v)
	require.Equal(t, 1, calls)
}

func TestReadThroughCache_Get_SkipCache(t *testing.T) {
	ctx := context.Background()
	calls := 0
	rt := NewReadThroughCache[moduleKey, int, struct{}](newTestCache[int](), func(context.Context, struct{}) (int, error) {
		calls++
		return calls, nil
	}, true)

	_, _ = rt.Get(ctx, "k", struct{}{}, time.Minute)
	v, err := rt.Get(ctx, "k", struct{}{}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestReadThroughCache_Get_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	fail := true
	rt := NewReadThroughCache[moduleKey, int, struct{}](newTestCache[int](), func(context.Context, struct{}) (int, error) {
		if fail {
			return 0, errors.New("boom")
		}
		return 42, nil
	}, false)

	_, err := rt.Get(ctx, "k", struct{}{}, time.Minute)
	require.Error(t, err)

	fail = false
	v, err := rt.Get(ctx, "k", struct{}{}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestReadThroughCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	calls := 0
	rt := NewReadThroughCache[moduleKey, int, struct{}](newTestCache[int](), func(context.Context, struct{}) (int, error) {
		calls++
		return calls, nil
	}, false)

	_, _ = rt.Get(ctx, "k", struct{}{}, time.Minute)
	_, _ = rt.Get(ctx, "other", struct{}{}, time.Minute)
	dropped, err := rt.Invalidate(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, dropped)

	v, err := rt.Get(ctx, "k", struct{}{}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, v)
}
