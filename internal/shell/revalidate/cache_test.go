package revalidate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/artpar/pagehost/internal/core/domain"
	"github.com/artpar/pagehost/internal/shell/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingLoader(calls *int32) Loader {
	return func(ctx context.Context, slug string) (*Payload, error) {
		atomic.AddInt32(calls, 1)
		return &Payload{LandingPage: &domain.Page{Slug: slug}}, nil
	}
}

func TestCache_HitAfterMiss(t *testing.T) {
	var calls int32
	c := New(4, countingLoader(&calls), nil)

	p, err := c.Get(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", p.LandingPage.Slug)

	_, err = c.Get(context.Background(), "/acme")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, c.Len())
}

func TestCache_Invalidate(t *testing.T) {
	var calls int32
	c := New(4, countingLoader(&calls), nil)
	ctx := context.Background()

	_, err := c.Get(ctx, "acme")
	require.NoError(t, err)

	c.Invalidate("/acme", "", "/")
	assert.Equal(t, 0, c.Len())

	_, err = c.Get(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	var calls int32
	c := New(2, countingLoader(&calls), nil)
	ctx := context.Background()

	for _, slug := range []string{"a", "b", "a", "c"} {
		_, err := c.Get(ctx, slug)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	// "a" was used after "b", so "b" was evicted.
	_, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	_, err = c.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	var calls int32
	boom := errors.New("boom")
	c := New(2, func(ctx context.Context, slug string) (*Payload, error) {
		atomic.AddInt32(&calls, 1)
		return nil, boom
	}, nil)

	_, err := c.Get(context.Background(), "acme")
	assert.ErrorIs(t, err, boom)
	_, err = c.Get(context.Background(), "acme")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, 0, c.Len())
}

func TestCache_InvalidateDuringLoadIsNotStored(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	c := New(2, func(ctx context.Context, slug string) (*Payload, error) {
		close(started)
		<-release
		return &Payload{LandingPage: &domain.Page{Slug: slug}}, nil
	}, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := c.Get(context.Background(), "acme")
		assert.NoError(t, err)
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("loader never started")
	}
	c.Invalidate("/acme")
	close(release)
	wg.Wait()

	assert.Equal(t, 0, c.Len())
}

func TestCache_LoadOutlivesCancelledCaller(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	c := New(2, func(ctx context.Context, slug string) (*Payload, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &Payload{LandingPage: &domain.Page{Slug: slug}}, nil
	}, nil)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Get(firstCtx, "acme")
		firstErr <- err
	}()
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("loader never started")
	}

	second := make(chan *Payload, 1)
	go func() {
		p, err := c.Get(context.Background(), "acme")
		assert.NoError(t, err)
		second <- p
	}()

	// The first visitor goes away mid-load.
	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	select {
	case p := <-second:
		require.NotNil(t, p)
		assert.Equal(t, "acme", p.LandingPage.Slug)
	case <-time.After(time.Second):
		t.Fatal("second caller never got the payload")
	}
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, 1, c.Len())
}

func TestCache_LoadTimeout(t *testing.T) {
	c := New(2, func(ctx context.Context, slug string) (*Payload, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, nil)
	c.loadTimeout = 10 * time.Millisecond

	_, err := c.Get(context.Background(), "acme")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, c.Len())
}

func TestStoreLoader(t *testing.T) {
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	page, err := domain.NewPage("user_1", "acme", "Acme")
	require.NoError(t, err)
	require.NoError(t, s.CreatePage(ctx, page))
	section, err := domain.NewSection(page.ID, "hero", nil, 0)
	require.NoError(t, err)
	require.NoError(t, s.CreateSection(ctx, section))

	load := StoreLoader(s)

	payload, err := load(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, page.ID, payload.LandingPage.ID)
	require.Len(t, payload.Sections, 1)
	assert.Equal(t, "hero", payload.Sections[0].Type)

	_, err = load(ctx, "missing")
	assert.ErrorIs(t, err, ErrPageNotFound)
}

func TestPath(t *testing.T) {
	assert.Equal(t, "/acme", Path("acme"))
	assert.Equal(t, "/acme", Path("/acme"))
}
