package gateway

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"market_engine/internal/domain"
	"market_engine/internal/infra/cache"
)

func TestCached_ServesRepeatFetchesFromCache(t *testing.T) {
	var calls atomic.Int32
	upstream := Func(func(ctx context.Context, req Request) (Payload, error) {
		calls.Add(1)
		return Payload{Kind: req.Kind, News: []domain.NewsItem{{ID: "n1", Title: "t"}}}, nil
	})
	g := NewCached(upstream, cache.NewTTLCache(), time.Minute, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p, err := g.Fetch(ctx, Request{Kind: KindNews, Limit: 5})
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		if len(p.News) != 1 || p.News[0].ID != "n1" {
			t.Fatalf("unexpected payload %+v", p)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1", calls.Load())
	}

	t.Run("different limit is a different entry", func(t *testing.T) {
		_, _ = g.Fetch(ctx, Request{Kind: KindNews, Limit: 10})
		if calls.Load() != 2 {
			t.Errorf("upstream calls = %d, want 2", calls.Load())
		}
	})
}

func TestCached_PassesThroughOtherKinds(t *testing.T) {
	var calls atomic.Int32
	upstream := Func(func(ctx context.Context, req Request) (Payload, error) {
		calls.Add(1)
		return Payload{Kind: req.Kind}, nil
	})
	g := NewCached(upstream, cache.NewTTLCache(), time.Minute, nil)

	for i := 0; i < 3; i++ {
		_, _ = g.Fetch(context.Background(), Request{Kind: KindInstruments})
	}
	if calls.Load() != 3 {
		t.Errorf("upstream calls = %d, want 3", calls.Load())
	}
}

func TestCached_ErrorsAreNotCached(t *testing.T) {
	var calls atomic.Int32
	upstream := Func(func(ctx context.Context, req Request) (Payload, error) {
		if calls.Add(1) == 1 {
			return Payload{}, errors.New("down")
		}
		return Payload{Kind: req.Kind}, nil
	})
	g := NewCached(upstream, cache.NewTTLCache(), time.Minute, nil)

	if _, err := g.Fetch(context.Background(), Request{Kind: KindEducation}); err == nil {
		t.Fatal("expected first fetch to fail")
	}
	if _, err := g.Fetch(context.Background(), Request{Kind: KindEducation}); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("upstream calls = %d, want 2", calls.Load())
	}
}
