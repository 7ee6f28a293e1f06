package tgui

import (
	"testing"
	"time"
)

func TestTokenStoreTakeConsumes(t *testing.T) {
	t.Parallel()
	s := NewTokenStore[string](time.Minute, 10)
	tok := s.Put("x")
	if v, ok := s.Take(tok); !ok || v != "x" {
		t.Fatalf("take = %q %v, want \"x\" true", v, ok)
	}
	if _, ok := s.Take(tok); ok {
		t.Fatal("token survived a take")
	}
}

func TestTokenStoreEvictionSparesNewest(t *testing.T) {
	t.Parallel()
	s := NewTokenStore[int](time.Minute, 3)
	for i := 0; i < 10; i++ {
		tok := s.Put(i)
		// The token just handed out has to stay resolvable even when
		// issuing it pushed the store over its cap.
		if v, ok := s.Get(tok); !ok || v != i {
			t.Fatalf("put %d: token evicted immediately (got %d %v)", i, v, ok)
		}
		if len(s.m) > 3 {
			t.Fatalf("put %d: store holds %d entries, cap 3", i, len(s.m))
		}
	}
}
