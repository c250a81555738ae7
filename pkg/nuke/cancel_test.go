package nuke

import (
	"sync"
	"testing"
)

func TestTokenSourceHandlersRunInOrder(t *testing.T) {
	src := NewTokenSource()
	token := src.Token()

	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		token.Register(func() { order = append(order, i) })
	}
	if token.IsCancelling() {
		t.Fatal("token cancelled before Cancel")
	}

	src.Cancel()
	if !token.IsCancelling() {
		t.Fatal("token not cancelled after Cancel")
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("handler order = %v, want [1 2 3]", order)
	}
}

func TestTokenSourceCancelIdempotent(t *testing.T) {
	src := NewTokenSource()
	calls := 0
	src.Token().Register(func() { calls++ })

	src.Cancel()
	src.Cancel()
	if calls != 1 {
		t.Fatalf("handler ran %d times, want 1", calls)
	}
}

func TestTokenRegisterAfterCancelRunsSynchronously(t *testing.T) {
	src := NewTokenSource()
	src.Cancel()

	ran := false
	src.Token().Register(func() { ran = true })
	if !ran {
		t.Fatal("late registration did not run synchronously")
	}
}

func TestZeroTokenIsInert(t *testing.T) {
	var token Token
	if token.IsCancelling() {
		t.Fatal("zero token reports cancelled")
	}
	token.Register(func() { t.Fatal("zero token ran a handler") })
}

func TestTokenSourceConcurrentCancel(t *testing.T) {
	src := NewTokenSource()
	var calls int
	var mu sync.Mutex
	src.Token().Register(func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			src.Cancel()
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("handler ran %d times, want 1", calls)
	}
}
