package concurrency

import (
	"sync"
	"testing"
)

func TestManager_TryAcquire(t *testing.T) {
	m := NewManager()
	key := Key("flutter", "snake game", "android")

	if !m.TryAcquire(key) {
		t.Error("First TryAcquire should succeed")
	}
	if m.TryAcquire(key) {
		t.Error("Second TryAcquire should fail while key is held")
	}

	m.Release(key)
	if !m.TryAcquire(key) {
		t.Error("TryAcquire should succeed after Release")
	}
	m.Release(key)

	if m.Held() != 0 {
		t.Errorf("Held() = %d, want 0", m.Held())
	}
}

func TestManager_Release_Idempotent(t *testing.T) {
	m := NewManager()
	key := "k"

	// Release without acquiring should not panic
	m.Release(key)
	m.Release(key)

	m.TryAcquire(key)
	m.Release(key)
	m.Release(key)

	if !m.TryAcquire(key) {
		t.Error("TryAcquire should succeed after multiple releases")
	}
}

func TestManager_ConcurrentAccess(t *testing.T) {
	m := NewManager()
	key := "shared"

	const numGoroutines = 20
	successCount := 0
	var mu sync.Mutex
	var wg sync.WaitGroup
	start := make(chan struct{})

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			<-start
			if m.TryAcquire(key) {
				mu.Lock()
				successCount++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	// Nobody releases, so exactly one goroutine wins.
	if successCount != 1 {
		t.Errorf("successCount = %d, want 1", successCount)
	}
}

func TestManager_DifferentKeys(t *testing.T) {
	m := NewManager()
	key1 := Key("web", "pong")
	key2 := Key("web", "breakout")

	if !m.TryAcquire(key1) || !m.TryAcquire(key2) {
		t.Fatal("independent keys should both be acquired")
	}
	if m.Held() != 2 {
		t.Errorf("Held() = %d, want 2", m.Held())
	}
	if m.TryAcquire(key1) {
		t.Error("key1 should still be held")
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		same bool
	}{
		{"case and whitespace", []string{"Flutter", " Snake "}, []string{"flutter", "snake"}, true},
		{"extra order", []string{"flutter", "android", "ios"}, []string{"flutter", "ios", "android"}, true},
		{"different primary", []string{"flutter", "android"}, []string{"react-native", "android"}, false},
		{"different extra", []string{"flutter", "android"}, []string{"flutter", "ios"}, false},
		{"boundary", []string{"flutter", "ab", "c"}, []string{"flutter", "a", "bc"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka := Key(tt.a[0], tt.a[1:]...)
			kb := Key(tt.b[0], tt.b[1:]...)
			if (ka == kb) != tt.same {
				t.Fatalf("Key(%v) = %s, Key(%v) = %s, same = %v", tt.a, ka, tt.b, kb, tt.same)
			}
			if len(ka) != 16 {
				t.Fatalf("len(key) = %d, want 16", len(ka))
			}
		})
	}
}
