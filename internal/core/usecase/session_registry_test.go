package usecase

import "testing"

func TestSessionRegistryReturnsSameSessionPerUser(t *testing.T) {
	loader := &loaderFake{indexes: testIndexes()}
	created := 0
	registry, err := NewSessionRegistry(4, func() *Session {
		created++
		return newTestSession(loader, SessionOptions{})
	}, quietLogger())
	if err != nil {
		t.Fatalf("NewSessionRegistry() error = %v", err)
	}

	first := registry.Get("alice")
	if again := registry.Get("alice"); again != first {
		t.Fatalf("expected the same session for the same user")
	}
	if other := registry.Get("bob"); other == first {
		t.Fatalf("expected a distinct session for another user")
	}
	if created != 2 || registry.Len() != 2 {
		t.Fatalf("expected 2 sessions, created=%d len=%d", created, registry.Len())
	}
}

func TestSessionRegistryEvictsLeastRecentlyUsed(t *testing.T) {
	loader := &loaderFake{indexes: testIndexes()}
	registry, err := NewSessionRegistry(2, func() *Session {
		return newTestSession(loader, SessionOptions{})
	}, quietLogger())
	if err != nil {
		t.Fatalf("NewSessionRegistry() error = %v", err)
	}

	alice := registry.Get("alice")
	registry.Get("bob")
	registry.Get("alice")
	registry.Get("carol")

	if registry.Len() != 2 {
		t.Fatalf("expected capacity to hold, got %d", registry.Len())
	}
	if registry.Get("alice") != alice {
		t.Fatalf("recently used session should survive eviction")
	}
}
