package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/safar/axon-pharmacy/internal/llm"
)

func TestManagerLifecycle(t *testing.T) {
	m := NewManager(time.Hour)
	restored := []llm.Message{{Role: llm.RoleUser, Content: "hi"}}

	s := m.Begin("s1", "alice@example.com", "user", restored)
	if c := s.Caller(); c.Email != "alice@example.com" || c.Role != "user" {
		t.Errorf("Unexpected caller: %+v", c)
	}

	got, err := m.Resolve("s1")
	if err != nil || got != s {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got.Transcript()) != 1 {
		t.Errorf("Expected restored transcript, got %+v", got.Transcript())
	}

	if !m.End("s1") {
		t.Error("Expected End to report an existing session")
	}
	if m.End("s1") {
		t.Error("Expected second End to report nothing")
	}
	if _, err := m.Resolve("s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after logout, got %v", err)
	}
}

func TestManagerExpiry(t *testing.T) {
	m := NewManager(time.Minute)
	now := time.Now()
	m.now = func() time.Time { return now }

	m.Begin("old", "a@example.com", "user", nil)
	m.Begin("older", "b@example.com", "user", nil)

	now = now.Add(2 * time.Minute)
	m.Begin("fresh", "c@example.com", "user", nil)

	if _, err := m.Resolve("old"); !errors.Is(err, ErrExpired) {
		t.Errorf("Expected ErrExpired, got %v", err)
	}
	if n := m.Prune(); n != 1 {
		t.Errorf("Expected 1 pruned session, got %d", n)
	}
	if m.Len() != 1 {
		t.Errorf("Expected only the fresh session left, got %d", m.Len())
	}
}

func TestTurnsAreSerialized(t *testing.T) {
	m := NewManager(time.Hour)
	s := m.Begin("s1", "alice@example.com", "user", nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Turn(func(transcript []llm.Message) []llm.Message {
				return append(append([]llm.Message(nil), transcript...), llm.Message{Role: llm.RoleUser, Content: "x"})
			})
		}()
	}
	wg.Wait()

	if n := len(s.Transcript()); n != 50 {
		t.Errorf("Expected 50 messages, got %d", n)
	}

	s.Turn(func([]llm.Message) []llm.Message { return nil })
	if n := len(s.Transcript()); n != 50 {
		t.Errorf("Expected nil result to keep the transcript, got %d", n)
	}
}
