package state

import (
	"testing"

	"github.com/vietddude/relaychat/internal/core/domain"
)

func TestStore_MergesPartialUpdates(t *testing.T) {
	s := NewStore()

	s.Set(Patch{Loading: Ptr(true), Error: Ptr("boom")})
	s.Set(Patch{StreamingText: Ptr("hel")})

	got := s.Get()
	if !got.Loading || got.Error != "boom" || got.StreamingText != "hel" {
		t.Errorf("unexpected state: %+v", got)
	}

	s.Set(Patch{Error: Ptr("")})
	if got := s.Get(); got.Error != "" || !got.Loading {
		t.Errorf("clearing error touched other fields: %+v", got)
	}
}

func TestStore_MessagesAreCopied(t *testing.T) {
	s := NewStore()
	msgs := []domain.ChatMessage{{ID: "1", Role: domain.RoleUser, Text: "hi"}}
	s.Set(Patch{Messages: msgs})

	msgs[0].Text = "changed"
	if got := s.Get().Messages[0].Text; got != "hi" {
		t.Errorf("store shares caller's slice: %q", got)
	}
}

func TestStore_NotifiesSubscribersInOrder(t *testing.T) {
	s := NewStore()
	var calls []string
	s.Subscribe(func(State) { calls = append(calls, "a") })
	s.Subscribe(func(st State) {
		calls = append(calls, "b")
		if st.Connection != domain.ConnectionConnected {
			t.Errorf("subscriber saw %s, want connected", st.Connection)
		}
	})

	s.Set(Patch{Connection: Ptr(domain.ConnectionConnected)})

	if len(calls) != 2 || calls[0] != "a" || calls[1] != "b" {
		t.Errorf("calls = %v", calls)
	}
}
