package symbolmap

import (
	"context"
	"errors"
	"testing"
)

type stubLister struct {
	coins []Coin
	err   error
}

func (s *stubLister) ListCoins(context.Context) ([]Coin, error) { return s.coins, s.err }

func TestResolve_PinnedBeforeFirstLoad(t *testing.T) {
	s := NewService(ServiceConfig{Lister: &stubLister{}})
	defer s.Stop()

	id, ok := s.Resolve("BTC")
	if !ok || id != "bitcoin" {
		t.Errorf("Resolve(BTC): got %q %v, want bitcoin true", id, ok)
	}
	if _, ok := s.Resolve("obscurecoin"); ok {
		t.Error("unknown symbol must not resolve before load")
	}
}

func TestRefreshNow_FirstOccurrenceWins(t *testing.T) {
	s := NewService(ServiceConfig{Lister: &stubLister{coins: []Coin{
		{ID: "obscurecoin", Symbol: "OBS", Name: "ObscureCoin"},
		{ID: "obscurecoin-2", Symbol: "obs", Name: "ObscureCoin Fork"},
	}}})
	defer s.Stop()

	if err := s.RefreshNow(); err != nil {
		t.Fatalf("RefreshNow: %v", err)
	}
	id, ok := s.Resolve("obs")
	if !ok || id != "obscurecoin" {
		t.Errorf("Resolve(obs): got %q %v, want obscurecoin true", id, ok)
	}
	if s.Size() != 1 {
		t.Errorf("Size: got %d, want 1", s.Size())
	}
}

func TestRefreshNow_PinnedWinsOverList(t *testing.T) {
	s := NewService(ServiceConfig{Lister: &stubLister{coins: []Coin{
		{ID: "batcat-token", Symbol: "btc", Name: "BatCat"},
	}}})
	defer s.Stop()

	if err := s.RefreshNow(); err != nil {
		t.Fatalf("RefreshNow: %v", err)
	}
	id, ok := s.Resolve("btc")
	if !ok || id != "bitcoin" {
		t.Errorf("Resolve(btc): got %q %v, want bitcoin true", id, ok)
	}
}

func TestRefreshNow_ErrorKeepsOldMap(t *testing.T) {
	lister := &stubLister{coins: []Coin{{ID: "obscurecoin", Symbol: "obs"}}}
	s := NewService(ServiceConfig{Lister: lister})
	defer s.Stop()

	if err := s.RefreshNow(); err != nil {
		t.Fatalf("RefreshNow: %v", err)
	}
	lister.err = errors.New("upstream down")
	if err := s.RefreshNow(); err == nil {
		t.Fatal("expected refresh error")
	}
	if _, ok := s.Resolve("obs"); !ok {
		t.Error("failed refresh must not clear the previous map")
	}
}
