package api

import (
	"net/http"
	"sort"

	"github.com/quotefeed/quotefeed/internal/pair"
	"github.com/quotefeed/quotefeed/internal/quotecache"
	"github.com/quotefeed/quotefeed/internal/registry"
	"github.com/quotefeed/quotefeed/internal/source"
)

// pairItem is one registry entry in the snapshot response. Cached price
// fields appear only while the cache holds a live entry for the pair.
type pairItem struct {
	Source        string    `json:"source"`
	Pair          [2]string `json:"pair"`
	RegisteredAt  int64     `json:"registeredAt"`
	LastRequestAt int64     `json:"lastRequestAt"`
	LastFetchAt   *int64    `json:"lastFetchAt,omitempty"`
	Price         string    `json:"price,omitempty"`
	CachedAt      *int64    `json:"cachedAt,omitempty"`
}

type pairsResponse struct {
	Pairs []pairItem `json:"pairs"`
	Total int        `json:"total"`
}

func renderRegistration(reg *registry.Registration, cache *quotecache.Cache) pairItem {
	item := pairItem{
		Source:        reg.Source,
		Pair:          [2]string{reg.Pair.Base, reg.Pair.Quote},
		RegisteredAt:  reg.RegisteredAt().UnixMilli(),
		LastRequestAt: reg.LastRequestAt().UnixMilli(),
	}
	if t := reg.LastFetchAt(); !t.IsZero() {
		ms := t.UnixMilli()
		item.LastFetchAt = &ms
	}
	if q, ok := cache.Get(pair.KeyFor(reg.Source, reg.Pair)); ok {
		ms := q.CachedAt.UnixMilli()
		item.Price = q.Price
		item.CachedAt = &ms
	}
	return item
}

func writePairs(w http.ResponseWriter, regs []*registry.Registration, cache *quotecache.Cache) {
	items := make([]pairItem, 0, len(regs))
	for _, reg := range regs {
		items = append(items, renderRegistration(reg, cache))
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Source != items[j].Source {
			return items[i].Source < items[j].Source
		}
		return items[i].Pair[0]+items[i].Pair[1] < items[j].Pair[0]+items[j].Pair[1]
	})
	WriteJSON(w, http.StatusOK, pairsResponse{Pairs: items, Total: len(items)})
}

// HandleListPairs returns a handler for GET /pairs: every tracked pair
// across all sources, merged with cached prices where available.
func HandleListPairs(pairs *registry.Registry, cache *quotecache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writePairs(w, pairs.Snapshot(), cache)
	}
}

// HandleListSourcePairs returns a handler for GET /pairs/{source}.
func HandleListSourcePairs(pairs *registry.Registry, cache *quotecache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("source")
		if !source.Known(name) {
			WriteError(w, http.StatusNotFound, "SOURCE_NOT_FOUND", "unknown source "+name)
			return
		}
		var regs []*registry.Registration
		for _, reg := range pairs.Snapshot() {
			if reg.Source == name {
				regs = append(regs, reg)
			}
		}
		writePairs(w, regs, cache)
	}
}

// HandleRemovePair returns a handler for DELETE /pairs/{source}/{base}/{quote}.
// Removing a pair stops its background refresh and stream subscription and
// evicts any cached quote.
func HandleRemovePair(pairs *registry.Registry, cache *quotecache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("source")
		if !source.Known(name) {
			WriteError(w, http.StatusNotFound, "SOURCE_NOT_FOUND", "unknown source "+name)
			return
		}
		p := pair.New(r.PathValue("base"), r.PathValue("quote"))
		if !pairs.Remove(name, p) {
			WriteError(w, http.StatusNotFound, "PAIR_NOT_TRACKED", p.String()+" is not tracked on "+name)
			return
		}
		cache.Delete(pair.KeyFor(name, p))
		w.WriteHeader(http.StatusNoContent)
	}
}
