package docstore

import (
	"context"
	"sort"
	"sync"

	"github.com/zhfmzl/priceUpdate-BTB/internal/model"
)

// MemoryPrices is an in-process prices collection with the same per-grade
// upsert semantics as PriceRepo. Dry runs write here instead of Mongo.
type MemoryPrices struct {
	mu   sync.Mutex
	docs map[string]*model.PriceDocument

	// FailWith, when set, is returned by every UpsertPrices call.
	FailWith error
}

// NewMemoryPrices returns an empty in-process prices collection.
func NewMemoryPrices() *MemoryPrices {
	return &MemoryPrices{docs: make(map[string]*model.PriceDocument)}
}

// UpsertPrices applies ups in order.
func (m *MemoryPrices) UpsertPrices(_ context.Context, ups []model.PriceUpsert) (BulkResult, error) {
	if m.FailWith != nil {
		return BulkResult{}, m.FailWith
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	res := BulkResult{Operations: len(ups) * 3}
	for _, u := range ups {
		doc, ok := m.docs[u.ID]
		if !ok {
			doc = &model.PriceDocument{ID: u.ID, Prices: []model.PriceEntry{}}
			m.docs[u.ID] = doc
			res.Upserted++
		}

		found := false
		for i := range doc.Prices {
			if doc.Prices[i].Grade != u.Grade {
				continue
			}
			found = true
			res.Matched++
			if doc.Prices[i].Price != u.Price {
				doc.Prices[i].Price = u.Price
				res.Modified++
			}
		}
		if !found {
			doc.Prices = append(doc.Prices, model.PriceEntry{Grade: u.Grade, Price: u.Price})
			res.Modified++
		}
	}
	return res, nil
}

// Get returns a copy of the document for id, or nil.
func (m *MemoryPrices) Get(_ context.Context, id string) (*model.PriceDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[id]
	if !ok {
		return nil, nil
	}
	cp := &model.PriceDocument{ID: doc.ID, Prices: append([]model.PriceEntry(nil), doc.Prices...)}
	return cp, nil
}

// IDs returns the stored player ids in ascending order.
func (m *MemoryPrices) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
