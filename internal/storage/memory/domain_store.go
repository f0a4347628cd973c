// Package memory keeps discovered product URLs in process memory for development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/product-url-crawler/internal/crawler"
)

// DomainStore implements crawler.ResultStore with a map guarded by a RWMutex.
type DomainStore struct {
	mu      sync.RWMutex
	records map[string]crawler.DomainRecord
}

// NewDomainStore constructs an empty DomainStore.
func NewDomainStore() *DomainStore {
	return &DomainStore{records: make(map[string]crawler.DomainRecord)}
}

// UpsertDomain replaces any existing record for record.Domain.
func (s *DomainStore) UpsertDomain(_ context.Context, record crawler.DomainRecord) error {
	if record.Domain == "" {
		return fmt.Errorf("upsert domain: empty domain")
	}
	record.URLs = append([]string(nil), record.URLs...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Domain] = record
	return nil
}

// GetDomain returns a copy of the stored record.
func (s *DomainStore) GetDomain(_ context.Context, domain string) (crawler.DomainRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[domain]
	if !ok {
		return crawler.DomainRecord{}, fmt.Errorf("%w: %s", crawler.ErrDomainNotFound, domain)
	}
	record.URLs = append([]string(nil), record.URLs...)
	return record, nil
}

// Len reports how many domains are stored.
func (s *DomainStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
