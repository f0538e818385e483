// Package subscription answers entitlement questions for the billing
// bypass policy.
package subscription

import (
	"context"
	"sync"
)

// Service reports a user's entitlements.
type Service interface {
	// HasPremiumAccess reports whether the user holds an active premium
	// subscription.
	HasPremiumAccess(ctx context.Context, userID string) (bool, error)
}

// StaticService is a config-backed Service holding a fixed set of premium
// users. Replace swaps the set atomically, which is how config hot reload
// reaches it.
type StaticService struct {
	mu      sync.RWMutex
	premium map[string]struct{}
}

// NewStaticService builds a service from a list of premium user ids.
func NewStaticService(premiumUsers []string) *StaticService {
	s := &StaticService{}
	s.Replace(premiumUsers)
	return s
}

// HasPremiumAccess implements Service.
func (s *StaticService) HasPremiumAccess(ctx context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.premium[userID]
	return ok, nil
}

// Replace swaps the premium user set.
func (s *StaticService) Replace(premiumUsers []string) {
	next := make(map[string]struct{}, len(premiumUsers))
	for _, u := range premiumUsers {
		next[u] = struct{}{}
	}
	s.mu.Lock()
	s.premium = next
	s.mu.Unlock()
}
