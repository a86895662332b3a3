package customer_test

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-grocer/internal/customer"
)

type memoryStore struct {
	mu   sync.Mutex
	byID map[string]customer.Customer
	err  error
}

func newMemoryStore(seed ...customer.Customer) *memoryStore {
	s := &memoryStore{byID: map[string]customer.Customer{}}
	for _, c := range seed {
		s.byID[c.ID] = c
	}
	return s
}

func (s *memoryStore) Get(_ context.Context, id string) (customer.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return customer.Customer{}, s.err
	}
	c, ok := s.byID[id]
	if !ok {
		return customer.Customer{}, customer.ErrNotFound
	}
	return c, nil
}

func (s *memoryStore) GetByEmail(_ context.Context, email string) (customer.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.byID {
		if strings.EqualFold(c.Email, email) {
			return c, nil
		}
	}
	return customer.Customer{}, customer.ErrNotFound
}

func (s *memoryStore) Create(_ context.Context, c customer.Customer) (customer.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = uuid.NewString()
	s.byID[c.ID] = c
	return c, nil
}

func (s *memoryStore) UpdateProfile(_ context.Context, id string, p customer.Profile) (customer.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return customer.Customer{}, customer.ErrNotFound
	}
	if p.Name != "" {
		c.Name = p.Name
	}
	if p.Email != "" {
		c.Email = p.Email
	}
	s.byID[id] = c
	return c, nil
}
