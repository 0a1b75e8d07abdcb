package credentials

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for development and tests.
// It holds credentials in plain maps; wrap it in an Interceptor to get
// encryption at rest exactly as a database-backed store would.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*Credential
	byUID map[string][]string

	// now is replaceable for tests
	now func() time.Time
}

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-process credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[string]*Credential),
		byUID: make(map[string][]string),
		now:   time.Now,
	}
}

// SetClock replaces the store's clock. Test hook.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Create stores a new credential. Returns an error if the ID is empty
// or already taken.
func (s *MemoryStore) Create(ctx context.Context, cred *Credential) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(cred)
}

// CreateBatch stores multiple credentials atomically: either all are
// stored or none.
func (s *MemoryStore) CreateBatch(ctx context.Context, creds []*Credential) ([]*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate up front so a failure partway cannot leave a partial batch
	seen := make(map[string]bool, len(creds))
	for _, cred := range creds {
		if cred.ID == "" {
			return nil, fmt.Errorf("credential ID is required")
		}
		if seen[cred.ID] {
			return nil, fmt.Errorf("duplicate credential ID in batch: %s", cred.ID)
		}
		if _, exists := s.byID[cred.ID]; exists {
			return nil, fmt.Errorf("credential already exists: %s", cred.ID)
		}
		seen[cred.ID] = true
	}

	stored := make([]*Credential, 0, len(creds))
	for _, cred := range creds {
		rec, err := s.createLocked(cred)
		if err != nil {
			return nil, err
		}
		stored = append(stored, rec)
	}

	return stored, nil
}

func (s *MemoryStore) createLocked(cred *Credential) (*Credential, error) {
	if cred.ID == "" {
		return nil, fmt.Errorf("credential ID is required")
	}
	if _, exists := s.byID[cred.ID]; exists {
		return nil, fmt.Errorf("credential already exists: %s", cred.ID)
	}

	rec := cred.Clone()
	now := s.now()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	s.byID[rec.ID] = rec
	s.byUID[rec.UserID] = append(s.byUID[rec.UserID], rec.ID)

	return rec.Clone(), nil
}

// Get retrieves a credential by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}

	return rec.Clone(), nil
}

// ListByUser retrieves all credentials belonging to a user, in creation order.
func (s *MemoryStore) ListByUser(ctx context.Context, userID string) ([]*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUID[userID]
	creds := make([]*Credential, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.byID[id]; ok {
			creds = append(creds, rec.Clone())
		}
	}

	return creds, nil
}

// Update replaces an existing credential, preserving CreatedAt.
func (s *MemoryStore) Update(ctx context.Context, cred *Credential) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(cred)
}

// UpdateBatch replaces multiple existing credentials atomically.
func (s *MemoryStore) UpdateBatch(ctx context.Context, creds []*Credential) ([]*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cred := range creds {
		if _, exists := s.byID[cred.ID]; !exists {
			return nil, ErrNotFound
		}
	}

	stored := make([]*Credential, 0, len(creds))
	for _, cred := range creds {
		rec, err := s.updateLocked(cred)
		if err != nil {
			return nil, err
		}
		stored = append(stored, rec)
	}

	return stored, nil
}

func (s *MemoryStore) updateLocked(cred *Credential) (*Credential, error) {
	existing, ok := s.byID[cred.ID]
	if !ok {
		return nil, ErrNotFound
	}

	rec := cred.Clone()
	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = s.now()

	if rec.UserID != existing.UserID {
		s.removeUserIndex(existing.UserID, rec.ID)
		s.byUID[rec.UserID] = append(s.byUID[rec.UserID], rec.ID)
	}

	s.byID[rec.ID] = rec

	return rec.Clone(), nil
}

// Delete removes a credential by ID.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}

	delete(s.byID, id)
	s.removeUserIndex(rec.UserID, id)

	return nil
}

// Close is a no-op for the in-process store.
func (s *MemoryStore) Close() error {
	return nil
}

// Len returns the number of stored credentials. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *MemoryStore) removeUserIndex(userID, id string) {
	ids := s.byUID[userID]
	for n, existing := range ids {
		if existing == id {
			s.byUID[userID] = append(ids[:n:n], ids[n+1:]...)
			break
		}
	}
	if len(s.byUID[userID]) == 0 {
		delete(s.byUID, userID)
	}
}
