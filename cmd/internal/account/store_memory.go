package account

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for development and tests.
// Records are copied on the way in and out so callers never share state.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]*Account
	now  func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID: make(map[string]*Account),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Create(ctx context.Context, acc *Account) error {
	const op = "account.MemoryStore.Create"
	if err := ctx.Err(); err != nil {
		return err
	}
	if acc == nil || acc.ID == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "id is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.byID {
		switch {
		case existing.ID == acc.ID:
			return ConflictError{Op: op, Field: "id"}
		case existing.Username == acc.Username:
			return ConflictError{Op: op, Field: "username"}
		case existing.Email == acc.Email:
			return ConflictError{Op: op, Field: "email"}
		}
	}

	now := s.now()
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = now
	}
	acc.UpdatedAt = acc.CreatedAt
	acc.Version = 1
	s.byID[acc.ID] = acc.Clone()
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*Account, error) {
	return s.find(ctx, "account.MemoryStore.GetByID", func(a *Account) bool { return a.ID == id })
}

func (s *MemoryStore) GetByIdentifier(ctx context.Context, identifier string) (*Account, error) {
	ident := NormalizeIdentifier(identifier)
	if IsEmailIdentifier(ident) {
		return s.GetByEmail(ctx, ident)
	}
	return s.find(ctx, "account.MemoryStore.GetByIdentifier", func(a *Account) bool { return a.Username == ident })
}

func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (*Account, error) {
	email = NormalizeEmail(email)
	return s.find(ctx, "account.MemoryStore.GetByEmail", func(a *Account) bool { return a.Email == email })
}

func (s *MemoryStore) GetByVerificationTokenHash(ctx context.Context, hash string) (*Account, error) {
	return s.find(ctx, "account.MemoryStore.GetByVerificationTokenHash", func(a *Account) bool {
		return hash != "" && a.VerificationTokenHash == hash
	})
}

func (s *MemoryStore) GetByResetTokenHash(ctx context.Context, hash string) (*Account, error) {
	return s.find(ctx, "account.MemoryStore.GetByResetTokenHash", func(a *Account) bool {
		return hash != "" && a.ResetTokenHash == hash
	})
}

func (s *MemoryStore) Save(ctx context.Context, acc *Account) error {
	const op = "account.MemoryStore.Save"
	if err := ctx.Err(); err != nil {
		return err
	}
	if acc == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil account"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[acc.ID]
	if !ok {
		return notFound(op)
	}
	if cur.Version != acc.Version {
		return stale(op)
	}
	for _, other := range s.byID {
		if other.ID == acc.ID {
			continue
		}
		if other.Username == acc.Username {
			return ConflictError{Op: op, Field: "username"}
		}
		if other.Email == acc.Email {
			return ConflictError{Op: op, Field: "email"}
		}
	}

	acc.Version++
	acc.UpdatedAt = s.now()
	s.byID[acc.ID] = acc.Clone()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	const op = "account.MemoryStore.Delete"
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return notFound(op)
	}
	delete(s.byID, id)
	return nil
}

func (s *MemoryStore) find(ctx context.Context, op string, match func(*Account) bool) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.byID {
		if match(a) {
			return a.Clone(), nil
		}
	}
	return nil, notFound(op)
}
