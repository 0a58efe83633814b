package account

import "context"

// Store persists Account records.
//
// Contract:
//   - Create assigns Version=1 and fails with ConflictError on a taken
//     username or e-mail.
//   - Save writes the whole record only if the stored Version equals
//     acc.Version, then increments acc.Version; otherwise ErrStale.
//   - Lookups by token hash match the persisted digest exactly.
//   - Missing records are ErrNotFound.
type Store interface {
	Create(ctx context.Context, acc *Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByIdentifier(ctx context.Context, identifier string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByVerificationTokenHash(ctx context.Context, hash string) (*Account, error)
	GetByResetTokenHash(ctx context.Context, hash string) (*Account, error)
	Save(ctx context.Context, acc *Account) error
	Delete(ctx context.Context, id string) error
}
