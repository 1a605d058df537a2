package types

import (
	"time"

	"github.com/google/uuid"
)

// Account is a canonical identity record. (Type, Provider, Identifier) is
// unique; an account is created on first authentication of a new identifier
// and its metadata is merge-updated on re-authentication.
type Account struct {
	ID         uuid.UUID              `json:"id"`
	Type       AccountType            `json:"type"`
	Provider   *string                `json:"provider,omitempty"`
	Identifier string                 `json:"identifier"`
	Verified   bool                   `json:"verified"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// IdentityLink is the directed storage of an undirected relation between two
// accounts. AccountA is always the smaller UUID so each unordered pair maps
// to exactly one row.
type IdentityLink struct {
	AccountA    uuid.UUID   `json:"account_a_id"`
	AccountB    uuid.UUID   `json:"account_b_id"`
	PrivacyMode PrivacyMode `json:"privacy_mode"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Other returns the peer of the given account on this edge.
func (l *IdentityLink) Other(id uuid.UUID) uuid.UUID {
	if l.AccountA == id {
		return l.AccountB
	}
	return l.AccountA
}

// Profile is the unit that owns a session wallet and zero or more linked
// EOAs. The session wallet address is derived by the custody executor.
type Profile struct {
	ID                   uuid.UUID `json:"id"`
	SessionWalletAddress string    `json:"session_wallet_address"`
	CreatedAt            time.Time `json:"created_at"`
}

// ProfileAccount joins an account to a profile. Creation is idempotent per
// (ProfileID, AccountID).
type ProfileAccount struct {
	ProfileID   uuid.UUID              `json:"profile_id"`
	AccountID   uuid.UUID              `json:"account_id"`
	IsPrimary   bool                   `json:"is_primary"`
	Permissions map[string]interface{} `json:"permissions,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// LinkedAccount is an EOA associated with a profile. It is address-based and
// chain-scoped, distinct from Account. Unlinking deactivates the row rather
// than deleting it.
type LinkedAccount struct {
	ID           uuid.UUID `json:"id"`
	ProfileID    uuid.UUID `json:"profile_id"`
	Address      string    `json:"address"`
	ChainID      int64     `json:"chain_id"`
	AuthStrategy string    `json:"auth_strategy"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// SessionWalletKey is a profile's custodial session-wallet key, encrypted by
// the configured keystore backend.
type SessionWalletKey struct {
	ProfileID       uuid.UUID `json:"profile_id"`
	Address         string    `json:"address"`
	EncryptedKey    []byte    `json:"-"`
	KeystoreBackend string    `json:"keystore_backend"`
	CreatedAt       time.Time `json:"created_at"`
}

// AuditLog records a security-relevant event. Audit writes are fire-and-forget
// and never roll back the primary operation.
type AuditLog struct {
	ID           uuid.UUID `json:"id"`
	Actor        string    `json:"actor"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	TxHash       *string   `json:"tx_hash,omitempty"`
	Detail       *string   `json:"detail,omitempty"`
	ClientIP     string    `json:"client_ip,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
