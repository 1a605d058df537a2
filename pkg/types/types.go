package types

// AccountType identifies how an identity record was established.
// The set is closed: consumers switch over it exhaustively.
type AccountType string

const (
	AccountTypeWallet  AccountType = "wallet"
	AccountTypeEmail   AccountType = "email"
	AccountTypeSocial  AccountType = "social"
	AccountTypePasskey AccountType = "passkey"
	AccountTypeGuest   AccountType = "guest"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeWallet, AccountTypeEmail, AccountTypeSocial, AccountTypePasskey, AccountTypeGuest:
		return true
	}
	return false
}

// PrivacyMode is the per-edge visibility policy of an identity link.
type PrivacyMode string

const (
	// PrivacyLinked gives full mutual visibility across the edge.
	PrivacyLinked PrivacyMode = "linked"
	// PrivacyPartial is visible but restricted; still part of the closure.
	PrivacyPartial PrivacyMode = "partial"
	// PrivacyIsolated excludes the edge from automatic closure computation.
	PrivacyIsolated PrivacyMode = "isolated"
)

// Valid reports whether m is a known privacy mode.
func (m PrivacyMode) Valid() bool {
	switch m {
	case PrivacyLinked, PrivacyPartial, PrivacyIsolated:
		return true
	}
	return false
}

// InClosure reports whether edges with this mode participate in
// transitive reachability.
func (m PrivacyMode) InClosure() bool {
	return m == PrivacyLinked || m == PrivacyPartial
}

// DelegationStatus is the stored lifecycle state of an account delegation.
// "expired" is computed from ExpiresAt and never stored.
type DelegationStatus string

const (
	DelegationPending DelegationStatus = "pending"
	DelegationSigned  DelegationStatus = "signed"
	DelegationActive  DelegationStatus = "active"
	DelegationRevoked DelegationStatus = "revoked"
)

// Usable reports whether a delegation in this stored status can authorize
// transactions (expiry is checked separately).
func (s DelegationStatus) Usable() bool {
	return s == DelegationSigned || s == DelegationActive
}

// AuthStrategySignature marks a linked account registered through an
// ownership-signature proof.
const AuthStrategySignature = "signature"
