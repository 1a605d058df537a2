package types

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAccountTypeValid(t *testing.T) {
	for _, at := range []AccountType{AccountTypeWallet, AccountTypeEmail, AccountTypeSocial, AccountTypePasskey, AccountTypeGuest} {
		assert.True(t, at.Valid(), "expected %s to be valid", at)
	}
	assert.False(t, AccountType("ens").Valid())
	assert.False(t, AccountType("").Valid())
}

func TestPrivacyModeClosureMembership(t *testing.T) {
	assert.True(t, PrivacyLinked.InClosure())
	assert.True(t, PrivacyPartial.InClosure())
	assert.False(t, PrivacyIsolated.InClosure())

	assert.True(t, PrivacyIsolated.Valid())
	assert.False(t, PrivacyMode("hidden").Valid())
}

func TestDelegationStatusUsable(t *testing.T) {
	assert.False(t, DelegationPending.Usable())
	assert.True(t, DelegationSigned.Usable())
	assert.True(t, DelegationActive.Usable())
	assert.False(t, DelegationRevoked.Usable())
}

func TestDelegationExpired(t *testing.T) {
	now := time.Now()

	d := &AccountDelegation{}
	assert.False(t, d.Expired(now), "nil expiry never expires")

	past := now.Add(-time.Second)
	d.ExpiresAt = &past
	assert.True(t, d.Expired(now))

	future := now.Add(time.Hour)
	d.ExpiresAt = &future
	assert.False(t, d.Expired(now))
}

func TestIdentityLinkOther(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	link := &IdentityLink{AccountA: a, AccountB: b}

	assert.Equal(t, b, link.Other(a))
	assert.Equal(t, a, link.Other(b))
}
