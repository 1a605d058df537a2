package delegation

import (
	"context"
	"crypto/ecdsa"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/link-wallet/link-wallet/pkg/errors"
	"github.com/link-wallet/link-wallet/pkg/types"
)

// memDelegationStore implements DelegationStore, LinkedAccountStore and
// ProfileStore against maps.
type memDelegationStore struct {
	mu          sync.Mutex
	delegations map[uuid.UUID]*types.AccountDelegation
	linked      map[uuid.UUID]*types.LinkedAccount
	members     map[uuid.UUID]map[uuid.UUID]bool
}

func newMemDelegationStore() *memDelegationStore {
	return &memDelegationStore{
		delegations: make(map[uuid.UUID]*types.AccountDelegation),
		linked:      make(map[uuid.UUID]*types.LinkedAccount),
		members:     make(map[uuid.UUID]map[uuid.UUID]bool),
	}
}

func (s *memDelegationStore) liveOnTuple(linkedAccountID uuid.UUID, delegatedAddress string, chainID int64, now time.Time) *types.AccountDelegation {
	for _, d := range s.delegations {
		if d.LinkedAccountID == linkedAccountID &&
			strings.EqualFold(d.DelegatedAddress, delegatedAddress) &&
			d.ChainID == chainID &&
			d.Status != types.DelegationRevoked &&
			!d.Expired(now) {
			return d
		}
	}
	return nil
}

// occupantOnTuple mirrors the partial unique index: any non-revoked row
// holds the tuple, expired or not.
func (s *memDelegationStore) occupantOnTuple(linkedAccountID uuid.UUID, delegatedAddress string, chainID int64) *types.AccountDelegation {
	for _, d := range s.delegations {
		if d.LinkedAccountID == linkedAccountID &&
			strings.EqualFold(d.DelegatedAddress, delegatedAddress) &&
			d.ChainID == chainID &&
			d.Status != types.DelegationRevoked {
			return d
		}
	}
	return nil
}

func (s *memDelegationStore) CreateLive(_ context.Context, d *types.AccountDelegation) (*types.AccountDelegation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.occupantOnTuple(d.LinkedAccountID, d.DelegatedAddress, d.ChainID); existing != nil {
		return existing, nil
	}
	d.CreatedAt = time.Now().UTC()
	d.UpdatedAt = d.CreatedAt
	s.delegations[d.ID] = d
	return nil, nil
}

func (s *memDelegationStore) GetByID(_ context.Context, id uuid.UUID) (*types.AccountDelegation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delegations[id], nil
}

func (s *memDelegationStore) GetLive(_ context.Context, linkedAccountID uuid.UUID, delegatedAddress string, chainID int64, now time.Time) (*types.AccountDelegation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveOnTuple(linkedAccountID, delegatedAddress, chainID, now), nil
}

func (s *memDelegationStore) GetUsableByAddress(_ context.Context, delegatorAddress, delegatedAddress string, chainID int64, now time.Time) (*types.AccountDelegation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.delegations {
		la := s.linked[d.LinkedAccountID]
		if la == nil || !la.IsActive || !strings.EqualFold(la.Address, delegatorAddress) {
			continue
		}
		if strings.EqualFold(d.DelegatedAddress, delegatedAddress) &&
			d.ChainID == chainID &&
			d.Status.Usable() &&
			!d.Expired(now) {
			return d, nil
		}
	}
	return nil, nil
}

func (s *memDelegationStore) ListByLinkedAccount(_ context.Context, linkedAccountID uuid.UUID) ([]*types.AccountDelegation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.AccountDelegation
	for _, d := range s.delegations {
		if d.LinkedAccountID == linkedAccountID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *memDelegationStore) AttachSignature(_ context.Context, id uuid.UUID, sig *types.SignedAuthorization, permissions types.DelegationPermissions, expiresAt *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.delegations[id]
	if d == nil || d.Status != types.DelegationPending {
		return false, nil
	}
	d.Signature = sig
	d.Permissions = permissions
	d.ExpiresAt = expiresAt
	d.Status = types.DelegationSigned
	d.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *memDelegationStore) Activate(_ context.Context, id uuid.UUID, txHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.delegations[id]
	if d == nil || d.Status != types.DelegationSigned {
		return false, nil
	}
	now := time.Now().UTC()
	d.Status = types.DelegationActive
	d.ActivatedAt = &now
	d.TransactionHash = &txHash
	return true, nil
}

func (s *memDelegationStore) Revoke(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.delegations[id]
	if d == nil || d.Status == types.DelegationRevoked {
		return false, nil
	}
	now := time.Now().UTC()
	d.Status = types.DelegationRevoked
	d.RevokedAt = &now
	return true, nil
}

func (s *memDelegationStore) GetByIDLinked(_ context.Context, id uuid.UUID) (*types.LinkedAccount, error) {
	return s.linked[id], nil
}

func (s *memDelegationStore) IsAccountLinked(_ context.Context, profileID, accountID uuid.UUID) (bool, error) {
	return s.members[profileID][accountID], nil
}

// linkedAccountView adapts the store to LinkedAccountStore without clashing
// with DelegationStore's GetByID.
type linkedAccountView struct{ s *memDelegationStore }

func (v linkedAccountView) GetByID(ctx context.Context, id uuid.UUID) (*types.LinkedAccount, error) {
	return v.s.GetByIDLinked(ctx, id)
}

type staticBroadcaster struct{ hash string }

func (b staticBroadcaster) BroadcastActivation(context.Context, *types.AccountDelegation) (string, error) {
	return b.hash, nil
}

type fixedNonceSource struct{ nonce uint64 }

func (n fixedNonceSource) PendingNonce(context.Context, int64, string) (uint64, error) {
	return n.nonce, nil
}

type managerFixture struct {
	store   *memDelegationStore
	manager *Manager
	caller  uuid.UUID
	linked  uuid.UUID
	eoaKey  *ecdsa.PrivateKey
	eoa     common.Address
}

func newManagerFixture(t *testing.T, opts ...func(*Manager)) *managerFixture {
	t.Helper()
	store := newMemDelegationStore()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	eoa := crypto.PubkeyToAddress(key.PublicKey)

	caller := uuid.New()
	profile := uuid.New()
	store.members[profile] = map[uuid.UUID]bool{caller: true}

	linkedID := uuid.New()
	store.linked[linkedID] = &types.LinkedAccount{
		ID:        linkedID,
		ProfileID: profile,
		Address:   strings.ToLower(eoa.Hex()),
		ChainID:   1,
		IsActive:  true,
	}

	m := NewManager(store, linkedAccountView{store}, store, fixedNonceSource{nonce: 42}, staticBroadcaster{hash: "0xabc"})
	return &managerFixture{
		store:   store,
		manager: m,
		caller:  caller,
		linked:  linkedID,
		eoaKey:  key,
		eoa:     eoa,
	}
}

func (f *managerFixture) sign(t *testing.T, chainID int64, sessionWallet string, nonce uint64) types.SignedAuthorization {
	t.Helper()
	signed, err := ethtypes.SignSetCode(f.eoaKey, ethtypes.SetCodeAuthorization{
		ChainID: *uint256.NewInt(uint64(chainID)),
		Address: common.HexToAddress(sessionWallet),
		Nonce:   nonce,
	})
	require.NoError(t, err)
	return types.SignedAuthorization{
		ChainID: chainID,
		Address: sessionWallet,
		Nonce:   nonce,
		YParity: signed.V,
		R:       hexutil.Encode(signed.R.Bytes()),
		S:       hexutil.Encode(signed.S.Bytes()),
	}
}

func TestCreateDelegationAuthorization(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	challenge, err := f.manager.CreateDelegationAuthorization(
		ctx, f.caller, f.linked, testSessionWallet, 1, types.DelegationPermissions{CanTransfer: boolPtr(true)}, nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(42), challenge.AuthorizationData.Nonce)
	assert.Equal(t, int64(1), challenge.AuthorizationData.ChainID)
	assert.True(t, strings.HasPrefix(challenge.Message, "0x"))
	assert.Len(t, challenge.Message, 66)

	// A second request re-issues the outstanding challenge.
	again, err := f.manager.CreateDelegationAuthorization(
		ctx, f.caller, f.linked, testSessionWallet, 1, types.DelegationPermissions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, challenge.DelegationID, again.DelegationID)
	assert.Equal(t, challenge.Message, again.Message)
}

// Simultaneous challenge requests for one tuple converge on a single pending
// delegation instead of minting competing nonces.
func TestCreateDelegationAuthorization_Concurrent(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	challenges := make(chan *AuthorizationChallenge, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			challenge, err := f.manager.CreateDelegationAuthorization(
				ctx, f.caller, f.linked, testSessionWallet, 1, types.DelegationPermissions{CanTransfer: boolPtr(true)}, nil)
			assert.NoError(t, err)
			challenges <- challenge
		}()
	}
	wg.Wait()
	close(challenges)

	first := <-challenges
	second := <-challenges
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, first.DelegationID, second.DelegationID)
	assert.Equal(t, first.Message, second.Message)
	assert.Len(t, f.store.delegations, 1)
}

// An expired occupant still holds the tuple's slot in the live unique index,
// so re-delegation conflicts until the occupant is revoked.
func TestCreateDelegationAuthorization_ExpiredOccupantConflicts(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	occupant := &types.AccountDelegation{
		ID:               uuid.New(),
		LinkedAccountID:  f.linked,
		DelegatedAddress: strings.ToLower(testSessionWallet),
		ChainID:          1,
		Status:           types.DelegationSigned,
		ExpiresAt:        &past,
	}
	f.store.delegations[occupant.ID] = occupant

	_, err := f.manager.CreateDelegationAuthorization(
		ctx, f.caller, f.linked, testSessionWallet, 1, types.DelegationPermissions{}, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDelegationConflict))

	_, err = f.manager.StoreDelegation(ctx, f.caller, f.linked,
		f.sign(t, 1, testSessionWallet, 99), types.DelegationPermissions{}, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDelegationConflict))

	// Revoking the occupant frees the tuple.
	require.NoError(t, f.manager.RevokeDelegation(ctx, f.caller, occupant.ID))

	challenge, err := f.manager.CreateDelegationAuthorization(
		ctx, f.caller, f.linked, testSessionWallet, 1, types.DelegationPermissions{}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, occupant.ID, challenge.DelegationID)
}

func TestCreateDelegationAuthorization_Unowned(t *testing.T) {
	f := newManagerFixture(t)

	_, err := f.manager.CreateDelegationAuthorization(
		context.Background(), uuid.New(), f.linked, testSessionWallet, 1, types.DelegationPermissions{}, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
}

func TestStoreDelegation_ChallengeFlow(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	perms := types.DelegationPermissions{CanTransfer: boolPtr(true)}

	challenge, err := f.manager.CreateDelegationAuthorization(
		ctx, f.caller, f.linked, testSessionWallet, 1, perms, nil)
	require.NoError(t, err)

	sig := f.sign(t, 1, testSessionWallet, challenge.AuthorizationData.Nonce)
	d, err := f.manager.StoreDelegation(ctx, f.caller, f.linked, sig, perms, nil)
	require.NoError(t, err)

	assert.Equal(t, challenge.DelegationID, d.ID)
	assert.Equal(t, types.DelegationSigned, d.Status)
	require.NotNil(t, d.Signature)

	// The tuple is now taken.
	_, err = f.manager.StoreDelegation(ctx, f.caller, f.linked, sig, perms, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDelegationConflict))
}

func TestStoreDelegation_WithoutChallenge(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	sig := f.sign(t, 1, testSessionWallet, 7)
	d, err := f.manager.StoreDelegation(ctx, f.caller, f.linked, sig, types.DelegationPermissions{All: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.DelegationSigned, d.Status)
	assert.Equal(t, uint64(7), d.Nonce)
}

func TestStoreDelegation_WrongSigner(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	signed, err := ethtypes.SignSetCode(otherKey, ethtypes.SetCodeAuthorization{
		ChainID: *uint256.NewInt(1),
		Address: common.HexToAddress(testSessionWallet),
		Nonce:   42,
	})
	require.NoError(t, err)

	sig := types.SignedAuthorization{
		ChainID: 1,
		Address: testSessionWallet,
		Nonce:   42,
		YParity: signed.V,
		R:       hexutil.Encode(signed.R.Bytes()),
		S:       hexutil.Encode(signed.S.Bytes()),
	}

	_, err = f.manager.StoreDelegation(ctx, f.caller, f.linked, sig, types.DelegationPermissions{}, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidSignature))
	assert.Contains(t, err.Error(), "Invalid delegation signature")
	assert.Empty(t, f.store.delegations, "nothing may be written on signature mismatch")
}

func TestStoreDelegation_NonceMismatchWithPendingChallenge(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	challenge, err := f.manager.CreateDelegationAuthorization(
		ctx, f.caller, f.linked, testSessionWallet, 1, types.DelegationPermissions{}, nil)
	require.NoError(t, err)

	sig := f.sign(t, 1, testSessionWallet, challenge.AuthorizationData.Nonce+1)
	_, err = f.manager.StoreDelegation(ctx, f.caller, f.linked, sig, types.DelegationPermissions{}, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidSignature))
}

func TestActivateDelegation(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	sig := f.sign(t, 1, testSessionWallet, 1)
	d, err := f.manager.StoreDelegation(ctx, f.caller, f.linked, sig, types.DelegationPermissions{All: true}, nil)
	require.NoError(t, err)

	activated, err := f.manager.ActivateDelegation(ctx, f.caller, d.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DelegationActive, activated.Status)
	require.NotNil(t, activated.TransactionHash)
	assert.Equal(t, "0xabc", *activated.TransactionHash)

	// Activating again is a no-op.
	again, err := f.manager.ActivateDelegation(ctx, f.caller, d.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DelegationActive, again.Status)
}

func TestHasActiveDelegation(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	ok, err := f.manager.HasActiveDelegation(ctx, f.eoa.Hex(), testSessionWallet, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	sig := f.sign(t, 1, testSessionWallet, 1)
	d, err := f.manager.StoreDelegation(ctx, f.caller, f.linked, sig, types.DelegationPermissions{All: true}, nil)
	require.NoError(t, err)

	// Signed counts as usable for off-chain enforcement.
	ok, err = f.manager.HasActiveDelegation(ctx, f.eoa.Hex(), testSessionWallet, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	// A different chain does not match.
	ok, err = f.manager.HasActiveDelegation(ctx, f.eoa.Hex(), testSessionWallet, 137)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.manager.RevokeDelegation(ctx, f.caller, d.ID))
	ok, err = f.manager.HasActiveDelegation(ctx, f.eoa.Hex(), testSessionWallet, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasActiveDelegation_Expired(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	expired := time.Now().UTC().Add(-time.Second)
	d := &types.AccountDelegation{
		ID:               uuid.New(),
		LinkedAccountID:  f.linked,
		DelegatedAddress: strings.ToLower(testSessionWallet),
		ChainID:          1,
		Status:           types.DelegationSigned,
		ExpiresAt:        &expired,
	}
	f.store.delegations[d.ID] = d

	ok, err := f.manager.HasActiveDelegation(ctx, f.eoa.Hex(), testSessionWallet, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	isExpired, err := f.manager.IsDelegationExpired(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, isExpired)

	// Expiry is computed, never stored.
	assert.Equal(t, types.DelegationSigned, f.store.delegations[d.ID].Status)
}

func TestRevokeDelegation_Twice(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	sig := f.sign(t, 1, testSessionWallet, 1)
	d, err := f.manager.StoreDelegation(ctx, f.caller, f.linked, sig, types.DelegationPermissions{All: true}, nil)
	require.NoError(t, err)

	require.NoError(t, f.manager.RevokeDelegation(ctx, f.caller, d.ID))

	err = f.manager.RevokeDelegation(ctx, f.caller, d.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDelegationRevoked))
	assert.Contains(t, err.Error(), "already revoked")
}

func TestRevokeDelegation_Unowned(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	sig := f.sign(t, 1, testSessionWallet, 1)
	d, err := f.manager.StoreDelegation(ctx, f.caller, f.linked, sig, types.DelegationPermissions{All: true}, nil)
	require.NoError(t, err)

	err = f.manager.RevokeDelegation(ctx, uuid.New(), d.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
}
