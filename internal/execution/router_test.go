package execution

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/link-wallet/link-wallet/pkg/errors"
	"github.com/link-wallet/link-wallet/pkg/types"
)

const (
	sessionWallet = "0x00000000000000000000000000000000000000aa"
	delegatorEOA  = "0x00000000000000000000000000000000000000bb"
)

type fakeAuthority struct {
	usable      map[string]bool // delegator|session|chain
	delegations map[uuid.UUID]*types.AccountDelegation
}

func authorityKey(delegator, session string, chainID int64) string {
	return fmt.Sprintf("%s|%s|%d", strings.ToLower(delegator), strings.ToLower(session), chainID)
}

func (f *fakeAuthority) HasActiveDelegation(_ context.Context, delegator, session string, chainID int64) (bool, error) {
	return f.usable[authorityKey(delegator, session, chainID)], nil
}

func (f *fakeAuthority) GetDelegation(_ context.Context, _, delegationID uuid.UUID) (*types.AccountDelegation, error) {
	d := f.delegations[delegationID]
	if d == nil {
		return nil, apperrors.NotFound("delegation", delegationID.String())
	}
	return d, nil
}

type fakeProfiles struct{ profiles map[uuid.UUID]*types.Profile }

func (f *fakeProfiles) GetByID(_ context.Context, id uuid.UUID) (*types.Profile, error) {
	return f.profiles[id], nil
}

type fakeLinkedLister struct{ accounts []*types.LinkedAccount }

func (f *fakeLinkedLister) GetActiveByProfile(context.Context, uuid.UUID) ([]*types.LinkedAccount, error) {
	return f.accounts, nil
}

type fakeExecutor struct {
	calls  int
	lastTx types.Transaction
	err    error
}

func (f *fakeExecutor) ExecuteDelegated(_ context.Context, _ *types.AccountDelegation, tx types.Transaction) (string, error) {
	f.calls++
	f.lastTx = tx
	if f.err != nil {
		return "", f.err
	}
	return "0xhash", nil
}

type fakeProber struct {
	balances map[string]*big.Int
	err      error
}

func (f *fakeProber) Balance(_ context.Context, _ int64, address string) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.balances[strings.ToLower(address)], nil
}

type fakeAudit struct{ entries []*types.AuditLog }

func (f *fakeAudit) Create(_ context.Context, log *types.AuditLog) error {
	f.entries = append(f.entries, log)
	return nil
}

type routerFixture struct {
	authority *fakeAuthority
	executor  *fakeExecutor
	audit     *fakeAudit
	router    *Router
	profileID uuid.UUID
}

func newRouterFixture(prober BalanceProber) *routerFixture {
	profileID := uuid.New()
	authority := &fakeAuthority{
		usable:      make(map[string]bool),
		delegations: make(map[uuid.UUID]*types.AccountDelegation),
	}
	executor := &fakeExecutor{}
	audit := &fakeAudit{}

	profiles := &fakeProfiles{profiles: map[uuid.UUID]*types.Profile{
		profileID: {ID: profileID, SessionWalletAddress: sessionWallet},
	}}
	linked := &fakeLinkedLister{accounts: []*types.LinkedAccount{
		{ID: uuid.New(), ProfileID: profileID, Address: delegatorEOA, ChainID: 1, IsActive: true},
	}}

	return &routerFixture{
		authority: authority,
		executor:  executor,
		audit:     audit,
		router:    NewRouter(authority, profiles, linked, executor, nil, prober, audit),
		profileID: profileID,
	}
}

func (f *routerFixture) addDelegation(status types.DelegationStatus, perms types.DelegationPermissions, expiresAt *time.Time) uuid.UUID {
	id := uuid.New()
	f.authority.delegations[id] = &types.AccountDelegation{
		ID:               id,
		LinkedAccountID:  uuid.New(),
		DelegatedAddress: sessionWallet,
		ChainID:          1,
		Permissions:      perms,
		Status:           status,
		ExpiresAt:        expiresAt,
	}
	return id
}

func TestDetermineBestExecutionPath(t *testing.T) {
	f := newRouterFixture(nil)
	ctx := context.Background()
	tx := types.Transaction{To: delegatorEOA, Value: big.NewInt(1), ChainID: 1}

	decision, err := f.router.DetermineBestExecutionPath(ctx, f.profileID, tx)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionPathDirect, decision.Path)

	f.authority.usable[authorityKey(delegatorEOA, sessionWallet, 1)] = true

	decision, err = f.router.DetermineBestExecutionPath(ctx, f.profileID, tx)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionPathDelegated, decision.Path)
	assert.Equal(t, delegatorEOA, decision.DelegatorAddress)

	// The delegation is chain-scoped.
	other := types.Transaction{To: delegatorEOA, Value: big.NewInt(1), ChainID: 137}
	decision, err = f.router.DetermineBestExecutionPath(ctx, f.profileID, other)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionPathDirect, decision.Path)
}

func TestDetermineBestExecutionPath_UnknownProfile(t *testing.T) {
	f := newRouterFixture(nil)

	_, err := f.router.DetermineBestExecutionPath(context.Background(), uuid.New(), types.Transaction{ChainID: 1})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
}

func TestDetermineBestExecutionPath_BalanceProbing(t *testing.T) {
	prober := &fakeProber{balances: map[string]*big.Int{
		strings.ToLower(delegatorEOA): big.NewInt(5),
	}}
	f := newRouterFixture(prober)
	f.authority.usable[authorityKey(delegatorEOA, sessionWallet, 1)] = true
	ctx := context.Background()

	// Value within the delegator's balance keeps the delegated path.
	decision, err := f.router.DetermineBestExecutionPath(ctx, f.profileID, types.Transaction{Value: big.NewInt(5), ChainID: 1})
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionPathDelegated, decision.Path)

	// Value above the balance falls back to direct.
	decision, err = f.router.DetermineBestExecutionPath(ctx, f.profileID, types.Transaction{Value: big.NewInt(6), ChainID: 1})
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionPathDirect, decision.Path)

	// A failing probe never vetoes the path.
	prober.err = fmt.Errorf("rpc down")
	decision, err = f.router.DetermineBestExecutionPath(ctx, f.profileID, types.Transaction{Value: big.NewInt(6), ChainID: 1})
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionPathDelegated, decision.Path)
}

func TestExecuteWithDelegation(t *testing.T) {
	f := newRouterFixture(nil)
	ctx := context.Background()
	caller := uuid.New()
	all := types.DelegationPermissions{All: true}

	id := f.addDelegation(types.DelegationSigned, all, nil)
	tx := types.Transaction{To: delegatorEOA, Value: big.NewInt(1), ChainID: 1}

	hash, err := f.router.ExecuteWithDelegation(ctx, caller, id, tx)
	require.NoError(t, err)
	assert.Equal(t, "0xhash", hash)
	assert.Equal(t, 1, f.executor.calls)

	require.Len(t, f.audit.entries, 1)
	entry := f.audit.entries[0]
	assert.Equal(t, "delegation.execute", entry.Action)
	assert.Equal(t, id.String(), entry.ResourceID)
	require.NotNil(t, entry.TxHash)
	assert.Equal(t, "0xhash", *entry.TxHash)
}

func TestExecuteWithDelegation_Expired(t *testing.T) {
	f := newRouterFixture(nil)
	past := time.Now().UTC().Add(-2 * time.Second)
	id := f.addDelegation(types.DelegationSigned, types.DelegationPermissions{All: true}, &past)

	_, err := f.router.ExecuteWithDelegation(context.Background(), uuid.New(), id, types.Transaction{ChainID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
	assert.Zero(t, f.executor.calls)

	// Expiry is monotonic: the same record keeps failing.
	_, err = f.router.ExecuteWithDelegation(context.Background(), uuid.New(), id, types.Transaction{ChainID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestExecuteWithDelegation_Revoked(t *testing.T) {
	f := newRouterFixture(nil)
	id := f.addDelegation(types.DelegationRevoked, types.DelegationPermissions{All: true}, nil)

	_, err := f.router.ExecuteWithDelegation(context.Background(), uuid.New(), id, types.Transaction{ChainID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "revoked")
	assert.Zero(t, f.executor.calls)
}

func TestExecuteWithDelegation_PendingNotUsable(t *testing.T) {
	f := newRouterFixture(nil)
	id := f.addDelegation(types.DelegationPending, types.DelegationPermissions{All: true}, nil)

	_, err := f.router.ExecuteWithDelegation(context.Background(), uuid.New(), id, types.Transaction{ChainID: 1})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
	assert.Zero(t, f.executor.calls)
}

func TestExecuteWithDelegation_PermissionDenied(t *testing.T) {
	f := newRouterFixture(nil)
	id := f.addDelegation(types.DelegationSigned, types.DelegationPermissions{
		CanTransfer:         boolPtrRouter(true),
		MaxTransactionValue: strPtrRouter("10"),
	}, nil)

	_, err := f.router.ExecuteWithDelegation(context.Background(), uuid.New(), id,
		types.Transaction{To: delegatorEOA, Value: big.NewInt(11), ChainID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum allowed")
	assert.Zero(t, f.executor.calls)
	assert.Empty(t, f.audit.entries, "denied executions leave no execution audit event")
}

func boolPtrRouter(b bool) *bool    { return &b }
func strPtrRouter(s string) *string { return &s }
