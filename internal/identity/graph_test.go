package identity

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/link-wallet/link-wallet/internal/storage"
	apperrors "github.com/link-wallet/link-wallet/pkg/errors"
	"github.com/link-wallet/link-wallet/pkg/types"
)

// memGraphStore is an in-memory TxRunner + AccountStore + LinkStore +
// ProfileStore. Its transactions run one at a time, matching the
// serializability the real store provides.
type memGraphStore struct {
	txMu     sync.Mutex
	accounts map[uuid.UUID]*types.Account
	links    map[[2]uuid.UUID]*types.IdentityLink
	profiles map[uuid.UUID]*types.Profile
	members  map[uuid.UUID][]uuid.UUID // profileID -> accountIDs
}

func newMemGraphStore() *memGraphStore {
	return &memGraphStore{
		accounts: make(map[uuid.UUID]*types.Account),
		links:    make(map[[2]uuid.UUID]*types.IdentityLink),
		profiles: make(map[uuid.UUID]*types.Profile),
		members:  make(map[uuid.UUID][]uuid.UUID),
	}
}

func pairKey(a, b uuid.UUID) [2]uuid.UUID {
	if a.String() > b.String() {
		a, b = b, a
	}
	return [2]uuid.UUID{a, b}
}

func (s *memGraphStore) addAccount() uuid.UUID {
	id := uuid.New()
	s.accounts[id] = &types.Account{ID: id, Type: types.AccountTypeWallet, Identifier: id.String()}
	return id
}

func (s *memGraphStore) addProfile(accountIDs ...uuid.UUID) uuid.UUID {
	id := uuid.New()
	s.profiles[id] = &types.Profile{ID: id, SessionWalletAddress: "0x" + id.String()[:8]}
	s.members[id] = append(s.members[id], accountIDs...)
	return id
}

func (s *memGraphStore) GetByID(_ context.Context, id uuid.UUID) (*types.Account, error) {
	return s.accounts[id], nil
}

func (s *memGraphStore) Exists(_ context.Context, ids ...uuid.UUID) (bool, error) {
	for _, id := range ids {
		if s.accounts[id] == nil {
			return false, nil
		}
	}
	return true, nil
}

func (s *memGraphStore) WithSerializableTx(_ context.Context, fn func(tx pgx.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(nil)
}

func (s *memGraphStore) UpsertTx(_ context.Context, _ storage.DBTX, link *types.IdentityLink) error {
	key := pairKey(link.AccountA, link.AccountB)
	link.AccountA, link.AccountB = key[0], key[1]
	s.links[key] = link
	return nil
}

func (s *memGraphStore) GetByPairTx(_ context.Context, _ storage.DBTX, a, b uuid.UUID) (*types.IdentityLink, error) {
	return s.links[pairKey(a, b)], nil
}

func (s *memGraphStore) UpdatePrivacyMode(_ context.Context, a, b uuid.UUID, mode types.PrivacyMode) (bool, error) {
	link, ok := s.links[pairKey(a, b)]
	if !ok {
		return false, nil
	}
	link.PrivacyMode = mode
	return true, nil
}

func (s *memGraphStore) Delete(_ context.Context, a, b uuid.UUID) (bool, error) {
	key := pairKey(a, b)
	if _, ok := s.links[key]; !ok {
		return false, nil
	}
	delete(s.links, key)
	return true, nil
}

func (s *memGraphStore) GetClosureEdges(_ context.Context, ids []uuid.UUID) ([]*types.IdentityLink, error) {
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []*types.IdentityLink
	for _, link := range s.links {
		if !link.PrivacyMode.InClosure() {
			continue
		}
		if want[link.AccountA] || want[link.AccountB] {
			out = append(out, link)
		}
	}
	return out, nil
}

func (s *memGraphStore) GetClosureEdgesTx(ctx context.Context, _ storage.DBTX, ids []uuid.UUID) ([]*types.IdentityLink, error) {
	return s.GetClosureEdges(ctx, ids)
}

func (s *memGraphStore) GetByAccount(_ context.Context, id uuid.UUID) ([]*types.IdentityLink, error) {
	var out []*types.IdentityLink
	for _, link := range s.links {
		if link.AccountA == id || link.AccountB == id {
			out = append(out, link)
		}
	}
	return out, nil
}

func (s *memGraphStore) GetByAccountIDs(_ context.Context, ids []uuid.UUID) ([]*types.Profile, error) {
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	// Intentionally returns duplicates when a profile is reachable via
	// several accounts, to exercise service-side dedup.
	var out []*types.Profile
	for pid, accounts := range s.members {
		for _, aid := range accounts {
			if want[aid] {
				out = append(out, s.profiles[pid])
			}
		}
	}
	return out, nil
}

func sortIDs(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	sort.Strings(out)
	return out
}

func TestGetLinkedAccounts_Closure(t *testing.T) {
	store := newMemGraphStore()
	graph := NewGraph(store, store, store, store)
	ctx := context.Background()

	a := store.addAccount()
	b := store.addAccount()
	c := store.addAccount()
	d := store.addAccount()
	e := store.addAccount()

	_, err := graph.LinkAccounts(ctx, a, b, types.PrivacyLinked)
	require.NoError(t, err)
	_, err = graph.LinkAccounts(ctx, b, c, types.PrivacyLinked)
	require.NoError(t, err)
	_, err = graph.LinkAccounts(ctx, c, d, types.PrivacyPartial)
	require.NoError(t, err)

	got, err := graph.GetLinkedAccounts(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, sortIDs([]uuid.UUID{a, b, c, d}), sortIDs(got))

	// An isolated edge is excluded from the closure in both directions.
	_, err = graph.LinkAccounts(ctx, d, e, types.PrivacyIsolated)
	require.NoError(t, err)

	got, err = graph.GetLinkedAccounts(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, sortIDs([]uuid.UUID{a, b, c, d}), sortIDs(got))

	got, err = graph.GetLinkedAccounts(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, sortIDs([]uuid.UUID{e}), sortIDs(got), "isolated peer sees only itself")
}

func TestGetLinkedAccounts_NoEdgesReturnsStart(t *testing.T) {
	store := newMemGraphStore()
	graph := NewGraph(store, store, store, store)

	a := store.addAccount()
	got, err := graph.GetLinkedAccounts(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a}, got)
}

func TestGetLinkedAccounts_UnknownAccount(t *testing.T) {
	store := newMemGraphStore()
	graph := NewGraph(store, store, store, store)

	_, err := graph.GetLinkedAccounts(context.Background(), uuid.New())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
}

func TestLinkAccounts_CycleRejected(t *testing.T) {
	store := newMemGraphStore()
	graph := NewGraph(store, store, store, store)
	ctx := context.Background()

	a := store.addAccount()
	b := store.addAccount()
	c := store.addAccount()

	_, err := graph.LinkAccounts(ctx, a, b, types.PrivacyLinked)
	require.NoError(t, err)
	_, err = graph.LinkAccounts(ctx, b, c, types.PrivacyLinked)
	require.NoError(t, err)

	_, err = graph.LinkAccounts(ctx, c, a, types.PrivacyLinked)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeCircularLink))
	assert.Contains(t, err.Error(), "circular")

	// An isolated edge between the same pair does not close a closure
	// cycle and is accepted.
	_, err = graph.LinkAccounts(ctx, c, a, types.PrivacyIsolated)
	assert.NoError(t, err)
}

// Two in-flight links that would jointly close a cycle must not both commit:
// the reachability check and the insert share one transaction, so whichever
// link lands second observes the first edge and is rejected.
func TestLinkAccounts_ConcurrentCycleRejected(t *testing.T) {
	store := newMemGraphStore()
	graph := NewGraph(store, store, store, store)
	ctx := context.Background()

	a := store.addAccount()
	b := store.addAccount()
	c := store.addAccount()

	_, err := graph.LinkAccounts(ctx, a, b, types.PrivacyLinked)
	require.NoError(t, err)

	// a-c and b-c are individually fine; together with a-b they form the
	// cycle a-b-c.
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, pair := range [][2]uuid.UUID{{a, c}, {b, c}} {
		wg.Add(1)
		go func(x, y uuid.UUID) {
			defer wg.Done()
			_, err := graph.LinkAccounts(ctx, x, y, types.PrivacyLinked)
			errs <- err
		}(pair[0], pair[1])
	}
	wg.Wait()
	close(errs)

	var failures int
	for err := range errs {
		if err != nil {
			failures++
			assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeCircularLink))
		}
	}
	assert.Equal(t, 1, failures, "exactly one of the concurrent links must be rejected")
	assert.Len(t, store.links, 2)
}

func TestLinkAccounts_SelfLinkRejected(t *testing.T) {
	store := newMemGraphStore()
	graph := NewGraph(store, store, store, store)

	a := store.addAccount()
	_, err := graph.LinkAccounts(context.Background(), a, a, types.PrivacyLinked)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
}

func TestLinkAccounts_ExistingPairUpdatesMode(t *testing.T) {
	store := newMemGraphStore()
	graph := NewGraph(store, store, store, store)
	ctx := context.Background()

	a := store.addAccount()
	b := store.addAccount()

	_, err := graph.LinkAccounts(ctx, a, b, types.PrivacyLinked)
	require.NoError(t, err)

	// Re-linking the pair is an update, not a cycle conflict.
	link, err := graph.LinkAccounts(ctx, b, a, types.PrivacyPartial)
	require.NoError(t, err)
	assert.Equal(t, types.PrivacyPartial, link.PrivacyMode)
}

func TestUpdateLinkPrivacy(t *testing.T) {
	store := newMemGraphStore()
	graph := NewGraph(store, store, store, store)
	ctx := context.Background()

	a := store.addAccount()
	b := store.addAccount()
	c := store.addAccount()

	_, err := graph.LinkAccounts(ctx, a, b, types.PrivacyLinked)
	require.NoError(t, err)

	require.NoError(t, graph.UpdateLinkPrivacy(ctx, a, b, types.PrivacyIsolated))

	got, err := graph.GetLinkedAccounts(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a}, got, "isolating the edge removes b from the closure")

	err = graph.UpdateLinkPrivacy(ctx, a, c, types.PrivacyLinked)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
}

func TestUnlinkAccounts(t *testing.T) {
	store := newMemGraphStore()
	graph := NewGraph(store, store, store, store)
	ctx := context.Background()

	a := store.addAccount()
	b := store.addAccount()

	_, err := graph.LinkAccounts(ctx, a, b, types.PrivacyLinked)
	require.NoError(t, err)

	require.NoError(t, graph.UnlinkAccounts(ctx, a, b))

	err = graph.UnlinkAccounts(ctx, a, b)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))

	// After unlinking, re-linking is allowed again.
	_, err = graph.LinkAccounts(ctx, a, b, types.PrivacyLinked)
	assert.NoError(t, err)
}

func TestGetAccessibleProfiles_Dedup(t *testing.T) {
	store := newMemGraphStore()
	graph := NewGraph(store, store, store, store)
	ctx := context.Background()

	a := store.addAccount()
	b := store.addAccount()
	c := store.addAccount()

	_, err := graph.LinkAccounts(ctx, a, b, types.PrivacyLinked)
	require.NoError(t, err)
	_, err = graph.LinkAccounts(ctx, b, c, types.PrivacyPartial)
	require.NoError(t, err)

	// One profile bound to two closure members, one bound to a single
	// member, and one unreachable.
	shared := store.addProfile(b, c)
	single := store.addProfile(a)
	store.addProfile(store.addAccount())

	profiles, err := graph.GetAccessibleProfiles(ctx, a)
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	ids := []uuid.UUID{profiles[0].ID, profiles[1].ID}
	assert.ElementsMatch(t, []uuid.UUID{shared, single}, ids)
}
