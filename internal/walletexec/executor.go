package walletexec

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/link-wallet/link-wallet/internal/eth"
	"github.com/link-wallet/link-wallet/pkg/types"
)

// activationGasLimit covers the intrinsic transaction cost plus one
// authorization tuple on the list.
const activationGasLimit = 120000

// SessionKeyStore loads encrypted session-wallet keys. Satisfied by
// storage.SessionKeyRepository.
type SessionKeyStore interface {
	GetByProfile(ctx context.Context, profileID uuid.UUID) (*types.SessionWalletKey, error)
}

// LinkedAccountStore resolves a delegation's linked account to its profile.
// Satisfied by storage.LinkedAccountRepository.
type LinkedAccountStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*types.LinkedAccount, error)
}

// ChainClients resolves the RPC client for a chain. Satisfied by
// eth.Registry.
type ChainClients interface {
	Client(chainID int64) (*eth.Client, bool)
}

// ProvisionedWallet is a freshly generated session wallet: the address plus
// the keystore-encrypted private key. The plaintext key is discarded before
// this struct is returned.
type ProvisionedWallet struct {
	Address         string
	EncryptedKey    []byte
	KeystoreBackend string
}

// Executor holds session-wallet custody: it generates keys, envelope-encrypts
// them, and signs and broadcasts transactions on the session wallet's behalf.
type Executor struct {
	keystore Keystore
	keys     SessionKeyStore
	linked   LinkedAccountStore
	clients  ChainClients
}

// NewExecutor creates a session-wallet executor.
func NewExecutor(keystore Keystore, keys SessionKeyStore, linked LinkedAccountStore, clients ChainClients) *Executor {
	return &Executor{
		keystore: keystore,
		keys:     keys,
		linked:   linked,
		clients:  clients,
	}
}

// GenerateSessionWallet mints a new secp256k1 key, encrypts it with the
// keystore, and returns the address plus ciphertext. The plaintext key is
// zeroed before returning.
func (e *Executor) GenerateSessionWallet(ctx context.Context) (*ProvisionedWallet, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session wallet key: %w", err)
	}
	defer zeroKey(privateKey)

	address := crypto.PubkeyToAddress(privateKey.PublicKey)

	keyBytes := crypto.FromECDSA(privateKey)
	encrypted, err := e.keystore.Encrypt(ctx, keyBytes)
	zeroBytes(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt session wallet key: %w", err)
	}

	return &ProvisionedWallet{
		Address:         address.Hex(),
		EncryptedKey:    encrypted,
		KeystoreBackend: e.keystore.Backend(),
	}, nil
}

// ExecuteDelegated signs and broadcasts tx from the session wallet of the
// delegation's profile. Permission checks happen upstream; this is the final
// custody step.
func (e *Executor) ExecuteDelegated(ctx context.Context, d *types.AccountDelegation, tx types.Transaction) (string, error) {
	client, ok := e.clients.Client(tx.ChainID)
	if !ok {
		return "", fmt.Errorf("no RPC client configured for chain %d", tx.ChainID)
	}

	privateKey, sessionAddress, err := e.loadSessionKey(ctx, d.LinkedAccountID)
	if err != nil {
		return "", err
	}
	defer zeroKey(privateKey)

	value := tx.Value
	if value == nil {
		value = big.NewInt(0)
	}

	nonce, err := client.PendingNonce(ctx, sessionAddress)
	if err != nil {
		return "", err
	}
	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return "", err
	}
	feeCap, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return "", err
	}
	gas, err := client.EstimateGas(ctx, sessionAddress, tx.To, value, tx.Data)
	if err != nil {
		return "", err
	}

	to := common.HexToAddress(tx.To)
	unsigned := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   big.NewInt(tx.ChainID),
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      tx.Data,
	})

	signed, err := ethtypes.SignTx(unsigned, ethtypes.LatestSignerForChainID(big.NewInt(tx.ChainID)), privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	return client.SendRawTransaction(ctx, signed)
}

// BroadcastActivation submits the delegation's signed authorization on-chain
// in a set-code transaction from the session wallet.
func (e *Executor) BroadcastActivation(ctx context.Context, d *types.AccountDelegation) (string, error) {
	if d.Signature == nil {
		return "", fmt.Errorf("delegation %s has no signature", d.ID)
	}
	client, ok := e.clients.Client(d.ChainID)
	if !ok {
		return "", fmt.Errorf("no RPC client configured for chain %d", d.ChainID)
	}

	auth, err := toSetCodeAuthorization(d.Signature)
	if err != nil {
		return "", err
	}

	privateKey, sessionAddress, err := e.loadSessionKey(ctx, d.LinkedAccountID)
	if err != nil {
		return "", err
	}
	defer zeroKey(privateKey)

	nonce, err := client.PendingNonce(ctx, sessionAddress)
	if err != nil {
		return "", err
	}
	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return "", err
	}
	feeCap, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return "", err
	}

	tip, overflow := uint256.FromBig(tipCap)
	if overflow {
		return "", fmt.Errorf("gas tip cap overflows")
	}
	fee, overflow := uint256.FromBig(feeCap)
	if overflow {
		return "", fmt.Errorf("gas fee cap overflows")
	}

	unsigned := ethtypes.NewTx(&ethtypes.SetCodeTx{
		ChainID:   uint256.NewInt(uint64(d.ChainID)),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: fee,
		Gas:       activationGasLimit,
		To:        common.HexToAddress(sessionAddress),
		AuthList:  []ethtypes.SetCodeAuthorization{auth},
	})

	signed, err := ethtypes.SignTx(unsigned, ethtypes.LatestSignerForChainID(big.NewInt(d.ChainID)), privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign activation transaction: %w", err)
	}

	return client.SendRawTransaction(ctx, signed)
}

// loadSessionKey resolves the session wallet of the delegation's profile and
// decrypts its key.
func (e *Executor) loadSessionKey(ctx context.Context, linkedAccountID uuid.UUID) (*ecdsa.PrivateKey, string, error) {
	la, err := e.linked.GetByID(ctx, linkedAccountID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load linked account: %w", err)
	}
	if la == nil {
		return nil, "", fmt.Errorf("linked account %s not found", linkedAccountID)
	}

	key, err := e.keys.GetByProfile(ctx, la.ProfileID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load session wallet key: %w", err)
	}
	if key == nil {
		return nil, "", fmt.Errorf("profile %s has no session wallet", la.ProfileID)
	}

	keyBytes, err := e.keystore.Decrypt(ctx, key.EncryptedKey)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decrypt session wallet key: %w", err)
	}

	privateKey, err := crypto.ToECDSA(keyBytes)
	zeroBytes(keyBytes)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse session wallet key: %w", err)
	}
	return privateKey, key.Address, nil
}

func toSetCodeAuthorization(sig *types.SignedAuthorization) (ethtypes.SetCodeAuthorization, error) {
	r, err := hexutil.Decode(sig.R)
	if err != nil {
		return ethtypes.SetCodeAuthorization{}, fmt.Errorf("malformed signature r: %w", err)
	}
	s, err := hexutil.Decode(sig.S)
	if err != nil {
		return ethtypes.SetCodeAuthorization{}, fmt.Errorf("malformed signature s: %w", err)
	}
	return ethtypes.SetCodeAuthorization{
		ChainID: *uint256.NewInt(uint64(sig.ChainID)),
		Address: common.HexToAddress(sig.Address),
		Nonce:   sig.Nonce,
		V:       sig.YParity,
		R:       *new(uint256.Int).SetBytes(r),
		S:       *new(uint256.Int).SetBytes(s),
	}, nil
}

// zeroKey clears the scalar of a private key after use.
func zeroKey(privateKey *ecdsa.PrivateKey) {
	if privateKey != nil && privateKey.D != nil {
		privateKey.D.SetInt64(0)
	}
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
