package delegation

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	apperrors "github.com/link-wallet/link-wallet/pkg/errors"
	"github.com/link-wallet/link-wallet/pkg/types"
)

// setCodeMagic prefixes the authorization preimage (EIP-7702).
const setCodeMagic = byte(0x05)

// AuthorizationDigest computes keccak256(0x05 || rlp([chain_id, address, nonce])),
// the digest the delegator signs off-chain. It matches the set-code
// authorization hash, so signatures verify with standard tooling.
func AuthorizationDigest(auth types.AuthorizationData) (common.Hash, error) {
	if auth.ChainID <= 0 {
		return common.Hash{}, apperrors.NewWithDetail(
			apperrors.ErrCodeValidation,
			"Invalid chain id",
			fmt.Sprintf("chain_id: %d", auth.ChainID),
			http.StatusBadRequest,
		)
	}
	if !common.IsHexAddress(auth.Address) {
		return common.Hash{}, apperrors.NewWithDetail(
			apperrors.ErrCodeValidation,
			"Invalid delegated address",
			auth.Address,
			http.StatusBadRequest,
		)
	}

	var buf bytes.Buffer
	buf.WriteByte(setCodeMagic)
	payload := []interface{}{
		uint256.NewInt(uint64(auth.ChainID)),
		common.HexToAddress(auth.Address),
		auth.Nonce,
	}
	if err := rlp.Encode(&buf, payload); err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode authorization: %w", err)
	}
	return crypto.Keccak256Hash(buf.Bytes()), nil
}

// RecoverAuthority recovers the signer address from a signed authorization.
// Any malformed field or unrecoverable signature yields an invalid-signature
// error; no distinction is exposed to the caller.
func RecoverAuthority(sig types.SignedAuthorization) (common.Address, error) {
	if sig.ChainID <= 0 || !common.IsHexAddress(sig.Address) {
		return common.Address{}, apperrors.InvalidDelegationSignature("malformed authorization tuple")
	}
	if sig.YParity > 1 {
		return common.Address{}, apperrors.InvalidDelegationSignature("y_parity must be 0 or 1")
	}
	r, err := parseSignatureWord(sig.R)
	if err != nil {
		return common.Address{}, apperrors.InvalidDelegationSignature("malformed r value")
	}
	s, err := parseSignatureWord(sig.S)
	if err != nil {
		return common.Address{}, apperrors.InvalidDelegationSignature("malformed s value")
	}

	auth := ethtypes.SetCodeAuthorization{
		ChainID: *uint256.NewInt(uint64(sig.ChainID)),
		Address: common.HexToAddress(sig.Address),
		Nonce:   sig.Nonce,
		V:       sig.YParity,
		R:       *r,
		S:       *s,
	}
	signer, err := auth.Authority()
	if err != nil {
		return common.Address{}, apperrors.InvalidDelegationSignature(err.Error())
	}
	return signer, nil
}

func parseSignatureWord(word string) (*uint256.Int, error) {
	raw, err := hexutil.Decode(word)
	if err != nil {
		return nil, err
	}
	if len(raw) > 32 {
		return nil, fmt.Errorf("value longer than 32 bytes")
	}
	return new(uint256.Int).SetBytes(raw), nil
}
