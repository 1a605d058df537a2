package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/link-wallet/link-wallet/pkg/types"
)

// EthereumAddressPattern is the regex pattern for Ethereum addresses
var EthereumAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidateEthereumAddress validates an Ethereum address format
func ValidateEthereumAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if !EthereumAddressPattern.MatchString(address) {
		return fmt.Errorf("invalid Ethereum address format: must be 0x followed by 40 hex characters")
	}

	if !common.IsHexAddress(address) {
		return fmt.Errorf("invalid Ethereum address")
	}

	// Prevent sending to zero address (common mistake)
	if strings.ToLower(address) == "0x0000000000000000000000000000000000000000" {
		return fmt.Errorf("cannot send to zero address")
	}

	return nil
}

// ValidateChainID validates a chain ID
func ValidateChainID(chainID int64) error {
	if chainID <= 0 {
		return fmt.Errorf("chain ID must be positive")
	}
	return nil
}

// ValidateTransactionValue validates a transaction value
func ValidateTransactionValue(tx types.Transaction) error {
	if tx.Value != nil && tx.Value.Sign() < 0 {
		return fmt.Errorf("value cannot be negative")
	}
	return nil
}

// ValidateTransactionData validates transaction calldata size
func ValidateTransactionData(data []byte, maxDataSize int) error {
	if maxDataSize > 0 && len(data) > maxDataSize {
		return fmt.Errorf("transaction data too large: %d bytes > %d bytes max", len(data), maxDataSize)
	}
	return nil
}

// DefaultMaxDataSize caps meta-transaction calldata. 128 KiB is an order of
// magnitude above what any router or token call needs while still rejecting
// pathological payloads.
const DefaultMaxDataSize = 128 * 1024

// TransactionValidator checks the shape of a meta-transaction before any
// delegation permission evaluation happens. It knows nothing about the
// delegation itself.
type TransactionValidator struct {
	maxDataSize int
}

// NewTransactionValidator creates a validator. A maxDataSize of 0 falls back
// to DefaultMaxDataSize; pass a negative value to disable the size cap.
func NewTransactionValidator(maxDataSize int) *TransactionValidator {
	if maxDataSize == 0 {
		maxDataSize = DefaultMaxDataSize
	}
	return &TransactionValidator{maxDataSize: maxDataSize}
}

// ValidateMetaTransaction validates recipient, chain, value, and calldata.
func (v *TransactionValidator) ValidateMetaTransaction(tx types.Transaction) error {
	if err := ValidateEthereumAddress(tx.To); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}

	if err := ValidateChainID(tx.ChainID); err != nil {
		return fmt.Errorf("invalid chain ID: %w", err)
	}

	if err := ValidateTransactionValue(tx); err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}

	if v.maxDataSize > 0 {
		if err := ValidateTransactionData(tx.Data, v.maxDataSize); err != nil {
			return fmt.Errorf("invalid data: %w", err)
		}
	}

	return nil
}
