package validation

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/link-wallet/link-wallet/pkg/types"
)

func TestValidateEthereumAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid lowercase address",
			address: "0x742d35cc6634c0532925a3b844bc454e4438f44e",
			wantErr: false,
		},
		{
			name:    "valid uppercase address",
			address: "0x742D35CC6634C0532925A3B844BC454E4438F44E",
			wantErr: false,
		},
		{
			name:    "valid mixed case address",
			address: "0x742d35Cc6634C0532925a3b844Bc454e4438f44e",
			wantErr: false,
		},
		{
			name:    "empty address",
			address: "",
			wantErr: true,
			errMsg:  "address cannot be empty",
		},
		{
			name:    "missing 0x prefix",
			address: "742d35cc6634c0532925a3b844bc454e4438f44e",
			wantErr: true,
			errMsg:  "invalid Ethereum address format",
		},
		{
			name:    "too short address",
			address: "0x742d35cc6634c0532925a3b844bc454e4438f4",
			wantErr: true,
			errMsg:  "invalid Ethereum address format",
		},
		{
			name:    "too long address",
			address: "0x742d35cc6634c0532925a3b844bc454e4438f44e00",
			wantErr: true,
			errMsg:  "invalid Ethereum address format",
		},
		{
			name:    "invalid characters",
			address: "0x742d35cc6634c0532925a3b844bc454e4438fXYZ",
			wantErr: true,
			errMsg:  "invalid Ethereum address format",
		},
		{
			name:    "zero address",
			address: "0x0000000000000000000000000000000000000000",
			wantErr: true,
			errMsg:  "cannot send to zero address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEthereumAddress(tt.address)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateChainID(t *testing.T) {
	assert.NoError(t, ValidateChainID(1))
	assert.NoError(t, ValidateChainID(11155111))
	assert.Error(t, ValidateChainID(0))
	assert.Error(t, ValidateChainID(-137))
}

func TestValidateTransactionValue(t *testing.T) {
	assert.NoError(t, ValidateTransactionValue(types.Transaction{}))
	assert.NoError(t, ValidateTransactionValue(types.Transaction{Value: big.NewInt(0)}))
	assert.NoError(t, ValidateTransactionValue(types.Transaction{Value: big.NewInt(1)}))

	err := ValidateTransactionValue(types.Transaction{Value: big.NewInt(-1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be negative")
}

func TestValidateTransactionData(t *testing.T) {
	assert.NoError(t, ValidateTransactionData(nil, 0))
	assert.NoError(t, ValidateTransactionData(make([]byte, 100), 100))
	assert.NoError(t, ValidateTransactionData(make([]byte, 1000), 0))

	err := ValidateTransactionData(make([]byte, 101), 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transaction data too large")
}

func TestValidateMetaTransaction(t *testing.T) {
	recipient := "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"

	tests := []struct {
		name   string
		tx     types.Transaction
		errMsg string
	}{
		{
			name: "plain transfer",
			tx:   types.Transaction{To: recipient, Value: big.NewInt(1), ChainID: 1},
		},
		{
			name: "contract call with calldata",
			tx:   types.Transaction{To: recipient, ChainID: 11155111, Data: make([]byte, 4096)},
		},
		{
			name:   "bad recipient",
			tx:     types.Transaction{To: "not-an-address", ChainID: 1},
			errMsg: "invalid recipient address",
		},
		{
			name:   "zero recipient",
			tx:     types.Transaction{To: "0x0000000000000000000000000000000000000000", ChainID: 1},
			errMsg: "cannot send to zero address",
		},
		{
			name:   "zero chain",
			tx:     types.Transaction{To: recipient, ChainID: 0},
			errMsg: "invalid chain ID",
		},
		{
			name:   "negative value",
			tx:     types.Transaction{To: recipient, ChainID: 1, Value: big.NewInt(-5)},
			errMsg: "invalid value",
		},
		{
			name:   "oversized calldata",
			tx:     types.Transaction{To: recipient, ChainID: 1, Data: make([]byte, DefaultMaxDataSize+1)},
			errMsg: "invalid data",
		},
	}

	v := NewTransactionValidator(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateMetaTransaction(tt.tx)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTransactionValidator_DisabledSizeCap(t *testing.T) {
	v := NewTransactionValidator(-1)
	tx := types.Transaction{
		To:      "0x742d35Cc6634C0532925a3b844Bc454e4438f44e",
		ChainID: 1,
		Data:    make([]byte, DefaultMaxDataSize+1),
	}
	assert.NoError(t, v.ValidateMetaTransaction(tx))
}

func TestEthereumAddressPattern(t *testing.T) {
	assert.True(t, EthereumAddressPattern.MatchString("0x"+strings.Repeat("a", 40)))
	assert.False(t, EthereumAddressPattern.MatchString("0x"+strings.Repeat("a", 39)))
	assert.False(t, EthereumAddressPattern.MatchString(strings.Repeat("a", 42)))
}
