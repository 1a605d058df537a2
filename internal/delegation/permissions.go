package delegation

import (
	"encoding/hex"
	"math/big"
	"net/http"
	"strings"

	apperrors "github.com/link-wallet/link-wallet/pkg/errors"
	"github.com/link-wallet/link-wallet/pkg/types"
)

// Selectors the evaluator recognizes. Transfer and approval cover ERC-20;
// the swap set covers the common Uniswap v2/v3 router entrypoints.
const (
	selectorTransfer     = "a9059cbb" // transfer(address,uint256)
	selectorTransferFrom = "23b872dd" // transferFrom(address,address,uint256)
	selectorApprove      = "095ea7b3" // approve(address,uint256)
)

var swapSelectors = map[string]bool{
	"38ed1739": true, // swapExactTokensForTokens
	"8803dbee": true, // swapTokensForExactTokens
	"7ff36ab5": true, // swapExactETHForTokens
	"18cbafe5": true, // swapExactTokensForETH
	"414bf389": true, // exactInputSingle (v3 router)
	"c04b8d59": true, // exactInput (v3 router)
	"04e45aaf": true, // exactInputSingle (router 2)
	"5ae401dc": true, // multicall(uint256,bytes[])
}

type txAction int

const (
	actionTransfer txAction = iota
	actionApprove
	actionSwap
	actionContract
)

func (a txAction) String() string {
	switch a {
	case actionTransfer:
		return "token transfers"
	case actionApprove:
		return "approvals"
	case actionSwap:
		return "swaps"
	default:
		return "contract interactions"
	}
}

// classifyCallData buckets a transaction by its leading 4-byte selector.
// Empty call data is a pure value transfer. This is selector sniffing, not an
// authoritative method allow-list: an unknown selector falls through to the
// generic contract-interaction bucket and the allowed-contracts check.
func classifyCallData(data []byte) txAction {
	if len(data) == 0 {
		return actionTransfer
	}
	if len(data) < 4 {
		return actionContract
	}
	switch sel := hex.EncodeToString(data[:4]); {
	case sel == selectorTransfer || sel == selectorTransferFrom:
		return actionTransfer
	case sel == selectorApprove:
		return actionApprove
	case swapSelectors[sel]:
		return actionSwap
	default:
		return actionContract
	}
}

// CheckPermission evaluates whether perms authorizes tx. A nil return means
// authorized; every denial is an AppError naming the refused action.
func CheckPermission(perms types.DelegationPermissions, tx types.Transaction) error {
	// Legacy full-trust delegations carry only the All flag.
	if perms.CanTransfer == nil && perms.All {
		return nil
	}

	if len(perms.AllowedChains) > 0 && !containsChain(perms.AllowedChains, tx.ChainID) {
		return apperrors.ChainNotAllowed(tx.ChainID)
	}

	if perms.MaxTransactionValue != nil && tx.Value != nil {
		maxValue, ok := new(big.Int).SetString(*perms.MaxTransactionValue, 10)
		if !ok {
			return apperrors.NewWithDetail(
				apperrors.ErrCodeValidation,
				"Invalid max transaction value",
				*perms.MaxTransactionValue,
				http.StatusBadRequest,
			)
		}
		if tx.Value.Cmp(maxValue) > 0 {
			return apperrors.ValueCapExceeded(tx.Value.String(), maxValue.String())
		}
	}

	action := classifyCallData(tx.Data)
	switch action {
	case actionTransfer:
		if !granted(perms.CanTransfer) {
			return apperrors.NotAuthorizedFor(action.String())
		}
	case actionApprove:
		// Approvals fall back to the transfer grant when no distinct
		// approval grant is present.
		flag := perms.CanApprove
		if flag == nil {
			flag = perms.CanTransfer
		}
		if !granted(flag) {
			return apperrors.NotAuthorizedFor(action.String())
		}
	case actionSwap:
		if !granted(perms.CanSwap) {
			return apperrors.NotAuthorizedFor(action.String())
		}
	default:
		if !granted(perms.CanInteractWithContracts) {
			return apperrors.NotAuthorizedFor(action.String())
		}
		if len(perms.AllowedContracts) > 0 && !containsAddress(perms.AllowedContracts, tx.To) {
			return apperrors.NotAuthorizedFor("contract " + strings.ToLower(tx.To))
		}
	}
	return nil
}

func granted(flag *bool) bool {
	return flag != nil && *flag
}

func containsChain(chains []int64, chainID int64) bool {
	for _, c := range chains {
		if c == chainID {
			return true
		}
	}
	return false
}

func containsAddress(addresses []string, addr string) bool {
	for _, a := range addresses {
		if strings.EqualFold(a, addr) {
			return true
		}
	}
	return false
}
