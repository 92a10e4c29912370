// Package wallet defines the transaction domain model and wallet address
// validation used throughout the scoring pipeline.
package wallet

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ErrInvalidAddress is returned when an address is not 0x + 40 hex characters.
var ErrInvalidAddress = errors.New("invalid wallet address")

// Transaction is a single confirmed transaction as seen from one wallet's
// history. Value is denominated in ETH and must be non-negative. To is empty
// for contract-creation transactions.
type Transaction struct {
	Timestamp    time.Time       `json:"timestamp"`
	From         string          `json:"from"`
	To           string          `json:"to"`
	Value        decimal.Decimal `json:"value"`
	Success      bool            `json:"success"`
	ContractCall bool            `json:"contractCall"`
	Nonce        uint64          `json:"nonce"`
}

// Normalize validates addr and returns its canonical lowercase form.
// Validation happens before any cache lookup or upstream call, so an
// invalid address never costs more than this check.
func Normalize(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if len(addr) < 2 || addr[0] != '0' || (addr[1] != 'x' && addr[1] != 'X') {
		return "", ErrInvalidAddress
	}
	if !common.IsHexAddress(addr) {
		return "", ErrInvalidAddress
	}
	return strings.ToLower(addr), nil
}

// SortTransactions orders txs by non-decreasing timestamp, ties broken by
// nonce. Feature extraction depends on this ordering.
func SortTransactions(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if txs[i].Timestamp.Equal(txs[j].Timestamp) {
			return txs[i].Nonce < txs[j].Nonce
		}
		return txs[i].Timestamp.Before(txs[j].Timestamp)
	})
}
