package crowdfund

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// LamportsPerSOL is the fixed minor-per-major ratio of the platform's
// native currency. All program math is in lamports; SOL appears only at
// the human boundary.
const LamportsPerSOL uint64 = 1_000_000_000

// MinDonation is the protocol's minimum donation: 1 SOL.
const MinDonation = LamportsPerSOL

// ToSOL converts a lamport amount to its exact SOL value.
func ToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -9)
}

// ToLamports converts a SOL amount to lamports, truncating anything finer
// than a lamport. Non-positive amounts and amounts that truncate to zero
// are rejected: every operation taking an amount requires a positive one.
func ToLamports(sol decimal.Decimal) (uint64, error) {
	if !sol.IsPositive() {
		return 0, &ValidationError{Field: "amount", Reason: "must be greater than 0"}
	}

	lamports := sol.Shift(9).Truncate(0).BigInt()
	if !lamports.IsUint64() {
		return 0, &ValidationError{Field: "amount", Reason: "exceeds the representable range"}
	}
	if lamports.Sign() == 0 {
		return 0, &ValidationError{Field: "amount", Reason: "smaller than 1 lamport"}
	}

	return lamports.Uint64(), nil
}

// ParseSOL parses a decimal SOL amount, e.g. from a form field or CLI
// flag, and converts it to lamports.
func ParseSOL(s string) (uint64, error) {
	sol, err := decimal.NewFromString(s)
	if err != nil {
		return 0, &ValidationError{Field: "amount", Reason: "not a decimal number"}
	}
	return ToLamports(sol)
}
