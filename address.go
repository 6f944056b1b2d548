package crowdfund

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
)

// PublicKey is an opaque signer identity. It is a value type: two keys are
// the same identity exactly when their bytes are equal.
type PublicKey [32]byte

// Address locates a record in the ledger program's storage. Addresses are
// opaque to this client; only the derivation inputs carry meaning.
type Address [32]byte

// Seed labels namespacing the program's record kinds. These are part of the
// on-chain protocol and must not change.
const (
	seedProgramState = "program_state"
	seedCampaign     = "campaign"
	seedDonor        = "donor"
	seedWithdraw     = "withdraw"
)

// addressMarker domain-separates record addresses from any other material
// hashed with the same inputs.
const addressMarker = "CrowdfundRecordAddress"

// ParsePublicKey decodes the base58 text form of a public key.
func ParsePublicKey(s string) (PublicKey, error) {
	decoded, err := base58.Decode(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("failed to decode public key %q: %w", s, err)
	}
	if len(decoded) != len(PublicKey{}) {
		return PublicKey{}, fmt.Errorf("decoded bad public key %q: %d bytes", s, len(decoded))
	}
	var key PublicKey
	copy(key[:], decoded)
	return key, nil
}

func (k PublicKey) String() string {
	return base58.Encode(k[:])
}

// IsZero reports whether the key is the zero value, i.e. no identity.
func (k PublicKey) IsZero() bool {
	return k == PublicKey{}
}

func (k PublicKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseAddress decodes the base58 text form of a record address.
func ParseAddress(s string) (Address, error) {
	decoded, err := base58.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("failed to decode address %q: %w", s, err)
	}
	if len(decoded) != len(Address{}) {
		return Address{}, fmt.Errorf("decoded bad address %q: %d bytes", s, len(decoded))
	}
	var addr Address
	copy(addr[:], decoded)
	return addr, nil
}

func (a Address) String() string {
	return base58.Encode(a[:])
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ProgramStateAddress derives the address of the program's singleton
// counter record.
func ProgramStateAddress(program PublicKey) Address {
	return deriveAddress(program, []byte(seedProgramState))
}

// CampaignAddress derives the address of campaign campaignID. Derivation is
// deterministic: independent clients converge on the same address for the
// same id without coordination.
func CampaignAddress(program PublicKey, campaignID uint64) Address {
	return deriveAddress(program, []byte(seedCampaign), le8(campaignID))
}

// DonationAddress derives the address of donor's sequence-th donation to
// campaign campaignID. The donor key is part of the seed, so two different
// donors can never collide; two racing donations from the same donor with
// the same sequence hint will.
func DonationAddress(program, donor PublicKey, campaignID, sequence uint64) Address {
	return deriveAddress(program, []byte(seedDonor), donor[:], le8(campaignID), le8(sequence))
}

// WithdrawalAddress derives the address of the creator's sequence-th
// withdrawal from campaign campaignID.
func WithdrawalAddress(program, creator PublicKey, campaignID, sequence uint64) Address {
	return deriveAddress(program, []byte(seedWithdraw), creator[:], le8(campaignID), le8(sequence))
}

func deriveAddress(program PublicKey, seeds ...[]byte) Address {
	h := sha256.New()
	for _, seed := range seeds {
		h.Write(seed)
	}
	h.Write(program[:])
	h.Write([]byte(addressMarker))

	var addr Address
	copy(addr[:], h.Sum(nil))
	return addr
}

func le8(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}
