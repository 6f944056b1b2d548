package crowdfund

import (
	"crypto/sha256"
	"encoding/binary"
)

// Blockhash is the freshness token attached to every operation so the
// transport can reject stale resubmissions.
type Blockhash [32]byte

// Commitment is the confirmation depth a submit waits for before
// reporting an operation as complete.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// Operation is a single unsigned program instruction: which method to
// invoke, the derived record addresses it touches, and the encoded
// arguments.
type Operation struct {
	Program   PublicKey
	Payer     PublicKey
	Accounts  []Address
	Data      []byte
	Blockhash Blockhash
}

// Message returns the deterministic serialization of the operation, the
// exact bytes a Signer signs.
func (op Operation) Message() []byte {
	size := 32 + 32 + 32 + 4 + len(op.Accounts)*32 + 4 + len(op.Data)
	msg := make([]byte, 0, size)

	msg = append(msg, op.Program[:]...)
	msg = append(msg, op.Payer[:]...)
	msg = append(msg, op.Blockhash[:]...)

	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(op.Accounts)))
	msg = append(msg, n[:]...)
	for _, account := range op.Accounts {
		msg = append(msg, account[:]...)
	}

	binary.LittleEndian.PutUint32(n[:], uint32(len(op.Data)))
	msg = append(msg, n[:]...)
	msg = append(msg, op.Data...)

	return msg
}

// SignedOperation is an operation plus the payer's signature over its
// message bytes.
type SignedOperation struct {
	Operation
	Signature []byte
}

// Serialize returns the wire form submitted to the transport: the
// signature followed by the message it covers.
func (s SignedOperation) Serialize() []byte {
	return append(append([]byte{}, s.Signature...), s.Message()...)
}

// Receipt reports a confirmed operation: the transport-assigned signature
// identifying it and the slot it landed in.
type Receipt struct {
	Signature string
	Slot      uint64
}

// Instruction data starts with an 8-byte method tag, then the arguments
// in the same little-endian encoding the account records use.
func instructionTag(method string) [8]byte {
	sum := sha256.Sum256([]byte("global:" + method))
	var tag [8]byte
	copy(tag[:], sum[:8])
	return tag
}

const (
	methodCreateCampaign = "create_campaign"
	methodDonate         = "donate"
	methodWithdraw       = "withdraw"
)

func newCreateCampaignOp(program, payer PublicKey, state, campaign Address, blockhash Blockhash, params CampaignParams) Operation {
	w := newRecordWriter(instructionTag(methodCreateCampaign))
	w.str(params.Title)
	w.str(params.Description)
	w.str(params.ImageURL)
	w.u64(params.Goal)

	return Operation{
		Program:   program,
		Payer:     payer,
		Accounts:  []Address{state, campaign},
		Data:      w.bytes(),
		Blockhash: blockhash,
	}
}

func newDonateOp(program, payer PublicKey, campaign, donation Address, blockhash Blockhash, campaignID, lamports uint64) Operation {
	w := newRecordWriter(instructionTag(methodDonate))
	w.u64(campaignID)
	w.u64(lamports)

	return Operation{
		Program:   program,
		Payer:     payer,
		Accounts:  []Address{campaign, donation},
		Data:      w.bytes(),
		Blockhash: blockhash,
	}
}

func newWithdrawOp(program, payer PublicKey, campaign, withdrawal Address, blockhash Blockhash, campaignID, lamports uint64) Operation {
	w := newRecordWriter(instructionTag(methodWithdraw))
	w.u64(campaignID)
	w.u64(lamports)

	return Operation{
		Program:   program,
		Payer:     payer,
		Accounts:  []Address{campaign, withdrawal},
		Data:      w.bytes(),
		Blockhash: blockhash,
	}
}
