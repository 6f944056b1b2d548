package crowdfund

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// Program bounds on campaign text fields, in characters.
const (
	MaxTitleLen       = 64
	MaxDescriptionLen = 512
	MaxImageURLLen    = 256
)

// ProgramState is the program's singleton counter record. It is created
// implicitly by the first campaign creation; afterwards only the ledger
// program mutates it. CampaignCount never decreases and counts campaigns
// ever created, not campaigns currently active.
type ProgramState struct {
	Initialized   bool
	CampaignCount uint64
}

// Campaign represents a fundraising campaign with its goals, progress,
// and associated metadata. The client only ever holds a possibly-stale
// copy; the ledger program owns the record.
type Campaign struct {
	CampaignID   uint64
	Creator      PublicKey
	Title        string
	Description  string
	ImageURL     string
	Goal         uint64 // lamports
	AmountRaised uint64 // lamports, non-decreasing while active
	Balance      uint64 // lamports still withdrawable by the creator
	Donors       uint64 // donation operations, not unique donors
	Withdrawals  uint64
	Active       bool
	Timestamp    int64 // unix seconds, set at creation
}

// PercentFunded reports progress toward the goal as a percentage.
func (c Campaign) PercentFunded() float64 {
	if c.Goal == 0 {
		return 0
	}
	return float64(c.AmountRaised) / float64(c.Goal) * 100
}

// CreatedAt returns the creation timestamp as a time.Time.
func (c Campaign) CreatedAt() time.Time {
	return time.Unix(c.Timestamp, 0).UTC()
}

// Donation is the immutable record of a single donate operation.
type Donation struct {
	Donor      PublicKey
	CampaignID uint64
	Sequence   uint64 // per-donor-per-campaign, starts at 1
	Amount     uint64 // lamports
	Timestamp  int64
}

// Account records are fixed little-endian byte images: an 8-byte
// discriminator identifying the record kind, then the fields in order.
// Strings are u32-length-prefixed UTF-8, booleans a single byte, keys raw
// 32 bytes. The donation record kind is named Transaction on-chain.
var (
	programStateDiscriminator = accountDiscriminator("ProgramState")
	campaignDiscriminator     = accountDiscriminator("Campaign")
	donationDiscriminator     = accountDiscriminator("Transaction")
)

func accountDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// DecodeProgramState decodes a fetched program state account image.
func DecodeProgramState(data []byte) (ProgramState, error) {
	r := newRecordReader(data)
	r.discriminator("ProgramState", programStateDiscriminator)

	var state ProgramState
	state.Initialized = r.bool()
	state.CampaignCount = r.u64()

	if err := r.done(); err != nil {
		return ProgramState{}, err
	}
	return state, nil
}

// DecodeCampaign decodes a fetched campaign account image.
func DecodeCampaign(data []byte) (Campaign, error) {
	r := newRecordReader(data)
	r.discriminator("Campaign", campaignDiscriminator)

	var campaign Campaign
	campaign.CampaignID = r.u64()
	campaign.Creator = r.key()
	campaign.Title = r.str()
	campaign.Description = r.str()
	campaign.ImageURL = r.str()
	campaign.Goal = r.u64()
	campaign.AmountRaised = r.u64()
	campaign.Balance = r.u64()
	campaign.Donors = r.u64()
	campaign.Withdrawals = r.u64()
	campaign.Active = r.bool()
	campaign.Timestamp = r.i64()

	if err := r.done(); err != nil {
		return Campaign{}, err
	}
	return campaign, nil
}

// DecodeDonation decodes a fetched donation account image.
func DecodeDonation(data []byte) (Donation, error) {
	r := newRecordReader(data)
	r.discriminator("Transaction", donationDiscriminator)

	var donation Donation
	donation.Donor = r.key()
	donation.CampaignID = r.u64()
	donation.Sequence = r.u64()
	donation.Amount = r.u64()
	donation.Timestamp = r.i64()

	if err := r.done(); err != nil {
		return Donation{}, err
	}
	return donation, nil
}

// Encode produces the account image of the record. The program emits
// these; the client-side encoder exists so fake ledgers in tests speak
// the same wire format.
func (s ProgramState) Encode() []byte {
	w := newRecordWriter(programStateDiscriminator)
	w.bool(s.Initialized)
	w.u64(s.CampaignCount)
	return w.bytes()
}

// Encode produces the account image of the campaign.
func (c Campaign) Encode() []byte {
	w := newRecordWriter(campaignDiscriminator)
	w.u64(c.CampaignID)
	w.key(c.Creator)
	w.str(c.Title)
	w.str(c.Description)
	w.str(c.ImageURL)
	w.u64(c.Goal)
	w.u64(c.AmountRaised)
	w.u64(c.Balance)
	w.u64(c.Donors)
	w.u64(c.Withdrawals)
	w.bool(c.Active)
	w.i64(c.Timestamp)
	return w.bytes()
}

// Encode produces the account image of the donation.
func (d Donation) Encode() []byte {
	w := newRecordWriter(donationDiscriminator)
	w.key(d.Donor)
	w.u64(d.CampaignID)
	w.u64(d.Sequence)
	w.u64(d.Amount)
	w.i64(d.Timestamp)
	return w.bytes()
}

type recordReader struct {
	data []byte
	off  int
	err  error
}

func newRecordReader(data []byte) *recordReader {
	return &recordReader{data: data}
}

func (r *recordReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.data) {
		r.err = fmt.Errorf("truncated record: want %d bytes at offset %d, have %d", n, r.off, len(r.data)-r.off)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *recordReader) discriminator(name string, want [8]byte) {
	got := r.take(8)
	if r.err != nil {
		return
	}
	if !bytes.Equal(got, want[:]) {
		r.err = fmt.Errorf("not a %s record", name)
	}
}

func (r *recordReader) u64() uint64 {
	b := r.take(8)
	if r.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *recordReader) i64() int64 {
	return int64(r.u64())
}

func (r *recordReader) bool() bool {
	b := r.take(1)
	if r.err != nil {
		return false
	}
	return b[0] != 0
}

func (r *recordReader) key() PublicKey {
	b := r.take(32)
	if r.err != nil {
		return PublicKey{}
	}
	var key PublicKey
	copy(key[:], b)
	return key
}

func (r *recordReader) str() string {
	n := r.take(4)
	if r.err != nil {
		return ""
	}
	b := r.take(int(binary.LittleEndian.Uint32(n)))
	if r.err != nil {
		return ""
	}
	if !utf8.Valid(b) {
		r.err = errors.New("string field is not valid UTF-8")
		return ""
	}
	return string(b)
}

func (r *recordReader) done() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.data) {
		return fmt.Errorf("%d trailing bytes after record", len(r.data)-r.off)
	}
	return nil
}

type recordWriter struct {
	buf bytes.Buffer
}

func newRecordWriter(discriminator [8]byte) *recordWriter {
	w := &recordWriter{}
	w.buf.Write(discriminator[:])
	return w
}

func (w *recordWriter) u64(v uint64) {
	w.buf.Write(le8(v))
}

func (w *recordWriter) i64(v int64) {
	w.buf.Write(le8(uint64(v)))
}

func (w *recordWriter) bool(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

func (w *recordWriter) key(k PublicKey) {
	w.buf.Write(k[:])
}

func (w *recordWriter) str(s string) {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(s)))
	w.buf.Write(n[:])
	w.buf.WriteString(s)
}

func (w *recordWriter) bytes() []byte {
	return w.buf.Bytes()
}
