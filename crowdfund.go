// Package crowdfund provides a client for an on-ledger crowdfunding
// program. It implements the program's deterministic record addressing,
// sequence allocation, operation submission, and the read-reconcile cycle
// that keeps a local snapshot of campaigns consistent with the remote
// ledger. The ledger program itself is the authoritative state machine;
// this client never mutates state directly, it only constructs and submits
// operations and reconciles locally cached views.
package crowdfund

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// Client defines the interface for interacting with the crowdfunding
// program: submitting operations, fetching typed records, allocating
// sequence hints, and reconciling snapshots.
type Client interface {
	// CreateCampaign submits a create-campaign operation and blocks until
	// the transport confirms it at the configured commitment.
	CreateCampaign(context.Context, CampaignParams) (Receipt, error)

	// Donate submits a donation of lamports to the given campaign.
	// The protocol minimum is 1 SOL.
	Donate(ctx context.Context, campaignID, lamports uint64) (Receipt, error)

	// Withdraw submits a withdrawal of lamports from a campaign the
	// signer created.
	Withdraw(ctx context.Context, campaignID, lamports uint64) (Receipt, error)

	// ProgramState fetches the program's singleton counter record. The
	// presence flag is false when the record has never been created,
	// which is the normal state of a fresh deployment, not an error.
	ProgramState(context.Context) (ProgramState, bool, error)

	// Campaign fetches a campaign record by id, with the same absence
	// convention as ProgramState.
	Campaign(ctx context.Context, campaignID uint64) (Campaign, bool, error)

	// Donation fetches a donation record by its derivation inputs.
	Donation(ctx context.Context, donor PublicKey, campaignID, sequence uint64) (Donation, bool, error)

	// NextCampaignID computes the id the next created campaign is
	// expected to take. It is a hint, not a reservation: the ledger
	// program performs the authoritative increment at execution time.
	NextCampaignID(context.Context) (uint64, error)

	// NextDonationSequence computes the sequence number the signer's next
	// donation to the campaign is expected to take. Same hint semantics.
	NextDonationSequence(ctx context.Context, campaignID uint64) (uint64, error)

	// NextWithdrawalSequence computes the sequence number of the next
	// withdrawal from the campaign. Same hint semantics.
	NextWithdrawalSequence(ctx context.Context, campaignID uint64) (uint64, error)

	// RefreshSnapshot rebuilds the local view of all campaigns from the
	// remote ledger. Individual campaigns that cannot be read are dropped
	// from the result, never failing the whole refresh.
	RefreshSnapshot(context.Context) (Snapshot, error)

	// Balance returns the signer's lamport balance.
	Balance(context.Context) (uint64, error)
}

// CampaignParams carries the creator-supplied fields of a new campaign.
type CampaignParams struct {
	Title       string
	Description string
	ImageURL    string
	Goal        uint64 // lamports
}

func (p CampaignParams) validate() error {
	title := strings.TrimSpace(p.Title)
	switch {
	case title == "":
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	case utf8.RuneCountInString(p.Title) > MaxTitleLen:
		return &ValidationError{Field: "title", Reason: fmt.Sprintf("longer than %d characters", MaxTitleLen)}
	}

	description := strings.TrimSpace(p.Description)
	switch {
	case description == "":
		return &ValidationError{Field: "description", Reason: "must not be empty"}
	case utf8.RuneCountInString(p.Description) > MaxDescriptionLen:
		return &ValidationError{Field: "description", Reason: fmt.Sprintf("longer than %d characters", MaxDescriptionLen)}
	}

	if utf8.RuneCountInString(p.ImageURL) > MaxImageURLLen {
		return &ValidationError{Field: "imageURL", Reason: fmt.Sprintf("longer than %d characters", MaxImageURLLen)}
	}

	if p.Goal == 0 {
		return &ValidationError{Field: "goal", Reason: "must be greater than 0"}
	}

	return nil
}

type clientOption struct {
	endpoint         string
	transport        Transport
	signer           Signer
	program          PublicKey
	commitment       Commitment
	logger           zerolog.Logger
	fetchConcurrency int
	doRetry          bool
}

type crowdfundClient struct {
	opts      clientOption
	transport Transport
}

// ClientOption defines a function type for configuring client options.
type ClientOption func(*clientOption)

// WithEndpoint points the client at a ledger node's JSON-RPC endpoint.
// Ignored when WithTransport supplies a transport directly.
func WithEndpoint(url string) ClientOption {
	return func(opt *clientOption) {
		opt.endpoint = url
	}
}

// WithTransport supplies the transport collaborator directly.
func WithTransport(transport Transport) ClientOption {
	return func(opt *clientOption) {
		opt.transport = transport
	}
}

// WithSigner supplies the wallet collaborator. Without one, every submit
// call fails with a PreconditionError; reads still work.
func WithSigner(signer Signer) ClientOption {
	return func(opt *clientOption) {
		opt.signer = signer
	}
}

// WithProgramID sets the crowdfunding program's identity, the namespace
// all record addresses are derived under.
func WithProgramID(program PublicKey) ClientOption {
	return func(opt *clientOption) {
		opt.program = program
	}
}

// WithCommitment sets the confirmation depth submits wait for.
// If not provided, defaults to confirmed.
func WithCommitment(commitment Commitment) ClientOption {
	return func(opt *clientOption) {
		opt.commitment = commitment
	}
}

// WithLogger attaches a logger. If not provided, logging is disabled.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(opt *clientOption) {
		opt.logger = logger
	}
}

// WithFetchConcurrency bounds how many campaign fetches a snapshot refresh
// runs in parallel. If not provided, defaults to 8.
func WithFetchConcurrency(n int) ClientOption {
	return func(opt *clientOption) {
		opt.fetchConcurrency = n
	}
}

// WithRetry enables retries (when applicable) on the default HTTP
// transport's idempotent reads. Submissions are never retried.
func WithRetry() ClientOption {
	return func(opt *clientOption) {
		opt.doRetry = true
	}
}

const defaultFetchConcurrency = 8

// NewClient creates a crowdfunding client with the provided options. A
// program id must be provided with WithProgramID, and either a transport
// or an RPC endpoint, otherwise an error is returned.
func NewClient(options ...ClientOption) (Client, error) {
	clientOptions := clientOption{
		commitment:       CommitmentConfirmed,
		logger:           zerolog.Nop(),
		fetchConcurrency: defaultFetchConcurrency,
	}

	for _, option := range options {
		option(&clientOptions)
	}

	if clientOptions.program.IsZero() {
		return &crowdfundClient{}, errors.New("missing program id!")
	}

	transport := clientOptions.transport
	if transport == nil {
		if clientOptions.endpoint == "" {
			return &crowdfundClient{}, errors.New("missing transport or RPC endpoint!")
		}

		transportOptions := []TransportOption{WithTransportLogger(clientOptions.logger)}
		if clientOptions.doRetry {
			transportOptions = append(transportOptions, WithReadRetry())
		}

		var err error
		transport, err = NewHTTPTransport(clientOptions.endpoint, transportOptions...)
		if err != nil {
			return &crowdfundClient{}, err
		}
	}

	return &crowdfundClient{
		opts:      clientOptions,
		transport: transport,
	}, nil
}

func (c *crowdfundClient) CreateCampaign(ctx context.Context, params CampaignParams) (Receipt, error) {
	if err := params.validate(); err != nil {
		return Receipt{}, err
	}
	if c.opts.signer == nil {
		return Receipt{}, &PreconditionError{Reason: "no signer configured"}
	}

	campaignID, err := c.NextCampaignID(ctx)
	if err != nil {
		return Receipt{}, err
	}

	stateAddress := ProgramStateAddress(c.opts.program)
	campaignAddress := CampaignAddress(c.opts.program, campaignID)

	blockhash, err := c.transport.LatestBlockhash(ctx)
	if err != nil {
		return Receipt{}, &SubmissionError{Op: methodCreateCampaign, Err: err}
	}

	op := newCreateCampaignOp(c.opts.program, c.opts.signer.PublicKey(), stateAddress, campaignAddress, blockhash, params)

	receipt, err := c.submit(ctx, methodCreateCampaign, op)
	if err != nil {
		return Receipt{}, err
	}

	c.opts.logger.Debug().
		Uint64("campaignID", campaignID).
		Str("signature", receipt.Signature).
		Msg("campaign created")

	return receipt, nil
}

func (c *crowdfundClient) Donate(ctx context.Context, campaignID, lamports uint64) (Receipt, error) {
	if lamports < MinDonation {
		return Receipt{}, &ValidationError{
			Field:  "amount",
			Reason: fmt.Sprintf("minimum donation is 1 SOL (%d lamports)", MinDonation),
		}
	}
	if c.opts.signer == nil {
		return Receipt{}, &PreconditionError{Reason: "no signer configured"}
	}

	sequence, err := c.NextDonationSequence(ctx, campaignID)
	if err != nil {
		return Receipt{}, err
	}

	donor := c.opts.signer.PublicKey()
	campaignAddress := CampaignAddress(c.opts.program, campaignID)
	donationAddress := DonationAddress(c.opts.program, donor, campaignID, sequence)

	blockhash, err := c.transport.LatestBlockhash(ctx)
	if err != nil {
		return Receipt{}, &SubmissionError{Op: methodDonate, Err: err}
	}

	op := newDonateOp(c.opts.program, donor, campaignAddress, donationAddress, blockhash, campaignID, lamports)

	receipt, err := c.submit(ctx, methodDonate, op)
	if err != nil {
		return Receipt{}, err
	}

	c.opts.logger.Debug().
		Uint64("campaignID", campaignID).
		Uint64("lamports", lamports).
		Uint64("sequence", sequence).
		Str("signature", receipt.Signature).
		Msg("donation confirmed")

	return receipt, nil
}

func (c *crowdfundClient) Withdraw(ctx context.Context, campaignID, lamports uint64) (Receipt, error) {
	if lamports == 0 {
		return Receipt{}, &ValidationError{Field: "amount", Reason: "must be greater than 0"}
	}
	if c.opts.signer == nil {
		return Receipt{}, &PreconditionError{Reason: "no signer configured"}
	}

	sequence, err := c.NextWithdrawalSequence(ctx, campaignID)
	if err != nil {
		return Receipt{}, err
	}

	creator := c.opts.signer.PublicKey()
	campaignAddress := CampaignAddress(c.opts.program, campaignID)
	withdrawalAddress := WithdrawalAddress(c.opts.program, creator, campaignID, sequence)

	blockhash, err := c.transport.LatestBlockhash(ctx)
	if err != nil {
		return Receipt{}, &SubmissionError{Op: methodWithdraw, Err: err}
	}

	op := newWithdrawOp(c.opts.program, creator, campaignAddress, withdrawalAddress, blockhash, campaignID, lamports)

	receipt, err := c.submit(ctx, methodWithdraw, op)
	if err != nil {
		return Receipt{}, err
	}

	c.opts.logger.Debug().
		Uint64("campaignID", campaignID).
		Uint64("lamports", lamports).
		Str("signature", receipt.Signature).
		Msg("withdrawal confirmed")

	return receipt, nil
}

// submit signs and sends one operation. Submission failures are never
// retried here: a timed-out operation may still land, and resubmitting it
// would risk duplicate effect.
func (c *crowdfundClient) submit(ctx context.Context, method string, op Operation) (Receipt, error) {
	signed, err := c.opts.signer.Sign(op)
	if err != nil {
		return Receipt{}, &SubmissionError{Op: method, Err: fmt.Errorf("failed to sign operation: %w", err)}
	}

	receipt, err := c.transport.SubmitOperation(ctx, signed, c.opts.commitment)
	if err != nil {
		return Receipt{}, &SubmissionError{Op: method, Err: err}
	}

	return receipt, nil
}

func (c *crowdfundClient) ProgramState(ctx context.Context) (ProgramState, bool, error) {
	address := ProgramStateAddress(c.opts.program)

	data, present, err := c.transport.FetchAccount(ctx, address)
	if err != nil {
		return ProgramState{}, false, &FetchError{Address: address, Err: err}
	}
	if !present {
		return ProgramState{}, false, nil
	}

	state, err := DecodeProgramState(data)
	if err != nil {
		return ProgramState{}, false, &FetchError{Address: address, Err: err}
	}

	return state, true, nil
}

func (c *crowdfundClient) Campaign(ctx context.Context, campaignID uint64) (Campaign, bool, error) {
	address := CampaignAddress(c.opts.program, campaignID)

	data, present, err := c.transport.FetchAccount(ctx, address)
	if err != nil {
		return Campaign{}, false, &FetchError{Address: address, Err: err}
	}
	if !present {
		return Campaign{}, false, nil
	}

	campaign, err := DecodeCampaign(data)
	if err != nil {
		return Campaign{}, false, &FetchError{Address: address, Err: err}
	}

	return campaign, true, nil
}

func (c *crowdfundClient) Donation(ctx context.Context, donor PublicKey, campaignID, sequence uint64) (Donation, bool, error) {
	address := DonationAddress(c.opts.program, donor, campaignID, sequence)

	data, present, err := c.transport.FetchAccount(ctx, address)
	if err != nil {
		return Donation{}, false, &FetchError{Address: address, Err: err}
	}
	if !present {
		return Donation{}, false, nil
	}

	donation, err := DecodeDonation(data)
	if err != nil {
		return Donation{}, false, &FetchError{Address: address, Err: err}
	}

	return donation, true, nil
}

func (c *crowdfundClient) Balance(ctx context.Context) (uint64, error) {
	if c.opts.signer == nil {
		return 0, &PreconditionError{Reason: "no signer configured"}
	}
	return c.transport.Balance(ctx, c.opts.signer.PublicKey())
}
