package crowdfund

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-memory ledger view: a map of account images plus
// per-address injected failures. It records every call so tests can assert
// on (or assert the absence of) network traffic.
type fakeTransport struct {
	mu       sync.Mutex
	accounts map[Address][]byte
	failing  map[Address]error

	balance   uint64
	submitErr error

	submitted  []SignedOperation
	fetchCalls int
	calls      int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		accounts: make(map[Address][]byte),
		failing:  make(map[Address]error),
	}
}

func (f *fakeTransport) SubmitOperation(_ context.Context, op SignedOperation, _ Commitment) (Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.submitErr != nil {
		return Receipt{}, f.submitErr
	}
	f.submitted = append(f.submitted, op)
	return Receipt{Signature: fmt.Sprintf("sig-%d", len(f.submitted)), Slot: uint64(len(f.submitted))}, nil
}

func (f *fakeTransport) FetchAccount(_ context.Context, address Address) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.fetchCalls++
	if err, ok := f.failing[address]; ok {
		return nil, false, err
	}
	data, ok := f.accounts[address]
	if !ok {
		return nil, false, nil
	}
	return data, true, nil
}

func (f *fakeTransport) Balance(_ context.Context, _ PublicKey) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	return f.balance, nil
}

func (f *fakeTransport) LatestBlockhash(_ context.Context) (Blockhash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	return Blockhash{1}, nil
}

func testKey(fill byte) PublicKey {
	var key PublicKey
	for i := range key {
		key[i] = fill
	}
	return key
}

var testProgram = testKey(0xCF)

func newTestSigner(t *testing.T) *LocalSigner {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	signer, err := NewLocalSigner(priv)
	require.NoError(t, err)

	return signer
}

func newTestClient(t *testing.T, transport Transport, options ...ClientOption) Client {
	t.Helper()

	options = append([]ClientOption{
		WithProgramID(testProgram),
		WithTransport(transport),
	}, options...)

	client, err := NewClient(options...)
	require.NoError(t, err)

	return client
}

// stash installs a record into the fake ledger at its derived address.
func (f *fakeTransport) stashState(state ProgramState) {
	f.accounts[ProgramStateAddress(testProgram)] = state.Encode()
}

func (f *fakeTransport) stashCampaign(campaign Campaign) {
	f.accounts[CampaignAddress(testProgram, campaign.CampaignID)] = campaign.Encode()
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name          string
		options       []ClientOption
		expectedError bool
		errorMessage  string
	}{
		{
			name:          "missing program id",
			options:       []ClientOption{WithEndpoint("http://localhost:8899")},
			expectedError: true,
			errorMessage:  "missing program id!",
		},
		{
			name:          "missing transport and endpoint",
			options:       []ClientOption{WithProgramID(testProgram)},
			expectedError: true,
			errorMessage:  "missing transport or RPC endpoint!",
		},
		{
			name: "valid with endpoint",
			options: []ClientOption{
				WithProgramID(testProgram),
				WithEndpoint("http://localhost:8899"),
			},
			expectedError: false,
		},
		{
			name: "valid with transport",
			options: []ClientOption{
				WithProgramID(testProgram),
				WithTransport(newFakeTransport()),
			},
			expectedError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.options...)

			if tt.expectedError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMessage)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, client)
			}
		})
	}
}

func TestClientOptions(t *testing.T) {
	t.Run("WithCommitment sets commitment", func(t *testing.T) {
		opts := clientOption{}
		WithCommitment(CommitmentFinalized)(&opts)
		assert.Equal(t, CommitmentFinalized, opts.commitment)
	})

	t.Run("WithFetchConcurrency sets concurrency", func(t *testing.T) {
		opts := clientOption{}
		WithFetchConcurrency(3)(&opts)
		assert.Equal(t, 3, opts.fetchConcurrency)
	})

	t.Run("WithRetry enables retry", func(t *testing.T) {
		opts := clientOption{}
		WithRetry()(&opts)
		assert.True(t, opts.doRetry)
	})
}

func TestCreateCampaignValidation(t *testing.T) {
	longString := func(n int) string {
		b := make([]byte, n)
		for i := range b {
			b[i] = 'x'
		}
		return string(b)
	}

	valid := CampaignParams{
		Title:       "Community Garden",
		Description: "Raised beds for the neighborhood lot",
		Goal:        5 * LamportsPerSOL,
	}

	tests := []struct {
		name   string
		mutate func(*CampaignParams)
		field  string
	}{
		{"empty title", func(p *CampaignParams) { p.Title = "" }, "title"},
		{"blank title", func(p *CampaignParams) { p.Title = "   " }, "title"},
		{"overlong title", func(p *CampaignParams) { p.Title = longString(MaxTitleLen + 1) }, "title"},
		{"empty description", func(p *CampaignParams) { p.Description = "" }, "description"},
		{"overlong description", func(p *CampaignParams) { p.Description = longString(MaxDescriptionLen + 1) }, "description"},
		{"overlong image URL", func(p *CampaignParams) { p.ImageURL = longString(MaxImageURLLen + 1) }, "imageURL"},
		{"zero goal", func(p *CampaignParams) { p.Goal = 0 }, "goal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := newFakeTransport()
			client := newTestClient(t, transport, WithSigner(newTestSigner(t)))

			params := valid
			tt.mutate(&params)

			_, err := client.CreateCampaign(context.Background(), params)

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.field, validationErr.Field)
			assert.Zero(t, transport.calls, "validation failures must not reach the transport")
		})
	}
}

func TestSubmitsRequireSigner(t *testing.T) {
	transport := newFakeTransport()
	client := newTestClient(t, transport)

	_, err := client.CreateCampaign(context.Background(), CampaignParams{
		Title:       "Test",
		Description: "Test",
		Goal:        LamportsPerSOL,
	})

	var preconditionErr *PreconditionError
	require.ErrorAs(t, err, &preconditionErr)
	assert.Zero(t, transport.calls)

	_, err = client.Donate(context.Background(), 1, MinDonation)
	require.ErrorAs(t, err, &preconditionErr)

	_, err = client.Withdraw(context.Background(), 1, LamportsPerSOL)
	require.ErrorAs(t, err, &preconditionErr)

	_, err = client.Balance(context.Background())
	require.ErrorAs(t, err, &preconditionErr)
	assert.Zero(t, transport.calls)
}

func TestFirstCampaignTargetsAddressOne(t *testing.T) {
	transport := newFakeTransport() // no program state yet: fresh deployment
	client := newTestClient(t, transport, WithSigner(newTestSigner(t)))

	_, err := client.CreateCampaign(context.Background(), CampaignParams{
		Title:       "Test",
		Description: "The very first campaign",
		Goal:        LamportsPerSOL, // 1 SOL
	})
	require.NoError(t, err)

	require.Len(t, transport.submitted, 1)
	accounts := transport.submitted[0].Accounts
	require.Len(t, accounts, 2)
	assert.Equal(t, ProgramStateAddress(testProgram), accounts[0])
	assert.Equal(t, CampaignAddress(testProgram, 1), accounts[1])
}

func TestCreateCampaignDerivesFromCounter(t *testing.T) {
	transport := newFakeTransport()
	transport.stashState(ProgramState{Initialized: true, CampaignCount: 7})
	client := newTestClient(t, transport, WithSigner(newTestSigner(t)))

	_, err := client.CreateCampaign(context.Background(), CampaignParams{
		Title:       "Number Eight",
		Description: "Derived from the current counter",
		Goal:        2 * LamportsPerSOL,
	})
	require.NoError(t, err)

	require.Len(t, transport.submitted, 1)
	assert.Equal(t, CampaignAddress(testProgram, 8), transport.submitted[0].Accounts[1])
}

func TestDonateBelowMinimum(t *testing.T) {
	transport := newFakeTransport()
	client := newTestClient(t, transport, WithSigner(newTestSigner(t)))

	_, err := client.Donate(context.Background(), 1, MinDonation-1)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "amount", validationErr.Field)
	assert.Zero(t, transport.calls, "below-minimum donations must not reach the transport")
}

func TestDonateTargetsDonationAddress(t *testing.T) {
	transport := newFakeTransport()
	transport.stashCampaign(Campaign{CampaignID: 3, Donors: 11, Active: true, Goal: LamportsPerSOL})

	signer := newTestSigner(t)
	client := newTestClient(t, transport, WithSigner(signer))

	_, err := client.Donate(context.Background(), 3, 2*LamportsPerSOL)
	require.NoError(t, err)

	require.Len(t, transport.submitted, 1)
	accounts := transport.submitted[0].Accounts
	require.Len(t, accounts, 2)
	assert.Equal(t, CampaignAddress(testProgram, 3), accounts[0])
	assert.Equal(t, DonationAddress(testProgram, signer.PublicKey(), 3, 12), accounts[1])
}

func TestDonateToUnknownCampaign(t *testing.T) {
	transport := newFakeTransport()
	client := newTestClient(t, transport, WithSigner(newTestSigner(t)))

	_, err := client.Donate(context.Background(), 42, MinDonation)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "campaignID", validationErr.Field)
	assert.Empty(t, transport.submitted)
}

func TestWithdrawTargetsWithdrawalAddress(t *testing.T) {
	transport := newFakeTransport()
	transport.stashCampaign(Campaign{CampaignID: 2, Withdrawals: 4, Balance: 9 * LamportsPerSOL, Active: true})

	signer := newTestSigner(t)
	client := newTestClient(t, transport, WithSigner(signer))

	_, err := client.Withdraw(context.Background(), 2, 3*LamportsPerSOL)
	require.NoError(t, err)

	require.Len(t, transport.submitted, 1)
	assert.Equal(t, WithdrawalAddress(testProgram, signer.PublicKey(), 2, 5), transport.submitted[0].Accounts[1])
}

func TestSubmissionFailureSurfaces(t *testing.T) {
	transport := newFakeTransport()
	transport.submitErr = fmt.Errorf("account already in use")
	client := newTestClient(t, transport, WithSigner(newTestSigner(t)))

	_, err := client.CreateCampaign(context.Background(), CampaignParams{
		Title:       "Doomed",
		Description: "The program rejects this one",
		Goal:        LamportsPerSOL,
	})

	var submissionErr *SubmissionError
	require.ErrorAs(t, err, &submissionErr)
	assert.Equal(t, "create_campaign", submissionErr.Op)
	assert.ErrorContains(t, err, "account already in use")
}

func TestProgramStateAbsent(t *testing.T) {
	client := newTestClient(t, newFakeTransport())

	_, present, err := client.ProgramState(context.Background())
	require.NoError(t, err)
	assert.False(t, present, "a never-created state record is absence, not an error")
}

func TestFetchFailureIsNotAbsence(t *testing.T) {
	transport := newFakeTransport()
	transport.failing[ProgramStateAddress(testProgram)] = fmt.Errorf("node unavailable")
	client := newTestClient(t, transport)

	_, present, err := client.ProgramState(context.Background())

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.False(t, present)
	assert.ErrorContains(t, err, "node unavailable")
}

func TestCorruptRecordIsFetchError(t *testing.T) {
	transport := newFakeTransport()
	transport.accounts[CampaignAddress(testProgram, 1)] = []byte("definitely not a campaign")
	client := newTestClient(t, transport)

	_, _, err := client.Campaign(context.Background(), 1)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
}

func TestBalance(t *testing.T) {
	transport := newFakeTransport()
	transport.balance = 123 * LamportsPerSOL
	client := newTestClient(t, transport, WithSigner(newTestSigner(t)))

	balance, err := client.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 123*LamportsPerSOL, balance)
}
