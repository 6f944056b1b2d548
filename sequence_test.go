package crowdfund

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextCampaignID(t *testing.T) {
	t.Run("absent state means first campaign", func(t *testing.T) {
		client := newTestClient(t, newFakeTransport())

		id, err := client.NextCampaignID(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint64(1), id)
	})

	t.Run("present state yields count plus one", func(t *testing.T) {
		transport := newFakeTransport()
		transport.stashState(ProgramState{Initialized: true, CampaignCount: 41})
		client := newTestClient(t, transport)

		id, err := client.NextCampaignID(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint64(42), id)
	})
}

func TestNextDonationSequence(t *testing.T) {
	t.Run("derived from the campaign's donation count", func(t *testing.T) {
		transport := newFakeTransport()
		transport.stashCampaign(Campaign{CampaignID: 5, Donors: 7, Active: true})
		client := newTestClient(t, transport)

		seq, err := client.NextDonationSequence(context.Background(), 5)
		require.NoError(t, err)
		assert.Equal(t, uint64(8), seq)
	})

	t.Run("unknown campaign", func(t *testing.T) {
		client := newTestClient(t, newFakeTransport())

		_, err := client.NextDonationSequence(context.Background(), 5)

		var validationErr *ValidationError
		require.ErrorAs(t, err, &validationErr)
	})
}

func TestNextWithdrawalSequence(t *testing.T) {
	transport := newFakeTransport()
	transport.stashCampaign(Campaign{CampaignID: 2, Withdrawals: 2, Active: true})
	client := newTestClient(t, transport)

	seq, err := client.NextWithdrawalSequence(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seq)
}

// Two donations submitted back-to-back, without awaiting confirmation in
// between, both read the same donation count and so derive the same
// donation address. The collision is resolved by the ledger program
// rejecting the second operation, not by this client: the race is a
// documented hazard, and this test pins it down.
func TestBackToBackDonationsShareASequence(t *testing.T) {
	transport := newFakeTransport()
	// The fake never applies submitted operations, so the donor count
	// stays frozen between the two reads, exactly like an unconfirmed
	// ledger view.
	transport.stashCampaign(Campaign{CampaignID: 9, Donors: 3, Active: true})

	signer := newTestSigner(t)
	client := newTestClient(t, transport, WithSigner(signer))

	_, err := client.Donate(context.Background(), 9, MinDonation)
	require.NoError(t, err)
	_, err = client.Donate(context.Background(), 9, MinDonation)
	require.NoError(t, err)

	require.Len(t, transport.submitted, 2)

	first := transport.submitted[0].Accounts[1]
	second := transport.submitted[1].Accounts[1]
	assert.Equal(t, first, second, "unconfirmed back-to-back donations collide on the same derived address")
	assert.Equal(t, DonationAddress(testProgram, signer.PublicKey(), 9, 4), first)
}
