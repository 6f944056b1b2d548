package crowdfund

import (
	"context"
	"fmt"
)

// Sequence allocation is read-then-compute, not an atomic remote
// increment. The numbers returned here are hints used to pre-derive the
// target address of the next operation; the authoritative increment
// happens inside the ledger program at execution time, with whatever value
// the program observes then. A stale hint (concurrent creator or donor)
// makes the program reject the operation rather than misfile it — the
// client does not lock or reserve sequence numbers, and no client-side
// lock could span independent clients anyway.

const firstCampaignID = 1

// NextCampaignID returns campaignCount + 1, or 1 when the program state
// record has never been created.
func (c *crowdfundClient) NextCampaignID(ctx context.Context) (uint64, error) {
	state, present, err := c.ProgramState(ctx)
	if err != nil {
		return 0, err
	}
	if !present {
		return firstCampaignID, nil
	}
	return state.CampaignCount + 1, nil
}

// NextDonationSequence returns the campaign's donation count + 1.
//
// Two donations submitted back-to-back without awaiting confirmation in
// between read the same count and compute the same sequence; their derived
// donation addresses collide and the ledger rejects the second. Await the
// first receipt before donating again.
func (c *crowdfundClient) NextDonationSequence(ctx context.Context, campaignID uint64) (uint64, error) {
	campaign, present, err := c.Campaign(ctx, campaignID)
	if err != nil {
		return 0, err
	}
	if !present {
		return 0, &ValidationError{
			Field:  "campaignID",
			Reason: fmt.Sprintf("campaign %d does not exist", campaignID),
		}
	}
	return campaign.Donors + 1, nil
}

// NextWithdrawalSequence returns the campaign's withdrawal count + 1.
// The same back-to-back race caveat applies.
func (c *crowdfundClient) NextWithdrawalSequence(ctx context.Context, campaignID uint64) (uint64, error) {
	campaign, present, err := c.Campaign(ctx, campaignID)
	if err != nil {
		return 0, err
	}
	if !present {
		return 0, &ValidationError{
			Field:  "campaignID",
			Reason: fmt.Sprintf("campaign %d does not exist", campaignID),
		}
	}
	return campaign.Withdrawals + 1, nil
}
