package crowdfund

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Snapshot is the client's locally held, possibly stale copy of the set
// of campaign records as of the last reconciliation. Campaigns are in
// ascending id order; ids whose records could not be read are simply
// missing.
type Snapshot struct {
	CampaignCount uint64
	Campaigns     []Campaign
}

// Active returns the campaigns still accepting donations.
func (s Snapshot) Active() []Campaign {
	var active []Campaign
	for _, campaign := range s.Campaigns {
		if campaign.Active {
			active = append(active, campaign)
		}
	}
	return active
}

// ByCreator returns the campaigns created by the given identity.
func (s Snapshot) ByCreator(creator PublicKey) []Campaign {
	var mine []Campaign
	for _, campaign := range s.Campaigns {
		if campaign.Creator == creator {
			mine = append(mine, campaign)
		}
	}
	return mine
}

// TotalRaised sums AmountRaised across all campaigns in the snapshot.
func (s Snapshot) TotalRaised() uint64 {
	var total uint64
	for _, campaign := range s.Campaigns {
		total += campaign.AmountRaised
	}
	return total
}

// RefreshSnapshot rebuilds the snapshot from the remote ledger: read the
// global counter, derive the address of every campaign id ever assigned,
// and fetch them. An individual campaign that is absent or fails to read
// is dropped from the result — partial visibility beats total failure,
// since some addresses may be mid-creation or permanently gapped. Only a
// failure to read the counter itself fails the refresh.
//
// Campaign fetches run concurrently; the snapshot is not delivered until
// all of them have completed or been dropped. The client provides no
// mutual exclusion here: callers should coalesce overlapping refreshes.
func (c *crowdfundClient) RefreshSnapshot(ctx context.Context) (Snapshot, error) {
	state, present, err := c.ProgramState(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if !present {
		// No counter record means no campaign has ever been created.
		return Snapshot{}, nil
	}

	results := make([]*Campaign, state.CampaignCount)

	var g errgroup.Group
	g.SetLimit(c.opts.fetchConcurrency)

	for id := uint64(firstCampaignID); id <= state.CampaignCount; id++ {
		g.Go(func() error {
			campaign, present, err := c.Campaign(ctx, id)
			if err != nil {
				c.opts.logger.Debug().Uint64("campaignID", id).Err(err).Msg("dropping unreadable campaign from snapshot")
				return nil
			}
			if present {
				results[id-1] = &campaign
			}
			return nil
		})
	}

	// The per-campaign closures never return an error; Wait is purely a
	// completion barrier.
	_ = g.Wait()

	snapshot := Snapshot{CampaignCount: state.CampaignCount}
	for _, campaign := range results {
		if campaign != nil {
			snapshot.Campaigns = append(snapshot.Campaigns, *campaign)
		}
	}

	return snapshot, nil
}
