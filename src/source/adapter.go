package source

import (
	"context"
	"slices"

	"github.com/stake-plus/dao-monitor/src/gov"
)

// DefaultWindow is how many recent proposals one poll looks at.
const DefaultWindow = 25

// Adapter presents both upstreams as one proposal source.
type Adapter struct {
	Listing *Subgraph
	Details *DetailAPI
}

// NewAdapter joins a listing and a detail client.
func NewAdapter(listing *Subgraph, details *DetailAPI) *Adapter {
	return &Adapter{Listing: listing, Details: details}
}

// ListRecent returns the most recent window proposals ordered oldest first.
func (a *Adapter) ListRecent(ctx context.Context, window int) ([]gov.Proposal, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	proposals, err := a.Listing.Latest(ctx, window)
	if err != nil {
		return nil, err
	}
	slices.Reverse(proposals)
	return proposals, nil
}

// FetchDetail returns the detail of one vote, routed by its vote type.
func (a *Adapter) FetchDetail(ctx context.Context, voteID int64, voteType gov.VoteType) (gov.Detail, error) {
	return a.Details.Fetch(ctx, voteID, voteType)
}
