package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stake-plus/dao-monitor/src/gov"
	"github.com/stake-plus/dao-monitor/src/webclient"
)

// DefaultSubgraphURL is the Curve DAO subgraph on The Graph.
const DefaultSubgraphURL = "https://api.thegraph.com/subgraphs/name/convex-community/curve-dao"

const proposalsQuery = `query LatestProposals($first: Int!) {
  proposals(first: $first, orderBy: startDate, orderDirection: desc) {
    id
    tx
    voteId
    voteType
    creator { id }
    startDate
    snapshotBlock
    ipfsMetadata
    metadata
    minBalance
    minTime
    totalSupply
    creatorVotingPower
    votesFor
    votesAgainst
    voteCount
    supportRequired
    minAcceptQuorum
    executed
    execution { id }
    script
  }
}`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type subgraphProposal struct {
	ID       string  `json:"id"`
	Tx       string  `json:"tx"`
	VoteID   numeric `json:"voteId"`
	VoteType string  `json:"voteType"`
	Creator  *struct {
		ID string `json:"id"`
	} `json:"creator"`
	StartDate       numeric `json:"startDate"`
	TotalSupply     numeric `json:"totalSupply"`
	VotesFor        numeric `json:"votesFor"`
	VotesAgainst    numeric `json:"votesAgainst"`
	SupportRequired numeric `json:"supportRequired"`
	MinAcceptQuorum numeric `json:"minAcceptQuorum"`
	Executed        bool    `json:"executed"`
	Execution       *struct {
		ID string `json:"id"`
	} `json:"execution"`
}

type subgraphResponse struct {
	Data *struct {
		Proposals []subgraphProposal `json:"proposals"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// Subgraph queries the proposal listing.
type Subgraph struct {
	URL    string
	client *webclient.Client
}

// NewSubgraph returns a listing client for url using client for transport.
func NewSubgraph(url string, client *webclient.Client) *Subgraph {
	if strings.TrimSpace(url) == "" {
		url = DefaultSubgraphURL
	}
	return &Subgraph{URL: url, client: client}
}

// Latest returns up to first proposals in upstream order, newest first.
// Listing metadata is ignored; metadata only comes from the detail API.
func (s *Subgraph) Latest(ctx context.Context, first int) ([]gov.Proposal, error) {
	payload, err := json.Marshal(graphQLRequest{
		Query:     proposalsQuery,
		Variables: map[string]any{"first": first},
	})
	if err != nil {
		return nil, fmt.Errorf("encode subgraph query: %w", err)
	}

	body, err := s.client.PostJSON(ctx, s.URL, payload)
	if err != nil {
		return nil, classify("subgraph", err)
	}

	var resp subgraphResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("subgraph: %w: decode: %v", ErrUnavailable, err)
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("subgraph: %w: %s", ErrUnavailable, strings.Join(msgs, "; "))
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("subgraph: %w: response has no data", ErrUnavailable)
	}

	out := make([]gov.Proposal, 0, len(resp.Data.Proposals))
	for _, raw := range resp.Data.Proposals {
		p, err := raw.toProposal()
		if err != nil {
			return nil, fmt.Errorf("subgraph: %w: proposal %s: %v", ErrUnavailable, raw.ID, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (r subgraphProposal) toProposal() (gov.Proposal, error) {
	voteID, err := r.VoteID.Int64()
	if err != nil {
		return gov.Proposal{}, fmt.Errorf("voteId: %w", err)
	}
	// A missing start date is left at zero; the classifier rejects it.
	startDate, _ := r.StartDate.Int64()

	p := gov.Proposal{
		VoteID:          voteID,
		VoteType:        gov.ParseVoteType(r.VoteType),
		TxHash:          r.Tx,
		StartDate:       startDate,
		TotalSupply:     r.TotalSupply.String(),
		VotesFor:        r.VotesFor.String(),
		VotesAgainst:    r.VotesAgainst.String(),
		SupportRequired: r.SupportRequired.String(),
		MinAcceptQuorum: r.MinAcceptQuorum.String(),
	}
	if r.Creator != nil {
		p.Creator = r.Creator.ID
	}
	if r.Execution != nil {
		p.ExecutionID = r.Execution.ID
	}
	return p, nil
}
