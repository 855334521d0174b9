package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stake-plus/dao-monitor/src/gov"
	"github.com/stake-plus/dao-monitor/src/webclient"
)

// DefaultDetailURL is the llama.airforce proposal detail API.
const DefaultDetailURL = "https://api-py.llama.airforce/curve/v1/dao/proposals"

type detailVote struct {
	Tx       string  `json:"tx"`
	Voter    string  `json:"voter"`
	Supports bool    `json:"supports"`
	Stake    numeric `json:"stake"`
}

type detailResponse struct {
	VoteID          numeric      `json:"voteId"`
	VoteType        string       `json:"voteType"`
	Creator         string       `json:"creator"`
	StartDate       numeric      `json:"startDate"`
	Metadata        optionalText `json:"metadata"`
	VotesFor        numeric      `json:"votesFor"`
	VotesAgainst    numeric      `json:"votesAgainst"`
	SupportRequired numeric      `json:"supportRequired"`
	MinAcceptQuorum numeric      `json:"minAcceptQuorum"`
	TotalSupply     numeric      `json:"totalSupply"`
	Executed        bool         `json:"executed"`
	Votes           []detailVote `json:"votes"`
}

// DetailAPI fetches one proposal at a time.
type DetailAPI struct {
	BaseURL string
	client  *webclient.Client
}

// NewDetailAPI returns a detail client rooted at baseURL.
func NewDetailAPI(baseURL string, client *webclient.Client) *DetailAPI {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultDetailURL
	}
	return &DetailAPI{BaseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// URL returns the detail location for a vote.
func (d *DetailAPI) URL(voteID int64, voteType gov.VoteType) string {
	return fmt.Sprintf("%s/%s/%d", d.BaseURL, voteType.Endpoint(), voteID)
}

// Fetch loads the detail of one vote.
func (d *DetailAPI) Fetch(ctx context.Context, voteID int64, voteType gov.VoteType) (gov.Detail, error) {
	body, err := d.client.GetJSON(ctx, d.URL(voteID, voteType))
	if err != nil {
		return gov.Detail{}, classify(fmt.Sprintf("detail %d", voteID), err)
	}

	var resp detailResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return gov.Detail{}, fmt.Errorf("detail %d: %w: decode: %v", voteID, ErrUnavailable, err)
	}

	detail := gov.Detail{
		VoteID:          voteID,
		VoteType:        voteType,
		Metadata:        resp.Metadata.Value,
		HasMetadata:     resp.Metadata.Set,
		TotalSupply:     resp.TotalSupply.String(),
		VotesFor:        resp.VotesFor.String(),
		VotesAgainst:    resp.VotesAgainst.String(),
		SupportRequired: resp.SupportRequired.String(),
		MinAcceptQuorum: resp.MinAcceptQuorum.String(),
		Executed:        resp.Executed,
	}
	if id, err := resp.VoteID.Int64(); err == nil {
		detail.VoteID = id
	}
	if resp.VoteType != "" {
		detail.VoteType = gov.ParseVoteType(resp.VoteType)
	}
	if start, err := resp.StartDate.Int64(); err == nil {
		detail.StartDate = start
	}
	for _, v := range resp.Votes {
		detail.Votes = append(detail.Votes, gov.Voter{
			TxHash:   v.Tx,
			Voter:    v.Voter,
			Supports: v.Supports,
			Stake:    v.Stake.String(),
		})
	}
	return detail, nil
}
