// Package outcome decides whether a governance vote passed, was denied or is
// still pending. All arithmetic happens on decimals normalized from 18-decimal
// fixed point values, so identical inputs always yield identical decisions.
package outcome

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stake-plus/dao-monitor/src/gov"
)

// MaturityPeriod is how long a vote stays open before its outcome is final.
const MaturityPeriod = 7 * 24 * time.Hour

// ErrMalformed is returned when a tally field cannot be parsed.
var ErrMalformed = errors.New("outcome: malformed tally")

const fixedPointDecimals = 18

var (
	hundred = decimal.NewFromInt(100)
	million = decimal.NewFromInt(1_000_000)
)

// Verdict is the classification of a vote at a point in time.
type Verdict int

const (
	Pending Verdict = iota
	Passed
	Denied
)

func (v Verdict) String() string {
	switch v {
	case Passed:
		return "passed"
	case Denied:
		return "denied"
	default:
		return "pending"
	}
}

// Tally holds the normalized vote figures a decision was made from.
type Tally struct {
	TotalSupply  decimal.Decimal
	VotesFor     decimal.Decimal
	VotesAgainst decimal.Decimal

	QuorumPercent          decimal.Decimal
	RequiredQuorumPercent  decimal.Decimal
	SupportPercent         decimal.Decimal
	RequiredSupportPercent decimal.Decimal

	QuorumMet  bool
	SupportMet bool
	Mature     bool
	Elapsed    time.Duration
}

// TotalVotes is the sum of yea and nay votes.
func (t Tally) TotalVotes() decimal.Decimal {
	return t.VotesFor.Add(t.VotesAgainst)
}

// TotalVotesMillions expresses TotalVotes in millions of tokens.
func (t Tally) TotalVotesMillions() decimal.Decimal {
	return t.TotalVotes().Div(million)
}

// YeaPercent is the share of cast votes in favour, 0 when nothing was cast.
func (t Tally) YeaPercent() decimal.Decimal {
	return t.SupportPercent
}

// Decision is the verdict together with the figures behind it.
type Decision struct {
	Verdict Verdict
	Tally   Tally
}

// Classify maps a proposal snapshot and the current time to a decision.
func Classify(p gov.Proposal, now time.Time) (Decision, error) {
	if p.StartDate <= 0 {
		return Decision{}, fmt.Errorf("%w: start date %d", ErrMalformed, p.StartDate)
	}

	totalSupply, err := normalize("totalSupply", p.TotalSupply)
	if err != nil {
		return Decision{}, err
	}
	votesFor, err := normalize("votesFor", p.VotesFor)
	if err != nil {
		return Decision{}, err
	}
	votesAgainst, err := normalize("votesAgainst", p.VotesAgainst)
	if err != nil {
		return Decision{}, err
	}
	minQuorum, err := normalize("minAcceptQuorum", p.MinAcceptQuorum)
	if err != nil {
		return Decision{}, err
	}
	supportRequired, err := normalize("supportRequired", p.SupportRequired)
	if err != nil {
		return Decision{}, err
	}

	t := Tally{
		TotalSupply:            totalSupply,
		VotesFor:               votesFor,
		VotesAgainst:           votesAgainst,
		RequiredQuorumPercent:  minQuorum.Mul(hundred),
		RequiredSupportPercent: supportRequired.Mul(hundred),
	}

	// Degenerate denominators leave the percentage at zero and the
	// corresponding requirement unmet.
	if !totalSupply.IsZero() {
		t.QuorumPercent = votesFor.Div(totalSupply).Mul(hundred)
		t.QuorumMet = t.QuorumPercent.GreaterThanOrEqual(t.RequiredQuorumPercent)
	}
	if cast := votesFor.Add(votesAgainst); !cast.IsZero() {
		t.SupportPercent = votesFor.Div(cast).Mul(hundred)
		t.SupportMet = t.SupportPercent.GreaterThanOrEqual(t.RequiredSupportPercent)
	}

	t.Elapsed = now.Sub(time.Unix(p.StartDate, 0))
	t.Mature = now.Unix()-p.StartDate >= int64(MaturityPeriod/time.Second)

	d := Decision{Verdict: Pending, Tally: t}
	if t.Mature {
		if t.QuorumMet && t.SupportMet {
			d.Verdict = Passed
		} else {
			d.Verdict = Denied
		}
	}
	return d, nil
}

// Requirements returns the quorum a proposal needs, in millions of tokens,
// and the support it needs, in percent.
func Requirements(p gov.Proposal) (quorumMillions, supportPercent decimal.Decimal, err error) {
	totalSupply, err := normalize("totalSupply", p.TotalSupply)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	minQuorum, err := normalize("minAcceptQuorum", p.MinAcceptQuorum)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	supportRequired, err := normalize("supportRequired", p.SupportRequired)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return totalSupply.Mul(minQuorum).Div(million), supportRequired.Mul(hundred), nil
}

func normalize(field, raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, fmt.Errorf("%w: %s is empty", ErrMalformed, field)
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s %q: %v", ErrMalformed, field, raw, err)
	}
	return d.Shift(-fixedPointDecimals), nil
}
