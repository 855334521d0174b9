// Package render turns proposals and decisions into announcement messages.
// A Message is fully built before anything is marked or sent; channels then
// pick the output flavour they support.
package render

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/stake-plus/dao-monitor/src/gov"
	"github.com/stake-plus/dao-monitor/src/outcome"
)

// Kind identifies the lifecycle point a message announces.
type Kind string

const (
	KindNewProposal Kind = "new_proposal"
	KindPassed      Kind = "passed"
	KindDenied      Kind = "denied"
)

// ErrNotFinal is returned when asked to announce a pending decision.
var ErrNotFinal = errors.New("render: decision is not final")

// Link is a labelled URL shown under a message.
type Link struct {
	Label string
	URL   string
}

// Message is a rendered announcement, independent of any chat markup.
type Message struct {
	Kind     Kind
	VoteID   int64
	VoteType gov.VoteType
	Headline string
	Body     string
	Summary  []string
	Links    []Link
}

// Options controls the wording and link targets.
type Options struct {
	Symbol        string
	ExplorerTxURL string
	ForumURL      string
	// ProposalURL is a format string taking the lowercase vote type and the vote id.
	ProposalURL string
}

// DefaultOptions matches Curve DAO.
func DefaultOptions() Options {
	return Options{
		Symbol:        "veCRV",
		ExplorerTxURL: "https://etherscan.io/tx/",
		ForumURL:      "https://gov.curve.fi/",
		ProposalURL:   "https://curvemonitor.com/#/dao/proposal/%s/%d",
	}
}

// Renderer builds messages. It is safe for concurrent use.
type Renderer struct {
	opts      Options
	sanitizer *bluemonday.Policy
}

// New returns a renderer, filling unset options from DefaultOptions.
func New(opts Options) *Renderer {
	def := DefaultOptions()
	if opts.Symbol == "" {
		opts.Symbol = def.Symbol
	}
	if opts.ExplorerTxURL == "" {
		opts.ExplorerTxURL = def.ExplorerTxURL
	}
	if opts.ForumURL == "" {
		opts.ForumURL = def.ForumURL
	}
	if opts.ProposalURL == "" {
		opts.ProposalURL = def.ProposalURL
	}
	return &Renderer{opts: opts, sanitizer: bluemonday.StrictPolicy()}
}

// NewProposal renders the creation announcement.
func (r *Renderer) NewProposal(p gov.Proposal) (Message, error) {
	quorum, support, err := outcome.Requirements(p)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Kind:     KindNewProposal,
		VoteID:   p.VoteID,
		VoteType: p.VoteType,
		Headline: fmt.Sprintf("🗞️ New Proposal for %s", p.VoteType),
		Body:     r.CleanMetadata(p.Metadata),
		Summary: []string{
			fmt.Sprintf("Requirements: %sm %s | Support: %s%%", quorum.StringFixed(0), r.opts.Symbol, support.StringFixed(0)),
		},
		Links: r.links(p),
	}, nil
}

// Outcome renders the announcement for a final decision.
func (r *Renderer) Outcome(p gov.Proposal, d outcome.Decision) (Message, error) {
	t := d.Tally
	totals := fmt.Sprintf("Total Votes: %sm %s | Yea: %s%%",
		t.TotalVotesMillions().StringFixed(0), r.opts.Symbol, t.YeaPercent().StringFixed(2))

	msg := Message{
		VoteID:   p.VoteID,
		VoteType: p.VoteType,
		Body:     r.CleanMetadata(p.Metadata),
		Links:    r.links(p),
	}
	switch d.Verdict {
	case outcome.Passed:
		msg.Kind = KindPassed
		msg.Headline = "🗞️ Vote Passed ✓"
		msg.Summary = []string{totals}
	case outcome.Denied:
		msg.Kind = KindDenied
		msg.Headline = "🗞️ Vote Denied ✗"
		msg.Summary = []string{
			totals,
			fmt.Sprintf("Quorum: %s%% of %s%% | Support: %s%% of %s%%",
				t.QuorumPercent.StringFixed(2), t.RequiredQuorumPercent.StringFixed(0),
				t.SupportPercent.StringFixed(2), t.RequiredSupportPercent.StringFixed(0)),
		}
	default:
		return Message{}, fmt.Errorf("%w: vote %d is %s", ErrNotFinal, p.VoteID, d.Verdict)
	}
	return msg, nil
}

// CleanMetadata strips markup plus a leading and a trailing quote from
// proposal metadata, returning plain text.
func (r *Renderer) CleanMetadata(raw string) string {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, `"`)
	text = strings.TrimSuffix(text, `"`)
	text = html.UnescapeString(r.sanitizer.Sanitize(text))
	return strings.TrimSpace(text)
}

func (r *Renderer) links(p gov.Proposal) []Link {
	var links []Link
	if p.TxHash != "" {
		links = append(links, Link{Label: "etherscan", URL: r.opts.ExplorerTxURL + p.TxHash})
	}
	links = append(links,
		Link{Label: "gov.curve.fi", URL: r.opts.ForumURL},
		Link{Label: "curvemonitor", URL: fmt.Sprintf(r.opts.ProposalURL, p.VoteType.Endpoint(), p.VoteID)},
	)
	return links
}
