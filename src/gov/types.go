package gov

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MinMetadataLength is the shortest metadata text considered meaningful.
const MinMetadataLength = 5

// VoteType is the governance vote namespace a proposal belongs to.
type VoteType string

const (
	VoteTypeOwnership VoteType = "Ownership"
	VoteTypeParameter VoteType = "Parameter"
)

// ParseVoteType normalizes an upstream vote type. Values that are neither
// ownership nor parameter votes are kept verbatim.
func ParseVoteType(raw string) VoteType {
	lower := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(lower, "ownership"):
		return VoteTypeOwnership
	case strings.Contains(lower, "parameter"):
		return VoteTypeParameter
	default:
		return VoteType(strings.TrimSpace(raw))
	}
}

// Endpoint returns the detail-source path segment for the vote type.
func (v VoteType) Endpoint() string {
	return strings.ToLower(string(v))
}

func (v VoteType) String() string { return string(v) }

// Category is an independent notification axis tracked per proposal.
type Category string

const (
	CategoryNewProposal Category = "new_proposal"
	CategoryOutcome     Category = "outcome"
)

// Categories lists every known category in a stable order.
var Categories = []Category{CategoryNewProposal, CategoryOutcome}

// ParseCategory accepts the canonical names plus a few operator-friendly aliases.
func ParseCategory(raw string) (Category, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "new_proposal", "new-proposal", "new", "proposal":
		return CategoryNewProposal, true
	case "outcome", "result", "vote":
		return CategoryOutcome, true
	default:
		return "", false
	}
}

// Proposal is one governance vote as seen in a single poll. Tallies are
// 18-decimal fixed point integers encoded as decimal strings.
type Proposal struct {
	VoteID          int64
	VoteType        VoteType
	TxHash          string
	Creator         string
	ExecutionID     string
	StartDate       int64
	TotalSupply     string
	VotesFor        string
	VotesAgainst    string
	SupportRequired string
	MinAcceptQuorum string
	Metadata        string
	HasMetadata     bool
}

// Started returns the vote start as a time.
func (p Proposal) Started() time.Time {
	return time.Unix(p.StartDate, 0).UTC()
}

// MetadataValid reports whether the proposal carries usable metadata text.
func (p Proposal) MetadataValid() bool {
	if !p.HasMetadata {
		return false
	}
	return utf8.RuneCountInString(strings.TrimSpace(p.Metadata)) >= MinMetadataLength
}

// Voter is one entry of the per-voter breakdown returned by the detail source.
type Voter struct {
	TxHash   string
	Voter    string
	Supports bool
	Stake    string
}

// Detail is the per-proposal payload of the detail source.
type Detail struct {
	VoteID          int64
	VoteType        VoteType
	Metadata        string
	HasMetadata     bool
	StartDate       int64
	TotalSupply     string
	VotesFor        string
	VotesAgainst    string
	SupportRequired string
	MinAcceptQuorum string
	Executed        bool
	Votes           []Voter
}

// Join merges a listing snapshot with its detail. Metadata always comes from
// the detail; tallies come from the listing and are only filled from the
// detail when the listing left them empty.
func Join(p Proposal, d Detail) Proposal {
	p.Metadata = d.Metadata
	p.HasMetadata = d.HasMetadata
	if p.StartDate == 0 {
		p.StartDate = d.StartDate
	}
	p.TotalSupply = firstNonEmpty(p.TotalSupply, d.TotalSupply)
	p.VotesFor = firstNonEmpty(p.VotesFor, d.VotesFor)
	p.VotesAgainst = firstNonEmpty(p.VotesAgainst, d.VotesAgainst)
	p.SupportRequired = firstNonEmpty(p.SupportRequired, d.SupportRequired)
	p.MinAcceptQuorum = firstNonEmpty(p.MinAcceptQuorum, d.MinAcceptQuorum)
	return p
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// NotifiedProposal is the persisted dedup flag for one proposal and category.
type NotifiedProposal struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	VoteID     int64     `gorm:"not null;uniqueIndex:idx_notified_vote_category"`
	Category   string    `gorm:"size:32;not null;uniqueIndex:idx_notified_vote_category"`
	NotifiedAt time.Time `gorm:"not null"`
}

// TableName pins the table name regardless of gorm naming strategy.
func (NotifiedProposal) TableName() string { return "notified_proposals" }

// Setting represents a configuration setting stored in the database
type Setting struct {
	ID     uint8  `gorm:"primaryKey"`
	Name   string `gorm:"size:32;not null"`
	Value  string `gorm:"type:text;not null"`
	Active uint8  `gorm:"not null"`
}
