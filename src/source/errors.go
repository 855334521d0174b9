// Package source reads governance proposals from the subgraph listing and the
// per-proposal detail API.
package source

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/stake-plus/dao-monitor/src/webclient"
)

var (
	// ErrUnavailable covers network failures, non-success statuses and
	// payloads that cannot be decoded.
	ErrUnavailable = errors.New("source: upstream unavailable")
	// ErrNotFound is returned when the detail API has no record of a vote.
	ErrNotFound = errors.New("source: proposal not found")
)

// HTTPError is the non-success response reported by an upstream.
type HTTPError = webclient.HTTPError

// classify maps a transport error onto the package sentinels while keeping
// the original error reachable through errors.As.
func classify(op string, err error) error {
	var httpErr *webclient.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
