package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stake-plus/dao-monitor/src/gov"
	"github.com/stake-plus/dao-monitor/src/webclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingBody = `{"data":{"proposals":[
  {"id":"0x1-p-3","tx":"0xccc","voteId":"3","voteType":"PARAMETER","creator":{"id":"0xabc"},
   "startDate":"1700000300","totalSupply":"1000000000000000000000000","votesFor":"6","votesAgainst":"1",
   "supportRequired":"500000000000000000","minAcceptQuorum":"300000000000000000","executed":false,"execution":null,
   "metadata":"ignored"},
  {"id":"0x1-o-2","tx":"0xbbb","voteId":"2","voteType":"OWNERSHIP","creator":{"id":"0xdef"},
   "startDate":"1700000200","totalSupply":"1","votesFor":"0","votesAgainst":"0",
   "supportRequired":"1","minAcceptQuorum":"1","executed":true,"execution":{"id":"exec-2"}},
  {"id":"0x1-p-1","tx":"0xaaa","voteId":"1","voteType":"PARAMETER","creator":null,
   "startDate":"1700000100","totalSupply":"1","votesFor":"0","votesAgainst":"0",
   "supportRequired":"1","minAcceptQuorum":"1","executed":false,"execution":null}
]}}`

func newClient(srv *httptest.Server) *webclient.Client {
	return webclient.New(srv.Client(), 1, time.Millisecond)
}

func TestListRecentReturnsOldestFirst(t *testing.T) {
	var gotFirst float64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req graphQLRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "orderDirection: desc")
		gotFirst, _ = req.Variables["first"].(float64)
		_, _ = w.Write([]byte(listingBody))
	}))
	defer srv.Close()

	adapter := NewAdapter(NewSubgraph(srv.URL, newClient(srv)), nil)
	proposals, err := adapter.ListRecent(context.Background(), 25)
	require.NoError(t, err)
	assert.Equal(t, float64(25), gotFirst)

	require.Len(t, proposals, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{proposals[0].VoteID, proposals[1].VoteID, proposals[2].VoteID})

	newest := proposals[2]
	assert.Equal(t, gov.VoteTypeParameter, newest.VoteType)
	assert.Equal(t, "0xccc", newest.TxHash)
	assert.Equal(t, "0xabc", newest.Creator)
	assert.Equal(t, int64(1700000300), newest.StartDate)
	assert.Equal(t, "1000000000000000000000000", newest.TotalSupply)
	assert.False(t, newest.HasMetadata, "listing metadata is not trusted")

	assert.Equal(t, gov.VoteTypeOwnership, proposals[1].VoteType)
	assert.Equal(t, "exec-2", proposals[1].ExecutionID)
	assert.Empty(t, proposals[0].Creator)
}

func TestListRecentErrors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"graphql errors": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"errors":[{"message":"indexer down"}]}`))
		},
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
		"garbage": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		},
		"no data": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		},
		"bad vote id": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":{"proposals":[{"voteId":"x"}]}}`))
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()
			adapter := NewAdapter(NewSubgraph(srv.URL, newClient(srv)), nil)
			_, err := adapter.ListRecent(context.Background(), 25)
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}
}

func TestFetchDetailRoutesByVoteType(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte(`{"voteId":42,"voteType":"PARAMETER","startDate":1700000000,
			"metadata":"Raise the A parameter","votesFor":"600","votesAgainst":100,
			"supportRequired":"500000000000000000","minAcceptQuorum":"300000000000000000",
			"totalSupply":"1000","executed":false,
			"votes":[{"tx":"0x1","voteId":42,"voter":"0xv","supports":true,"stake":1.5e21}]}`))
	}))
	defer srv.Close()

	adapter := NewAdapter(nil, NewDetailAPI(srv.URL+"/curve/v1/dao/proposals/", newClient(srv)))
	d, err := adapter.FetchDetail(context.Background(), 42, gov.VoteTypeParameter)
	require.NoError(t, err)

	assert.Equal(t, "/curve/v1/dao/proposals/parameter/42", path)
	assert.Equal(t, int64(42), d.VoteID)
	assert.True(t, d.HasMetadata)
	assert.Equal(t, "Raise the A parameter", d.Metadata)
	assert.Equal(t, "100", d.VotesAgainst)
	assert.Equal(t, int64(1700000000), d.StartDate)
	require.Len(t, d.Votes, 1)
	assert.True(t, d.Votes[0].Supports)
	assert.Equal(t, "1.5e21", d.Votes[0].Stake)
}

func TestFetchDetailMetadataVariants(t *testing.T) {
	cases := map[string]struct {
		body string
		has  bool
	}{
		"null":       {`{"metadata":null}`, false},
		"absent":     {`{}`, false},
		"non string": {`{"metadata":{"text":"x"}}`, false},
		"empty":      {`{"metadata":""}`, true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()
			d, err := NewDetailAPI(srv.URL, newClient(srv)).Fetch(context.Background(), 1, gov.VoteTypeOwnership)
			require.NoError(t, err)
			assert.Equal(t, tc.has, d.HasMetadata)
			assert.Equal(t, int64(1), d.VoteID)
		})
	}
}

func TestFetchDetailErrors(t *testing.T) {
	notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer notFound.Close()
	_, err := NewDetailAPI(notFound.URL, newClient(notFound)).Fetch(context.Background(), 9, gov.VoteTypeOwnership)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrUnavailable)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer broken.Close()
	_, err = NewDetailAPI(broken.URL, newClient(broken)).Fetch(context.Background(), 9, gov.VoteTypeOwnership)
	assert.ErrorIs(t, err, ErrUnavailable)

	broken.Close()
	_, err = NewDetailAPI(broken.URL, newClient(broken)).Fetch(context.Background(), 9, gov.VoteTypeOwnership)
	assert.ErrorIs(t, err, ErrUnavailable)
}
