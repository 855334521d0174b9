package scanner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stake-plus/dao-monitor/src/gov"
	"github.com/stake-plus/dao-monitor/src/notify"
	"github.com/stake-plus/dao-monitor/src/render"
	"github.com/stake-plus/dao-monitor/src/source"
	"github.com/stake-plus/dao-monitor/src/store"
	"github.com/stake-plus/dao-monitor/src/webclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Unix(1_700_000_000, 0)

const (
	day      = int64(24 * 60 * 60)
	metadata = "Add a gauge for the crvUSD/USDC pool"
)

type fakeSource struct {
	proposals []gov.Proposal
	details   map[int64]gov.Detail
	listErr   error
	detailErr map[int64]error

	fetches map[int64]int
}

func (f *fakeSource) ListRecent(context.Context, int) ([]gov.Proposal, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]gov.Proposal(nil), f.proposals...), nil
}

func (f *fakeSource) FetchDetail(_ context.Context, voteID int64, _ gov.VoteType) (gov.Detail, error) {
	if f.fetches == nil {
		f.fetches = make(map[int64]int)
	}
	f.fetches[voteID]++
	if err := f.detailErr[voteID]; err != nil {
		return gov.Detail{}, err
	}
	d, ok := f.details[voteID]
	if !ok {
		return gov.Detail{}, source.ErrNotFound
	}
	return d, nil
}

type recorder struct {
	mu   sync.Mutex
	msgs []render.Message
}

func (r *recorder) Emit(_ context.Context, msg render.Message) notify.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return notify.Result{Delivered: 1}
}

func (r *recorder) kinds() []string {
	out := make([]string, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, fmt.Sprintf("%d:%s", m.VoteID, m.Kind))
	}
	return out
}

type countingPacer struct{ calls int }

func (c *countingPacer) Pace(ctx context.Context) error {
	c.calls++
	return ctx.Err()
}

// proposal returns a passing proposal that started age seconds ago.
func proposal(id int64, age int64) gov.Proposal {
	return gov.Proposal{
		VoteID:          id,
		VoteType:        gov.VoteTypeParameter,
		TxHash:          fmt.Sprintf("0x%d", id),
		StartDate:       now.Unix() - age,
		TotalSupply:     "1000000000000000000000000",
		VotesFor:        "600000000000000000000000",
		VotesAgainst:    "100000000000000000000000",
		MinAcceptQuorum: "300000000000000000",
		SupportRequired: "500000000000000000",
	}
}

func detail(id int64, text string) gov.Detail {
	return gov.Detail{VoteID: id, Metadata: text, HasMetadata: true}
}

type harness struct {
	src   *fakeSource
	store store.Store
	out   *recorder
	pacer *countingPacer
	scan  *Scanner
}

func newHarness(t *testing.T, st store.Store, proposals []gov.Proposal, details map[int64]gov.Detail, opts ...Option) *harness {
	t.Helper()
	if st == nil {
		st = store.NewMemory()
	}
	h := &harness{
		src:   &fakeSource{proposals: proposals, details: details},
		store: st,
		out:   &recorder{},
		pacer: &countingPacer{},
	}
	base := []Option{WithPacer(h.pacer), WithClock(func() time.Time { return now })}
	h.scan = New(h.src, st, render.New(render.DefaultOptions()), h.out, append(base, opts...)...)
	return h
}

func notified(t *testing.T, st store.Store, id int64, c gov.Category) bool {
	t.Helper()
	ok, err := st.IsNotified(context.Background(), id, c)
	require.NoError(t, err)
	return ok
}

func TestScanAnnouncesNewProposalOnce(t *testing.T) {
	h := newHarness(t, nil, []gov.Proposal{proposal(1, day)}, map[int64]gov.Detail{1: detail(1, metadata)})

	report, err := h.scan.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1:new_proposal"}, h.out.kinds())
	assert.Equal(t, 1, report.NewAnnounced)
	assert.Equal(t, 1, report.Pending)
	assert.True(t, notified(t, h.store, 1, gov.CategoryNewProposal))
	assert.False(t, notified(t, h.store, 1, gov.CategoryOutcome))
	assert.Contains(t, h.out.msgs[0].Body, "crvUSD/USDC")

	_, err = h.scan.Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, h.out.msgs, 1, "a notified proposal is never re-announced")
}

func TestScanEmitsInChronologicalOrder(t *testing.T) {
	listing := `{"data":{"proposals":[%s]}}`
	var rows []string
	for _, id := range []int64{103, 102, 101} {
		rows = append(rows, fmt.Sprintf(`{"voteId":"%d","voteType":"PARAMETER","tx":"0x%d","startDate":"%d",
			"totalSupply":"1000","votesFor":"1","votesAgainst":"0","supportRequired":"1","minAcceptQuorum":"1"}`,
			id, id, now.Unix()-day+id))
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, _ = fmt.Fprintf(w, listing, strings.Join(rows, ","))
			return
		}
		_, _ = fmt.Fprintf(w, `{"metadata":"Proposal at %s"}`, r.URL.Path)
	}))
	defer srv.Close()

	client := webclient.New(srv.Client(), 1, time.Millisecond)
	adapter := source.NewAdapter(source.NewSubgraph(srv.URL, client), source.NewDetailAPI(srv.URL, client))
	out := &recorder{}
	s := New(adapter, store.NewMemory(), render.New(render.Options{}), out,
		WithPacer(&countingPacer{}), WithClock(func() time.Time { return now }))

	report, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{101, 102, 103}, report.Emitted)
	assert.Equal(t, []string{"101:new_proposal", "102:new_proposal", "103:new_proposal"}, out.kinds())
}

func TestScanSkipsShortMetadataAndRetries(t *testing.T) {
	details := map[int64]gov.Detail{1: detail(1, " abc ")}
	h := newHarness(t, nil, []gov.Proposal{proposal(1, day)}, details)

	report, err := h.scan.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, h.out.msgs)
	assert.Equal(t, 2, report.SkippedMetadata)
	assert.False(t, notified(t, h.store, 1, gov.CategoryNewProposal))

	details[1] = gov.Detail{VoteID: 1}
	_, err = h.scan.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, h.out.msgs, "absent metadata is skipped too")

	details[1] = detail(1, metadata)
	_, err = h.scan.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1:new_proposal"}, h.out.kinds())
}

func TestScanSkipsMetadataThatCleansToNothing(t *testing.T) {
	for _, raw := range []string{
		"<b></b><i></i>",
		`"   "  `,
		"<img src=x onerror=alert(1)>",
		"<p>ab</p><br/>",
	} {
		t.Run(raw, func(t *testing.T) {
			details := map[int64]gov.Detail{7: detail(7, raw)}
			h := newHarness(t, nil, []gov.Proposal{proposal(7, 700000)}, details)

			report, err := h.scan.Scan(context.Background())
			require.NoError(t, err)
			assert.Empty(t, h.out.msgs)
			assert.Equal(t, 2, report.SkippedMetadata)
			assert.False(t, notified(t, h.store, 7, gov.CategoryNewProposal))
			assert.False(t, notified(t, h.store, 7, gov.CategoryOutcome))

			details[7] = detail(7, metadata)
			_, err = h.scan.Scan(context.Background())
			require.NoError(t, err)
			assert.Equal(t, []string{"7:new_proposal", "7:passed"}, h.out.kinds())
		})
	}
}

func TestScanNewAndPassedInSamePass(t *testing.T) {
	h := newHarness(t, nil, []gov.Proposal{proposal(5, 700000)}, map[int64]gov.Detail{5: detail(5, metadata)})

	report, err := h.scan.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"5:new_proposal", "5:passed"}, h.out.kinds())
	assert.Equal(t, 1, h.src.fetches[5], "detail is fetched once per proposal per pass")
	assert.Equal(t, 1, report.DetailFetches)
	assert.Equal(t, 2, h.pacer.calls)
	assert.Contains(t, h.out.msgs[1].Summary[0], "Yea: 85.71%")
	assert.True(t, notified(t, h.store, 5, gov.CategoryOutcome))
}

func TestScanPassedAfterMaturity(t *testing.T) {
	st := store.NewMemory()
	require.NoError(t, st.MarkNotified(context.Background(), 9, gov.CategoryNewProposal))

	p := proposal(9, 604799)
	h := newHarness(t, st, []gov.Proposal{p}, map[int64]gov.Detail{9: detail(9, metadata)})
	report, err := h.scan.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, h.out.msgs)
	assert.Equal(t, 1, report.Pending)
	assert.False(t, notified(t, st, 9, gov.CategoryOutcome), "pending leaves the slot open")

	h.src.proposals[0].StartDate = now.Unix() - 604800
	_, err = h.scan.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"9:passed"}, h.out.kinds())
}

func deniedProposal(id int64) gov.Proposal {
	p := proposal(id, 700000)
	p.VotesFor = "0"
	p.VotesAgainst = "0"
	return p
}

func TestScanDeniedConsumesSlotSilently(t *testing.T) {
	st := store.NewMemory()
	require.NoError(t, st.MarkNotified(context.Background(), 3, gov.CategoryNewProposal))
	h := newHarness(t, st, []gov.Proposal{deniedProposal(3)}, map[int64]gov.Detail{3: detail(3, metadata)})

	report, err := h.scan.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, h.out.msgs)
	assert.Equal(t, 1, report.DeniedSilent)
	assert.True(t, notified(t, st, 3, gov.CategoryOutcome))

	_, err = h.scan.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, h.src.fetches[3], "a settled proposal is not fetched again")
}

func TestScanAnnouncesDeniedWhenEnabled(t *testing.T) {
	st := store.NewMemory()
	require.NoError(t, st.MarkNotified(context.Background(), 3, gov.CategoryNewProposal))
	h := newHarness(t, st, []gov.Proposal{deniedProposal(3)}, map[int64]gov.Detail{3: detail(3, metadata)},
		WithAnnounceDenied(true))

	report, err := h.scan.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"3:denied"}, h.out.kinds())
	assert.Equal(t, 1, report.DeniedAnnounced)
	assert.True(t, notified(t, st, 3, gov.CategoryOutcome))
}

func TestScanListingUnavailableMutatesNothing(t *testing.T) {
	h := newHarness(t, nil, []gov.Proposal{proposal(1, day)}, map[int64]gov.Detail{1: detail(1, metadata)})
	h.src.listErr = fmt.Errorf("subgraph: %w: HTTP 502", source.ErrUnavailable)

	report, err := h.scan.Scan(context.Background())
	assert.ErrorIs(t, err, source.ErrUnavailable)
	assert.Equal(t, ResultUnavailable, report.Result)
	assert.Empty(t, h.out.msgs)
	assert.Empty(t, h.src.fetches)
	assert.False(t, notified(t, h.store, 1, gov.CategoryNewProposal))

	last, ok := h.scan.LastReport()
	require.True(t, ok)
	assert.Equal(t, report.RunID, last.RunID)
}

func TestScanDetailUnavailableSkipsProposal(t *testing.T) {
	h := newHarness(t, nil,
		[]gov.Proposal{proposal(1, day), proposal(2, day)},
		map[int64]gov.Detail{2: detail(2, metadata)})
	h.src.detailErr = map[int64]error{1: fmt.Errorf("detail 1: %w", source.ErrUnavailable)}

	report, err := h.scan.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"2:new_proposal"}, h.out.kinds())
	assert.Equal(t, 1, h.src.fetches[1])
	assert.Equal(t, 2, report.SkippedUnavailable)
	assert.False(t, notified(t, h.store, 1, gov.CategoryNewProposal))
}

func TestScanMalformedTalliesAreRetried(t *testing.T) {
	p := proposal(4, 700000)
	p.TotalSupply = "n/a"
	h := newHarness(t, nil, []gov.Proposal{p}, map[int64]gov.Detail{4: detail(4, metadata)})

	report, err := h.scan.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, h.out.msgs)
	assert.Equal(t, 2, report.SkippedMalformed)
	assert.False(t, notified(t, h.store, 4, gov.CategoryNewProposal))
	assert.False(t, notified(t, h.store, 4, gov.CategoryOutcome))
}

type failingStore struct {
	store.Store
}

func (failingStore) MarkNotified(context.Context, int64, gov.Category) error {
	return errors.New("disk full")
}

func TestScanWithholdsAnnouncementWhenMarkFails(t *testing.T) {
	h := newHarness(t, failingStore{store.NewMemory()}, []gov.Proposal{proposal(1, day)},
		map[int64]gov.Detail{1: detail(1, metadata)})

	report, err := h.scan.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, h.out.msgs)
	assert.Equal(t, 1, report.StoreErrors)
}

func TestScanSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notified_ids.json")
	proposals := []gov.Proposal{proposal(55, day)}
	details := map[int64]gov.Detail{55: detail(55, metadata)}

	first, err := store.OpenFile(path)
	require.NoError(t, err)
	h := newHarness(t, first, proposals, details)
	_, err = h.scan.Scan(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"55:new_proposal"}, h.out.kinds())

	reopened, err := store.OpenFile(path)
	require.NoError(t, err)
	h2 := newHarness(t, reopened, proposals, details)
	_, err = h2.scan.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, h2.out.msgs)
}

func TestScanStopsWhenPacerIsCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := newHarness(t, nil,
		[]gov.Proposal{proposal(1, day), proposal(2, day)},
		map[int64]gov.Detail{1: detail(1, metadata), 2: detail(2, metadata)},
		WithPacer(PacerFunc(func(context.Context) error {
			cancel()
			return context.Canceled
		})))

	report, err := h.scan.Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ResultCanceled, report.Result)
	assert.Equal(t, []string{"1:new_proposal"}, h.out.kinds())
}

func TestDryRunOverlayLeavesBaseUntouched(t *testing.T) {
	base := store.NewMemory()
	h := newHarness(t, store.NewOverlay(base), []gov.Proposal{proposal(8, day)},
		map[int64]gov.Detail{8: detail(8, metadata)}, WithDryRun(true))

	report, err := h.scan.Scan(context.Background())
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Len(t, h.out.msgs, 1)
	assert.False(t, notified(t, base, 8, gov.CategoryNewProposal))
}

func TestSleepPacer(t *testing.T) {
	start := time.Now()
	require.NoError(t, SleepPacer(10*time.Millisecond).Pace(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepPacer(time.Hour).Pace(ctx), context.Canceled)
}
