package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/stake-plus/dao-monitor/src/gov"
	"github.com/stake-plus/dao-monitor/src/outcome"
	"github.com/stake-plus/dao-monitor/src/render"
	"github.com/stake-plus/dao-monitor/src/source"
	"github.com/stake-plus/dao-monitor/src/webclient"
)

var (
	subgraphFlag = flag.String("subgraph", source.DefaultSubgraphURL, "Listing GraphQL endpoint")
	detailFlag   = flag.String("detail", source.DefaultDetailURL, "Detail API base URL")
	windowFlag   = flag.Int("window", source.DefaultWindow, "Number of recent proposals to list")
	timeoutFlag  = flag.Duration("timeout", 30*time.Second, "Per-request timeout")
	pauseFlag    = flag.Duration("pause", time.Second, "Pause between detail fetches")
	renderFlag   = flag.Bool("render", false, "Print the rendered announcement for each proposal")
	maxLenFlag   = flag.Int("max-bytes", 400, "Maximum bytes of metadata to print per proposal (0=unlimited)")
)

func main() {
	log.SetFlags(0)
	flag.Parse()

	client := webclient.New(webclient.NewDefault(*timeoutFlag), 1, time.Second)
	adapter := source.NewAdapter(source.NewSubgraph(*subgraphFlag, client), source.NewDetailAPI(*detailFlag, client))
	renderer := render.New(render.DefaultOptions())

	ctx := context.Background()
	start := time.Now()
	proposals, err := adapter.ListRecent(ctx, *windowFlag)
	if err != nil {
		log.Fatalf("listing ❌ %v", err)
	}
	fmt.Printf("listing ✅ %d proposals in %s\n", len(proposals), time.Since(start).Round(time.Millisecond))

	for i, p := range proposals {
		if i > 0 && *pauseFlag > 0 {
			time.Sleep(*pauseFlag)
		}
		if err := inspect(ctx, adapter, renderer, p); err != nil {
			fmt.Printf("[%d] ❌ %v\n", p.VoteID, err)
		}
	}
}

func inspect(ctx context.Context, adapter *source.Adapter, renderer *render.Renderer, p gov.Proposal) error {
	d, err := adapter.FetchDetail(ctx, p.VoteID, p.VoteType)
	if err != nil {
		return fmt.Errorf("detail: %w", err)
	}
	joined := gov.Join(p, d)

	decision, err := outcome.Classify(joined, time.Now())
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}
	t := decision.Tally
	fmt.Printf("=== %d %s (started %s) ===\n", joined.VoteID, joined.VoteType, joined.Started().Format(time.RFC3339))
	fmt.Printf("verdict=%s mature=%v quorum=%s%%/%s%% support=%s%%/%s%% metadata_valid=%v\n",
		decision.Verdict, t.Mature,
		t.QuorumPercent.StringFixed(2), t.RequiredQuorumPercent.StringFixed(2),
		t.SupportPercent.StringFixed(2), t.RequiredSupportPercent.StringFixed(2),
		joined.MetadataValid(),
	)
	fmt.Println(truncate(strings.TrimSpace(joined.Metadata), *maxLenFlag))

	if *renderFlag {
		var msg render.Message
		if decision.Verdict == outcome.Pending {
			msg, err = renderer.NewProposal(joined)
		} else {
			msg, err = renderer.Outcome(joined, decision)
		}
		if err != nil {
			return fmt.Errorf("render: %w", err)
		}
		fmt.Println(msg.Plain())
	}
	return nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
