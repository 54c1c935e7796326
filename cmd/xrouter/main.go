// Command xrouter is the service-node demo CLI: dispatch a quote/command
// query across the routing overlay, drive an atomic swap through its state
// machine, and inspect the node's peer registry and configuration. Modeled
// on the teacher's mode-detecting, switch-on-argv entrypoint.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/yourusername/xrouter/internal/app"
	"github.com/yourusername/xrouter/internal/cli"
	"github.com/yourusername/xrouter/internal/services/keystore"
	"github.com/yourusername/xrouter/pkg/dial"
	"github.com/yourusername/xrouter/pkg/engine"
	"github.com/yourusername/xrouter/pkg/nodeconfig"
	"github.com/yourusername/xrouter/pkg/registry"
	"github.com/yourusername/xrouter/pkg/swap"
	"github.com/yourusername/xrouter/pkg/xrpacket"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "query":
		handleQuery(os.Args[2:])
	case "swap":
		handleSwap(os.Args[2:])
	case "nodes":
		handleNodes(os.Args[2:])
	case "config":
		handleConfig(os.Args[2:])
	case "metrics":
		handleMetrics(os.Args[2:])
	case "version":
		fmt.Printf("xrouter v%s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("xrouter - decentralized service-routing overlay node")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  xrouter query <service> <command> [params...]   Dispatch a command to N peers")
	fmt.Println("  xrouter swap init <hashedSecret> <initAddr> <respAddr> <value>")
	fmt.Println("  xrouter swap status <hashedSecret>")
	fmt.Println("  xrouter nodes list                               Show the current peer registry")
	fmt.Println("  xrouter config show                              Print the node's configuration")
	fmt.Println("  xrouter metrics                                  Print Prometheus-format counters")
	fmt.Println("  xrouter version")
}

// buildService constructs the node's Service graph with stub dependencies,
// sufficient for demonstrating the wiring; a real deployment supplies a
// live Dialer/Dispatcher/ConfigFetcher bound to the P2P transport.
func buildService() (*app.Service, error) {
	cfg := app.NewConfig()
	cfg.AddChain(app.ChainEntry{
		ChainID:   "bitcoin-regtest",
		Endpoints: []string{"http://127.0.0.1:18443"},
		Network:   "regtest",
		FeePct:    "0.0015",
	})

	var ks *keystore.KeyStore // nil until Open is called against a real mnemonic file

	return app.New(app.Deps{
		Config:      cfg,
		Keystore:    ks,
		Connections: stubConnections{},
		Funds:       stubFunds{},
		Fetcher:     stubFetcher{},
		Dialer:      stubDialer{},
		Dispatcher:  stubDispatcher{},
	})
}

type stubConnections struct{}

func (stubConnections) Connected(registry.NodeID) bool { return true }

type stubFunds struct{}

func (stubFunds) CanCoverFee(string, float64) bool { return true }

type stubFetcher struct{}

func (stubFetcher) FetchConfig(ctx context.Context, n registry.Node) (nodeconfig.NodeConfig, error) {
	return nodeconfig.NodeConfig{}, fmt.Errorf("xrouter: no live config fetcher wired for %s", n.NodeID)
}

type stubDialer struct{}

func (stubDialer) Dial(ctx context.Context, n registry.Node) dial.Outcome {
	return dial.Outcome{Err: fmt.Errorf("xrouter: no live dialer wired for %s", n.NodeID)}
}

type stubDispatcher struct{}

func (stubDispatcher) Send(ctx context.Context, n registry.Node, direct bool, pkt *xrpacket.RequestPacket) error {
	return fmt.Errorf("xrouter: no live dispatcher wired")
}

func handleQuery(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: xrouter query <service> <command> [params...]")
		os.Exit(1)
	}
	svc, err := buildService()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	req := engine.Request{
		Command:     xrpacket.CmdService,
		Service:     args[0],
		CommandName: args[1],
		Params:      args[2:],
		N:           1,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	resp, err := svc.Engine.Execute(ctx, req)
	svc.Metrics.RecordQueryDispatch(req.Service, req.N, time.Since(start), err == nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query failed: %v\n", err)
		os.Exit(1)
	}
	cli.WriteJSON(resp)
}

func handleMetrics(args []string) {
	svc, err := buildService()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(svc.Metrics.Export())
}

func handleSwap(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: xrouter swap init|status ...")
		os.Exit(1)
	}
	svc, err := buildService()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	switch args[0] {
	case "init":
		if len(args) != 5 {
			fmt.Println("usage: xrouter swap init <hashedSecretHex> <initiatorAddr> <responderAddr> <value>")
			os.Exit(1)
		}
		raw, err := hex.DecodeString(args[1])
		if err != nil || len(raw) != 20 {
			fmt.Fprintf(os.Stderr, "invalid hashed secret, want 20 bytes of hex: %v\n", err)
			os.Exit(1)
		}
		var hashed swap.HashedSecret
		copy(hashed[:], raw)
		m, err := svc.NewSwap(args[1], swap.Initiator, swap.Params{
			HashedSecret:     hashed,
			InitiatorAddress: args[2],
			ResponderAddress: args[3],
			Value:            args[4],
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "swap init failed: %v\n", err)
			os.Exit(1)
		}
		cli.WriteJSON(map[string]string{"state": m.State.String(), "id": args[1]})
	case "status":
		if len(args) != 2 {
			fmt.Println("usage: xrouter swap status <hashedSecretHex>")
			os.Exit(1)
		}
		m, ok := svc.Swap(args[1])
		if !ok {
			fmt.Fprintf(os.Stderr, "no swap tracked for %s\n", args[1])
			os.Exit(1)
		}
		cli.WriteJSON(map[string]string{"state": m.State.String()})
	default:
		fmt.Printf("unknown swap subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

func handleNodes(args []string) {
	svc, err := buildService()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	nodes := svc.Registry.Snapshot()
	cli.WriteJSON(nodes)
}

func handleConfig(args []string) {
	svc, err := buildService()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	cli.WriteJSON(svc.Config)
}
