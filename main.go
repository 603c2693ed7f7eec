package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hugoguerrap/nodecoin/pkg/core"
	"github.com/hugoguerrap/nodecoin/pkg/node"
	"github.com/hugoguerrap/nodecoin/pkg/p2p"
	"github.com/hugoguerrap/nodecoin/pkg/store"
)

const version = "0.3.1"

var (
	InfoLog  *log.Logger
	ErrorLog *log.Logger
)

func setupLogging(dataDir string) {
	logDir := filepath.Join(dataDir, "logs")
	if _, err := os.Stat(logDir); os.IsNotExist(err) {
		os.MkdirAll(logDir, 0755)
	}
	fInfo, _ := os.OpenFile(filepath.Join(logDir, "node.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	fErr, _ := os.OpenFile(filepath.Join(logDir, "error.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	InfoLog = log.New(fInfo, "INFO: ", log.Ldate|log.Ltime|log.Lshortfile)
	ErrorLog = log.New(fErr, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	app := &cli.App{
		Name:    "nodecoin",
		Usage:   "autonomous settlement node for the Nodecoin world",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "player name", EnvVars: []string{"NODECOIN_NAME"}, Required: true},
			&cli.StringFlag{Name: "id", Usage: "player id (defaults to a hash of name+seed)", EnvVars: []string{"NODECOIN_ID"}},
			&cli.StringFlag{Name: "biome", Usage: "plains, forest, mountain, desert, coast or volcanic", EnvVars: []string{"NODECOIN_BIOME"}, Value: "plains"},
			&cli.StringFlag{Name: "seed", Usage: "world seed", EnvVars: []string{"NODECOIN_SEED"}, Value: "nodecoin"},
			&cli.StringFlag{Name: "data-dir", Usage: "data directory", EnvVars: []string{"NODECOIN_DATA_DIR"}, Value: "./data"},
			&cli.IntFlag{Name: "port", Usage: "p2p listen port", EnvVars: []string{"NODECOIN_PORT"}, Value: 9650},
			&cli.StringFlag{Name: "bootstrap", Usage: "comma-separated bootstrap multiaddrs", EnvVars: []string{"NODECOIN_BOOTSTRAP"}},
			&cli.BoolFlag{Name: "no-p2p", Usage: "run offline", EnvVars: []string{"NODECOIN_NO_P2P"}},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(cc *cli.Context) error {
	dataDir := cc.String("data-dir")
	setupLogging(dataDir)

	InfoLog.Println("NODECOIN BOOT SEQUENCE")

	st, err := store.Open(dataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	if pruned, err := st.PrunePeers(time.Now(), store.KnownPeerMaxAge); err == nil && pruned > 0 {
		InfoLog.Printf("pruned %d stale known peers", pruned)
	}

	playerID := cc.String("id")
	if playerID == "" {
		playerID = core.HashBLAKE3([]byte(cc.String("name") + ":" + cc.String("seed")))[:16]
	}

	ctrl, err := node.New(node.Config{
		PlayerID:   playerID,
		PlayerName: cc.String("name"),
		Biome:      cc.String("biome"),
		Seed:       cc.String("seed"),
	}, st, InfoLog)
	if err != nil {
		return err
	}
	InfoLog.Printf("Player %s (%s) ready, chain length %d", cc.String("name"), playerID, ctrl.GetChainStatus().Length)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !cc.Bool("no-p2p") {
		var bootstrap []string
		if raw := cc.String("bootstrap"); raw != "" {
			for _, addr := range strings.Split(raw, ",") {
				bootstrap = append(bootstrap, strings.TrimSpace(addr))
			}
		}
		// Re-dial recent known peers as well.
		if hints, err := st.LoadPeers(10); err == nil {
			for _, h := range hints {
				bootstrap = append(bootstrap, h.Multiaddr)
			}
		}

		bus, err := p2p.NewLibp2pBus(ctx, playerID, cc.Int("port"), bootstrap, InfoLog)
		if err != nil {
			return err
		}
		defer bus.Close()

		coord := p2p.NewCoordinator(bus, st, ctrl.View(), InfoLog,
			playerID, cc.String("name"), ctrl.Era,
			func() int64 { return time.Now().UnixMilli() })
		bus.OnPeerConnect = coord.PeerConnected
		ctrl.SetNetwork(coord)
		coord.Start(ctx)

		for _, addr := range bus.Addrs() {
			InfoLog.Printf("Listening on %s", addr)
		}
	} else {
		InfoLog.Println("P2P disabled, running offline")
	}

	ctrl.StartTickLoop(ctx)
	InfoLog.Printf("Node %s listening for commands", playerID)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	InfoLog.Println("Shutting down...")
	cancel()
	return ctrl.Shutdown()
}
