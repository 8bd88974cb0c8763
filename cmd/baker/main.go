// baker is the Tenderbake block producer and attester. It connects to a
// node's RPC endpoint, follows the chain through the head and mempool
// monitors and injects consensus votes and blocks for the key found in its
// base directory.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/tenderbake/tenderbake/baker"
)

var (
	endpointFlag = cli.StringFlag{
		Name:  "endpoint",
		Usage: "RPC URL of the node to bake against",
		Value: baker.Defaults.Endpoint,
	}
	baseDirFlag = cli.StringFlag{
		Name:  "base-dir",
		Usage: "Directory holding the signing key (client directory layout)",
		Value: baker.Defaults.BaseDir,
	}
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: 3,
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "baker"
	app.Usage = "Tenderbake baker"
	app.Flags = []cli.Flag{endpointFlag, baseDirFlag, verbosityFlag}
	app.Action = run
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	handler := log.NewTerminalHandlerWithLevel(os.Stderr, log.FromLegacyLevel(ctx.Int(verbosityFlag.Name)), false)
	log.SetDefault(log.NewLogger(handler))

	cfg, err := baker.LoadConfig(ctx.String(baseDirFlag.Name))
	if err != nil {
		return err
	}
	if ctx.IsSet(endpointFlag.Name) || cfg.Endpoint == "" {
		cfg.Endpoint = ctx.String(endpointFlag.Name)
	}

	b, err := baker.New(cfg)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		<-sigc
		log.Info("shutting down")
		cancel()
	}()

	if err := b.Run(runCtx); err != nil && runCtx.Err() == nil {
		return err
	}
	return nil
}
