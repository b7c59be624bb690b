// Command btpc-node runs a single node: chain storage, UTXO set,
// header/block validation and optional block mining, wired together
// and driven from a JSON config file plus CLI overrides.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"btpc.dev/node/chainindex"
	"btpc.dev/node/consensus"
	"btpc.dev/node/crypto"
	"btpc.dev/node/genesis"
	"btpc.dev/node/internal/log"
	"btpc.dev/node/mempool"
	"btpc.dev/node/mining"
	"btpc.dev/node/store"
	"btpc.dev/node/utxoset"
)

func loadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func parseNetwork(s string) (consensus.Network, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mainnet":
		return consensus.Mainnet, nil
	case "testnet":
		return consensus.Testnet, nil
	case "regtest":
		return consensus.Regtest, nil
	default:
		return 0, fmt.Errorf("unknown network %q", s)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to JSON config file")
	dataDir := flag.String("datadir", "", "override data_dir")
	network := flag.String("network", "", "override network (mainnet|testnet|regtest)")
	mine := flag.Bool("mine", false, "override mine")
	payout := flag.String("payout-address", "", "override payout_address")
	logLevel := flag.String("log-level", "", "override log_level")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *network != "" {
		cfg.Network = *network
	}
	if *mine {
		cfg.Mine = true
	}
	if *payout != "" {
		cfg.PayoutAddress = *payout
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	if err := ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := log.Init(cfg.LogLevel, cfg.LogJSON, ""); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	net, err := parseNetwork(cfg.Network)
	if err != nil {
		return err
	}

	eng, err := store.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer eng.Close()

	genesisBlock, err := genesis.Build(net)
	if err != nil {
		return fmt.Errorf("build genesis: %w", err)
	}

	provider := crypto.StdProvider{}
	utxos := utxoset.New(eng)

	nowFn := func() uint64 { return uint64(time.Now().Unix()) }
	pool := mempool.New(utxos, nowFn)

	chain, err := chainindex.New(eng, utxos, pool, provider, net, genesisBlock)
	if err != nil {
		return fmt.Errorf("init chain engine: %w", err)
	}

	log.Chain.Info().
		Str("network", net.String()).
		Str("tip", chain.TipHash().String()).
		Uint64("height", chain.TipHeight()).
		Msg("btpc-node: started")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Chain.Info().Msg("btpc-node: shutdown signal received")
		cancel()
	}()

	if cfg.Mine {
		_, payload, err := crypto.Base58CheckDecode(cfg.PayoutAddress, consensus.AddressVersion(net, false), consensus.AddressVersion(net, true))
		if err != nil {
			return fmt.Errorf("invalid payout_address: %w", err)
		}
		miner := mining.NewMiner(chain, pool, payload, nowFn)
		go miner.Run(ctx)
	}

	<-ctx.Done()
	log.Chain.Info().Msg("btpc-node: shutting down")
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "btpc-node:", err)
		os.Exit(1)
	}
}
