package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/hdscan/internal/config"
	"github.com/tdex-network/hdscan/pkg/chain"
	"github.com/tdex-network/hdscan/pkg/explorer"
	"github.com/tdex-network/hdscan/pkg/explorer/esplora"
	"github.com/tdex-network/hdscan/pkg/hdscan"
	"github.com/tdex-network/hdscan/pkg/wallet"
	"github.com/urfave/cli/v2"
)

const (
	mnemonicFlag     = "mnemonic"
	seedFlag         = "seed"
	extendedKeyFlag  = "xkey"
	passphraseFlag   = "passphrase"
	chainFlag        = "chain"
	networkFlag      = "network"
	explorerFlag     = "explorer"
	peerExplorerFlag = "peer-explorer"
	basePathFlag     = "base-path"
	watchOnlyFlag    = "watch-only"
	prefetchFlag     = "prefetch"
)

var (
	maxConcurrentRequests = 8

	// flag name -> config key
	configFlags = map[string]string{
		mnemonicFlag:     config.MnemonicKey,
		extendedKeyFlag:  config.ExtendedKeyKey,
		chainFlag:        config.ChainKey,
		networkFlag:      config.NetworkKey,
		explorerFlag:     config.ExplorerEndpointKey,
		peerExplorerFlag: config.PeerExplorerEndpointKey,
		basePathFlag:     config.BasePathKey,
		watchOnlyFlag:    config.WatchOnlyKey,
		prefetchFlag:     config.PrefetchKey,
	}
)

func main() {
	app := cli.NewApp()

	app.Version = "0.1.0"
	app.Name = "hdscan"
	app.Usage = "Command line interface to scan the address space of an HD wallet"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:  mnemonicFlag,
			Usage: "space separated BIP39 mnemonic of the wallet",
		},
		&cli.StringFlag{
			Name:  seedFlag,
			Usage: "hex encoded seed of the wallet",
		},
		&cli.StringFlag{
			Name:  extendedKeyFlag,
			Usage: "base58 xprv or xpub of the account, an xpub makes the address space watch-only",
		},
		&cli.StringFlag{
			Name:  passphraseFlag,
			Usage: "optional BIP39 passphrase of the mnemonic",
		},
		&cli.StringFlag{
			Name:  chainFlag,
			Usage: "the chain of the address space, one of bitcoin, liquid",
		},
		&cli.StringFlag{
			Name:  networkFlag,
			Usage: "the network of the address space, one of mainnet, testnet, regtest",
		},
		&cli.StringFlag{
			Name:  explorerFlag,
			Usage: "the url of the esplora REST API of the chain",
		},
		&cli.StringFlag{
			Name:  peerExplorerFlag,
			Usage: "the url of the esplora REST API of the peer chain",
		},
		&cli.StringFlag{
			Name:  basePathFlag,
			Usage: "the derivation path of the address space",
		},
		&cli.BoolFlag{
			Name:  watchOnlyFlag,
			Usage: "do not derive private keys",
		},
		&cli.BoolFlag{
			Name:  prefetchFlag,
			Usage: "look up the next batch of addresses while the current one is in flight",
		},
	}
	app.Before = initConfig
	app.Commands = append(
		app.Commands,
		&genseed,
		&scan,
		&next,
		&addresses,
		&utxos,
		&atomicUtxos,
		&watch,
	)

	err := app.Run(os.Args)
	if err != nil {
		fatal(err)
	}
}

func initConfig(ctx *cli.Context) error {
	overrides := make(map[string]interface{})
	for flag, key := range configFlags {
		if ctx.IsSet(flag) {
			overrides[key] = ctx.Value(flag)
		}
	}
	if err := config.InitConfig(overrides); err != nil {
		return err
	}

	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))
	return nil
}

// newManager builds the address space manager out of the configuration.
// The returned manager is not initialized yet.
func newManager(ctx *cli.Context) (*hdscan.Manager, error) {
	deriver, err := newDeriver(ctx)
	if err != nil {
		return nil, err
	}

	c, err := newChain()
	if err != nil {
		return nil, err
	}

	return hdscan.NewManager(hdscan.ManagerOpts{
		BasePath:   config.GetBasePath(),
		Deriver:    deriver,
		Chain:      c,
		WatchOnly:  config.GetBool(config.WatchOnlyKey),
		ScanConfig: config.GetScanConfig(),
	})
}

func newDeriver(ctx *cli.Context) (*wallet.HDKeyDeriver, error) {
	opts := wallet.NewHDKeyDeriverOpts{
		Mnemonic:    config.GetMnemonic(),
		Passphrase:  ctx.String(passphraseFlag),
		ExtendedKey: config.GetString(config.ExtendedKeyKey),
	}
	if seed := ctx.String(seedFlag); len(seed) > 0 {
		buf, err := hex.DecodeString(seed)
		if err != nil {
			return nil, fmt.Errorf("invalid seed: %s", err)
		}
		opts.Seed = buf
	}

	deriver, err := wallet.NewHDKeyDeriver(opts)
	if err != nil {
		if errors.Is(err, wallet.ErrAmbiguousKeySource) {
			return nil, fmt.Errorf(
				"%s, use one of --%s, --%s, --%s",
				err, mnemonicFlag, seedFlag, extendedKeyFlag,
			)
		}
		return nil, err
	}
	return deriver, nil
}

func newChain() (chain.Chain, error) {
	explorerSvc, err := newExplorer(config.GetString(config.ExplorerEndpointKey))
	if err != nil {
		return nil, err
	}

	// The peer explorer is only needed for cross-chain lookups, an
	// unreachable one must not prevent scanning the address space.
	var peerExplorerSvc explorer.Service
	if url := config.GetString(config.PeerExplorerEndpointKey); len(url) > 0 {
		if peerExplorerSvc, err = newExplorer(url); err != nil {
			log.WithError(err).Warn("peer explorer unavailable")
		}
	}

	return chain.NewChain(chain.NewChainOpts{
		Kind:         config.GetChainKind(),
		Network:      config.GetNetwork(),
		Explorer:     explorerSvc,
		PeerExplorer: peerExplorerSvc,
	})
}

func newExplorer(url string) (explorer.Service, error) {
	return esplora.NewService(esplora.NewServiceOpts{
		APIURL:                url,
		RequestTimeout:        config.GetExplorerRequestTimeout(),
		RequestsPerSecond:     config.GetInt(config.ExplorerRequestsPerSecondKey),
		MaxConcurrentRequests: maxConcurrentRequests,
	})
}

func initManager(ctx *cli.Context) (*hdscan.Manager, error) {
	manager, err := newManager(ctx)
	if err != nil {
		return nil, err
	}
	if err := manager.Initialize(ctx.Context); err != nil {
		return nil, err
	}
	return manager, nil
}

func profilerDumpFile() string {
	if !config.GetBool(config.EnableProfilerKey) {
		return ""
	}
	return filepath.Join(
		config.GetDatadir(), config.ProfilerLocation, "prometheus.txt",
	)
}

func printJSON(resp interface{}) {
	buf, err := json.MarshalIndent(resp, "", "\t")
	if err != nil {
		fmt.Println("unable to decode response: ", err)
		return
	}
	fmt.Println(string(buf))
}

type invalidUsageError struct {
	ctx     *cli.Context
	command string
}

func (e *invalidUsageError) Error() string {
	return fmt.Sprintf("invalid usage of command %s", e.command)
}

func fatal(err error) {
	var e *invalidUsageError
	if errors.As(err, &e) {
		_ = cli.ShowCommandHelp(e.ctx, e.command)
	} else if errors.Is(err, context.Canceled) {
		_, _ = fmt.Fprintln(os.Stderr, "[hdscan] interrupted")
	} else {
		_, _ = fmt.Fprintf(os.Stderr, "[hdscan] %v\n", err)
	}
	os.Exit(1)
}
