package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/spf13/viper"
	"github.com/tdex-network/hdscan/pkg/chain"
	"github.com/tdex-network/hdscan/pkg/hdscan"
	"github.com/tdex-network/hdscan/pkg/wallet"
)

const (
	// NetworkKey is the network of the address space, one of mainnet, testnet, regtest
	NetworkKey = "NETWORK"
	// ChainKey is the chain of the address space, one of bitcoin, liquid
	ChainKey = "CHAIN"
	// ExplorerEndpointKey is the url of the esplora REST API of the chain
	ExplorerEndpointKey = "EXPLORER_URL"
	// PeerExplorerEndpointKey is the url of the esplora REST API of the peer
	// chain, used for cross-chain utxo lookups
	PeerExplorerEndpointKey = "PEER_EXPLORER_URL"
	// BasePathKey is the derivation path of the address space, every address
	// is derived at BASE_PATH/index
	BasePathKey = "BASE_PATH"
	// MnemonicKey is the space separated BIP39 mnemonic of the wallet
	MnemonicKey = "MNEMONIC"
	// ExtendedKeyKey is the base58 xprv or xpub of the account. An xpub makes
	// the address space watch-only
	ExtendedKeyKey = "EXTENDED_KEY"
	// WatchOnlyKey prevents private keys from being derived
	WatchOnlyKey = "WATCH_ONLY"
	// GapSizeKey is the number of consecutive unused addresses needed to
	// consider an index available
	GapSizeKey = "GAP_SIZE"
	// BatchSizeKey is the number of addresses looked up per explorer round trip
	BatchSizeKey = "BATCH_SIZE"
	// MaxIndexKey is the highest index a scan is allowed to reach
	MaxIndexKey = "MAX_INDEX"
	// PrefetchKey enables looking up the next batch of addresses in parallel
	PrefetchKey = "PREFETCH"
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// ExplorerRequestTimeoutKey is the timeout in milliseconds of every request to the explorer
	ExplorerRequestTimeoutKey = "EXPLORER_REQUEST_TIMEOUT"
	// ExplorerRequestsPerSecondKey caps the rate of requests to the explorer
	ExplorerRequestsPerSecondKey = "EXPLORER_REQUESTS_PER_SECOND"
	// ResyncIntervalKey is the interval in seconds between resyncs in watch mode
	ResyncIntervalKey = "RESYNC_INTERVAL"
	// StatsIntervalKey defines interval in seconds for printing basic statistics
	StatsIntervalKey = "STATS_INTERVAL"
	// DatadirKey is the local data directory where statistics are dumped
	DatadirKey = "DATADIR"
	// EnableProfilerKey enables dumping prometheus metrics on exit
	EnableProfilerKey = "ENABLE_PROFILER"

	ProfilerLocation = "stats"
)

var vip *viper.Viper
var defaultDatadir = btcutil.AppDataDir("hdscan", false)

var defaultExplorerEndpoints = map[chain.Kind]map[chain.Network]string{
	chain.Bitcoin: {
		chain.Mainnet: "https://blockstream.info/api",
		chain.Testnet: "https://blockstream.info/testnet/api",
		chain.Regtest: "http://127.0.0.1:3000",
	},
	chain.Liquid: {
		chain.Mainnet: "https://blockstream.info/liquid/api",
		chain.Testnet: "https://blockstream.info/liquidtestnet/api",
		chain.Regtest: "http://127.0.0.1:3001",
	},
}

var defaultBasePaths = map[chain.Kind]map[chain.Network]string{
	chain.Bitcoin: {
		chain.Mainnet: "m/84'/0'/0'/0",
		chain.Testnet: "m/84'/1'/0'/0",
		chain.Regtest: "m/84'/1'/0'/0",
	},
	chain.Liquid: {
		chain.Mainnet: "m/84'/1776'/0'/0",
		chain.Testnet: "m/84'/1'/0'/0",
		chain.Regtest: "m/84'/1'/0'/0",
	},
}

// InitConfig loads the configuration from the environment. The given
// overrides, usually command line flags, take precedence over env vars.
func InitConfig(overrides map[string]interface{}) error {
	vip = viper.New()
	vip.SetEnvPrefix("HDSCAN")
	vip.AutomaticEnv()

	vip.SetDefault(NetworkKey, string(chain.Mainnet))
	vip.SetDefault(ChainKey, string(chain.Liquid))
	vip.SetDefault(WatchOnlyKey, false)
	vip.SetDefault(GapSizeKey, hdscan.DefaultGapSize)
	vip.SetDefault(BatchSizeKey, hdscan.DefaultBatchSize)
	vip.SetDefault(MaxIndexKey, hdscan.DefaultMaxIndex)
	vip.SetDefault(PrefetchKey, false)
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(ExplorerRequestTimeoutKey, 15000)
	vip.SetDefault(ExplorerRequestsPerSecondKey, 10)
	vip.SetDefault(ResyncIntervalKey, 60)
	vip.SetDefault(StatsIntervalKey, 600)
	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(EnableProfilerKey, false)

	for key, value := range overrides {
		vip.Set(key, value)
	}

	if err := validate(); err != nil {
		return fmt.Errorf("error while validating config: %s", err)
	}

	setChainDefaults()

	if err := initDatadir(); err != nil {
		return fmt.Errorf("error while creating datadir: %s", err)
	}

	return nil
}

func IsSet(key string) bool {
	return vip.IsSet(key)
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func GetFloat(key string) float64 {
	return vip.GetFloat64(key)
}

func GetDuration(key string) time.Duration {
	return vip.GetDuration(key)
}

func GetBool(key string) bool {
	return vip.GetBool(key)
}

func GetDatadir() string {
	return GetString(DatadirKey)
}

func GetNetwork() chain.Network {
	net, _ := chain.ParseNetwork(GetString(NetworkKey))
	return net
}

func GetChainKind() chain.Kind {
	kind, _ := chain.ParseKind(GetString(ChainKey))
	return kind
}

func GetBasePath() wallet.DerivationPath {
	path, _ := wallet.ParseDerivationPath(GetString(BasePathKey))
	return path
}

func GetMnemonic() []string {
	return strings.Fields(GetString(MnemonicKey))
}

func GetScanConfig() hdscan.ScanConfig {
	return hdscan.ScanConfig{
		GapSize:   uint32(GetInt(GapSizeKey)),
		BatchSize: uint32(GetInt(BatchSizeKey)),
		MaxIndex:  uint32(GetInt(MaxIndexKey)),
		Prefetch:  GetBool(PrefetchKey),
	}
}

func GetExplorerRequestTimeout() time.Duration {
	return time.Duration(GetInt(ExplorerRequestTimeoutKey)) * time.Millisecond
}

func GetResyncInterval() time.Duration {
	return time.Duration(GetInt(ResyncIntervalKey)) * time.Second
}

func GetStatsInterval() time.Duration {
	return time.Duration(GetInt(StatsIntervalKey)) * time.Second
}

func validate() error {
	if _, err := chain.ParseNetwork(GetString(NetworkKey)); err != nil {
		return err
	}
	if _, err := chain.ParseKind(GetString(ChainKey)); err != nil {
		return err
	}

	for _, key := range []string{GapSizeKey, BatchSizeKey, MaxIndexKey} {
		if GetInt(key) <= 0 {
			return fmt.Errorf("%s must be a positive number", key)
		}
	}
	if err := GetScanConfig().Validate(); err != nil {
		return err
	}

	if vip.IsSet(BasePathKey) {
		if _, err := wallet.ParseDerivationPath(GetString(BasePathKey)); err != nil {
			return fmt.Errorf("invalid %s: %s", BasePathKey, err)
		}
	}

	if len(GetMnemonic()) > 0 && len(GetString(ExtendedKeyKey)) > 0 {
		return fmt.Errorf(
			"%s and %s are mutually exclusive", MnemonicKey, ExtendedKeyKey,
		)
	}

	if GetInt(ExplorerRequestTimeoutKey) <= 0 {
		return fmt.Errorf("%s must be a positive number", ExplorerRequestTimeoutKey)
	}
	if GetInt(ExplorerRequestsPerSecondKey) <= 0 {
		return fmt.Errorf("%s must be a positive number", ExplorerRequestsPerSecondKey)
	}
	if GetInt(ResyncIntervalKey) <= 0 {
		return fmt.Errorf("%s must be a positive number", ResyncIntervalKey)
	}

	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("missing datadir")
	}

	return nil
}

// setChainDefaults sets the defaults that depend on the configured chain and
// network.
func setChainDefaults() {
	kind, net := GetChainKind(), GetNetwork()
	vip.SetDefault(ExplorerEndpointKey, defaultExplorerEndpoints[kind][net])
	vip.SetDefault(PeerExplorerEndpointKey, defaultExplorerEndpoints[kind.Peer()][net])
	vip.SetDefault(BasePathKey, defaultBasePaths[kind][net])
}

func initDatadir() error {
	if !GetBool(EnableProfilerKey) {
		return nil
	}
	return makeDirectoryIfNotExists(filepath.Join(GetDatadir(), ProfilerLocation))
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}
