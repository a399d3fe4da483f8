package main

import (
	"github.com/shopspring/decimal"
	"github.com/tdex-network/hdscan/pkg/explorer"
	"github.com/urfave/cli/v2"
)

var utxos = cli.Command{
	Name:   "utxos",
	Usage:  "list the utxos owned by the address space",
	Action: utxosAction,
}

var atomicUtxos = cli.Command{
	Name:   "atomic-utxos",
	Usage:  "list the utxos owned on the peer chain by the addresses of the address space",
	Action: atomicUtxosAction,
}

type utxoInfo struct {
	Outpoint     string `json:"outpoint"`
	Address      string `json:"address"`
	Asset        string `json:"asset,omitempty"`
	Value        string `json:"value"`
	Confidential bool   `json:"confidential"`
	Confirmed    bool   `json:"confirmed"`
}

func utxosAction(ctx *cli.Context) error {
	manager, err := initManager(ctx)
	if err != nil {
		return err
	}

	set, err := manager.Utxos()
	if err != nil {
		return err
	}

	printJSON(toUtxoInfo(set))
	return nil
}

func atomicUtxosAction(ctx *cli.Context) error {
	manager, err := initManager(ctx)
	if err != nil {
		return err
	}

	set, err := manager.FetchAtomicUtxos(ctx.Context)
	if err != nil {
		return err
	}

	printJSON(toUtxoInfo(set))
	return nil
}

func toUtxoInfo(set *explorer.UtxoSet) []utxoInfo {
	list := make([]utxoInfo, 0, set.Len())
	for _, u := range set.Utxos() {
		list = append(list, utxoInfo{
			Outpoint:     u.Key(),
			Address:      u.Address(),
			Asset:        u.Asset(),
			Value:        formatValue(u),
			Confidential: u.IsConfidential(),
			Confirmed:    u.IsConfirmed(),
		})
	}
	return list
}

// formatValue returns the value of the utxo in units of coin.
func formatValue(u explorer.Utxo) string {
	if u.IsConfidential() {
		return "confidential"
	}
	return decimal.New(int64(u.Value()), -8).StringFixed(8)
}
