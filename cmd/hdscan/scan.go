package main

import (
	"github.com/tdex-network/hdscan/pkg/hdscan"
	"github.com/urfave/cli/v2"
)

var scan = cli.Command{
	Name:   "scan",
	Usage:  "scan the address space and print its current state",
	Action: scanAction,
}

var next = cli.Command{
	Name:   "next",
	Usage:  "scan the address space and move the current index one step forward",
	Action: nextAction,
}

type scanInfo struct {
	ID                    string `json:"id"`
	Chain                 string `json:"chain"`
	Network               string `json:"network"`
	BasePath              string `json:"base_path"`
	WatchOnly             bool   `json:"watch_only"`
	CurrentIndex          uint32 `json:"current_index"`
	CurrentAddress        string `json:"current_address"`
	FirstAvailableAddress string `json:"first_available_address"`
	NumOfUtxos            int    `json:"num_of_utxos"`
}

func scanAction(ctx *cli.Context) error {
	manager, err := initManager(ctx)
	if err != nil {
		return err
	}

	info, err := getScanInfo(manager)
	if err != nil {
		return err
	}

	printJSON(info)
	return nil
}

func nextAction(ctx *cli.Context) error {
	manager, err := initManager(ctx)
	if err != nil {
		return err
	}

	if _, err := manager.AdvanceIndex(ctx.Context); err != nil {
		return err
	}

	info, err := getScanInfo(manager)
	if err != nil {
		return err
	}

	printJSON(info)
	return nil
}

func getScanInfo(manager *hdscan.Manager) (*scanInfo, error) {
	index, err := manager.CurrentIndex()
	if err != nil {
		return nil, err
	}
	addr, err := manager.CurrentAddress()
	if err != nil {
		return nil, err
	}
	firstAvailable, err := manager.FirstAvailableAddress()
	if err != nil {
		return nil, err
	}
	utxos, err := manager.Utxos()
	if err != nil {
		return nil, err
	}

	c := manager.Chain()
	return &scanInfo{
		ID:                    manager.ID().String(),
		Chain:                 c.Kind().String(),
		Network:               c.Network().String(),
		BasePath:              manager.BasePath().String(),
		WatchOnly:             manager.IsWatchOnly(),
		CurrentIndex:          index,
		CurrentAddress:        addr,
		FirstAvailableAddress: firstAvailable,
		NumOfUtxos:            utxos.Len(),
	}, nil
}
