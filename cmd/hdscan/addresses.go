package main

import (
	"encoding/hex"

	"github.com/tdex-network/hdscan/pkg/hdscan"
	"github.com/urfave/cli/v2"
)

var addresses = cli.Command{
	Name:  "addresses",
	Usage: "list the addresses of the address space up to the current index",
	Flags: []cli.Flag{
		&cli.UintFlag{
			Name:  "limit",
			Usage: "list addresses up to the given index instead of the current one",
		},
		&cli.BoolFlag{
			Name:  "keys",
			Usage: "include the public key of every address",
		},
	},
	Action: addressesAction,
}

type addressInfo struct {
	Index     uint32 `json:"index"`
	Address   string `json:"address"`
	PublicKey string `json:"public_key,omitempty"`
}

func addressesAction(ctx *cli.Context) error {
	manager, err := initManager(ctx)
	if err != nil {
		return err
	}

	var entries []hdscan.Entry
	if ctx.IsSet("limit") {
		entries, err = manager.KeysUpTo(uint32(ctx.Uint("limit")))
	} else {
		entries, err = manager.Keys()
	}
	if err != nil {
		return err
	}

	withKeys := ctx.Bool("keys")
	list := make([]addressInfo, 0, len(entries))
	for _, e := range entries {
		info := addressInfo{
			Index:   e.Index(),
			Address: e.Address(),
		}
		if withKeys {
			info.PublicKey = hex.EncodeToString(e.PublicKey().SerializeCompressed())
		}
		list = append(list, info)
	}

	printJSON(list)
	return nil
}
