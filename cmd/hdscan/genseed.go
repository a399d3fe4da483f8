package main

import (
	"fmt"
	"strings"

	"github.com/tdex-network/hdscan/pkg/wallet"
	"github.com/urfave/cli/v2"
)

var genseed = cli.Command{
	Name:  "genseed",
	Usage: "generate a new BIP39 mnemonic",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "entropy_size",
			Usage: "the size in bits of the entropy, a multiple of 32 in the range [128,256]",
			Value: 128,
		},
	},
	Action: genSeedAction,
}

func genSeedAction(ctx *cli.Context) error {
	mnemonic, err := wallet.NewMnemonic(wallet.NewMnemonicOpts{
		EntropySize: ctx.Int("entropy_size"),
	})
	if err != nil {
		return err
	}

	fmt.Println(strings.Join(mnemonic, " "))
	return nil
}
