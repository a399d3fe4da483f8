package wallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// KeyPair is the key material derived at a given path. PrivateKey is nil
// when the pair comes from an extended public key.
type KeyPair struct {
	PrivateKey *btcec.PrivateKey
	PublicKey  *btcec.PublicKey
}

// HDKeyDeriver derives child key pairs from a root extended key. It is safe
// for concurrent use since derivation never mutates the root.
type HDKeyDeriver struct {
	root *hdkeychain.ExtendedKey
}

// NewHDKeyDeriverOpts is the struct given to NewHDKeyDeriver. Exactly one of
// the key sources must be set.
type NewHDKeyDeriverOpts struct {
	Seed        []byte
	Mnemonic    []string
	Passphrase  string
	ExtendedKey string
}

func (o NewHDKeyDeriverOpts) validate() error {
	sources := 0
	if len(o.Seed) > 0 {
		sources++
	}
	if len(o.Mnemonic) > 0 {
		sources++
	}
	if len(o.ExtendedKey) > 0 {
		sources++
	}
	if sources != 1 {
		return ErrAmbiguousKeySource
	}
	if len(o.Mnemonic) > 0 && !IsMnemonicValid(o.Mnemonic) {
		return ErrInvalidMnemonic
	}
	return nil
}

// NewHDKeyDeriver returns a deriver rooted at the master key generated from
// the given seed or mnemonic, or at the given base58 extended key. An xpub
// root makes the deriver watch-only.
func NewHDKeyDeriver(opts NewHDKeyDeriverOpts) (*HDKeyDeriver, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	if len(opts.ExtendedKey) > 0 {
		root, err := hdkeychain.NewKeyFromString(opts.ExtendedKey)
		if err != nil {
			return nil, fmt.Errorf("invalid extended key: %w", err)
		}
		return &HDKeyDeriver{root}, nil
	}

	seed := opts.Seed
	if len(opts.Mnemonic) > 0 {
		var err error
		if seed, err = SeedFromMnemonic(opts.Mnemonic, opts.Passphrase); err != nil {
			return nil, err
		}
	}
	root, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, err
	}
	return &HDKeyDeriver{root}, nil
}

// IsPrivate returns whether the deriver can produce private keys.
func (d *HDKeyDeriver) IsPrivate() bool {
	return d.root.IsPrivate()
}

// Neuter returns a watch-only copy of the deriver.
func (d *HDKeyDeriver) Neuter() (*HDKeyDeriver, error) {
	pub, err := d.root.Neuter()
	if err != nil {
		return nil, err
	}
	return &HDKeyDeriver{pub}, nil
}

// NeuterAt returns a watch-only deriver rooted at the key at the given path.
// Hardened steps of the path are allowed as long as the deriver is private.
func (d *HDKeyDeriver) NeuterAt(path DerivationPath) (*HDKeyDeriver, error) {
	node, err := d.node(path)
	if err != nil {
		return nil, err
	}
	pub, err := node.Neuter()
	if err != nil {
		return nil, err
	}
	return &HDKeyDeriver{pub}, nil
}

// ExtendedKey returns the base58 serialization of the key at the given path,
// private or public depending on the deriver.
func (d *HDKeyDeriver) ExtendedKey(path DerivationPath) (string, error) {
	node, err := d.node(path)
	if err != nil {
		return "", err
	}
	return node.String(), nil
}

// Derive returns the key pair at the given path relative to the root.
func (d *HDKeyDeriver) Derive(path DerivationPath) (*KeyPair, error) {
	node, err := d.node(path)
	if err != nil {
		return nil, err
	}

	publicKey, err := node.ECPubKey()
	if err != nil {
		return nil, err
	}
	if !node.IsPrivate() {
		return &KeyPair{PublicKey: publicKey}, nil
	}

	privateKey, err := node.ECPrivKey()
	if err != nil {
		return nil, err
	}
	return &KeyPair{PrivateKey: privateKey, PublicKey: publicKey}, nil
}

func (d *HDKeyDeriver) node(path DerivationPath) (*hdkeychain.ExtendedKey, error) {
	if !d.root.IsPrivate() && path.IsHardened() {
		return nil, ErrHardenedFromPublic
	}

	node := d.root
	for _, step := range path {
		var err error
		if node, err = node.Derive(step); err != nil {
			return nil, fmt.Errorf("failed to derive %s: %w", path, err)
		}
	}
	return node, nil
}
