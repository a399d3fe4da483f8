package chain

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/vulpemventures/go-elements/address"
	"github.com/vulpemventures/go-elements/network"
	"github.com/vulpemventures/go-elements/payment"
)

// Codec turns public keys into P2WPKH addresses and addresses into output
// scripts for a given chain kind. The output script of an address is used as
// its fingerprint when matching utxos.
type Codec interface {
	EncodeAddress(pubkey *btcec.PublicKey, net Network) (string, error)
	Fingerprint(addr string, net Network) ([]byte, error)
	AddressFromScript(script []byte, net Network) (string, error)
}

// CodecFor returns the codec of the given chain kind.
func CodecFor(kind Kind) (Codec, error) {
	switch kind {
	case Bitcoin:
		return bitcoinCodec{}, nil
	case Liquid:
		return liquidCodec{}, nil
	default:
		return nil, ErrUnknownChain
	}
}

type bitcoinCodec struct{}

func (bitcoinCodec) params(net Network) (*chaincfg.Params, error) {
	switch net {
	case Mainnet:
		return &chaincfg.MainNetParams, nil
	case Testnet:
		return &chaincfg.TestNet3Params, nil
	case Regtest:
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, ErrUnknownNetwork
	}
}

func (c bitcoinCodec) EncodeAddress(
	pubkey *btcec.PublicKey, net Network,
) (string, error) {
	params, err := c.params(net)
	if err != nil {
		return "", err
	}
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(pubkey.SerializeCompressed()), params,
	)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

func (c bitcoinCodec) Fingerprint(addr string, net Network) ([]byte, error) {
	params, err := c.params(net)
	if err != nil {
		return nil, err
	}
	decoded, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, err)
	}
	if !decoded.IsForNet(params) {
		return nil, fmt.Errorf("%w: %s is not a %s address", ErrInvalidAddress, addr, net)
	}
	return txscript.PayToAddrScript(decoded)
}

func (c bitcoinCodec) AddressFromScript(
	script []byte, net Network,
) (string, error) {
	params, err := c.params(net)
	if err != nil {
		return "", err
	}
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(script, params)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidScript, err)
	}
	if len(addrs) != 1 {
		return "", ErrInvalidScript
	}
	return addrs[0].EncodeAddress(), nil
}

type liquidCodec struct{}

func (liquidCodec) params(net Network) (*network.Network, error) {
	switch net {
	case Mainnet:
		return &network.Liquid, nil
	case Testnet:
		return &network.Testnet, nil
	case Regtest:
		return &network.Regtest, nil
	default:
		return nil, ErrUnknownNetwork
	}
}

func (c liquidCodec) EncodeAddress(
	pubkey *btcec.PublicKey, net Network,
) (string, error) {
	params, err := c.params(net)
	if err != nil {
		return "", err
	}
	return payment.FromPublicKey(pubkey, params, nil).WitnessPubKeyHash()
}

func (c liquidCodec) Fingerprint(addr string, net Network) ([]byte, error) {
	params, err := c.params(net)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(strings.ToLower(addr), params.Bech32+"1") {
		return nil, fmt.Errorf("%w: %s is not a %s address", ErrInvalidAddress, addr, net)
	}
	script, err := address.ToOutputScript(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, err)
	}
	return script, nil
}

func (c liquidCodec) AddressFromScript(
	script []byte, net Network,
) (string, error) {
	params, err := c.params(net)
	if err != nil {
		return "", err
	}
	pay, err := payment.FromScript(script, params, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidScript, err)
	}
	return pay.WitnessPubKeyHash()
}
