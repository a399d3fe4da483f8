package explorer

import (
	"encoding/json"
	"fmt"
)

func NewWitnessUtxo(
	hash string, index uint32,
	value uint64, asset string,
	address string,
	confirmed bool,
) Utxo {
	return witnessUtxo{
		UHash:    hash,
		UIndex:   index,
		UValue:   value,
		UAsset:   asset,
		UAddress: address,
		UStatus:  status{Confirmed: confirmed},
	}
}

// NewUtxosFromJSON parses the given list of utxos in esplora json format and
// binds them to the given address.
func NewUtxosFromJSON(data []byte, address string) ([]Utxo, error) {
	var outs []witnessUtxo
	if err := json.Unmarshal(data, &outs); err != nil {
		return nil, err
	}

	utxos := make([]Utxo, 0, len(outs))
	for _, out := range outs {
		out.UAddress = address
		utxos = append(utxos, out)
	}
	return utxos, nil
}

type status struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight uint32 `json:"block_height"`
}

type witnessUtxo struct {
	UHash            string `json:"txid"`
	UIndex           uint32 `json:"vout"`
	UValue           uint64 `json:"value"`
	UAsset           string `json:"asset"`
	UValueCommitment string `json:"valuecommitment"`
	UAssetCommitment string `json:"assetcommitment"`
	UStatus          status `json:"status"`
	UAddress         string `json:"-"`
}

func (wu witnessUtxo) Hash() string {
	return wu.UHash
}

func (wu witnessUtxo) Index() uint32 {
	return wu.UIndex
}

func (wu witnessUtxo) Value() uint64 {
	return wu.UValue
}

func (wu witnessUtxo) Asset() string {
	return wu.UAsset
}

func (wu witnessUtxo) Address() string {
	return wu.UAddress
}

func (wu witnessUtxo) IsConfidential() bool {
	return len(wu.UValueCommitment) > 0 && len(wu.UAssetCommitment) > 0
}

func (wu witnessUtxo) IsConfirmed() bool {
	return wu.UStatus.Confirmed
}

func (wu witnessUtxo) Key() string {
	return fmt.Sprintf("%s:%d", wu.UHash, wu.UIndex)
}
