package explorer

import (
	"encoding/hex"
	"sort"
)

// UtxoSet is a snapshot of the utxos owned by a set of addresses, indexed by
// the output script (fingerprint) of the owner. A set is built once from the
// result of a lookup and never merged with another one.
type UtxoSet struct {
	utxos map[string]Utxo
	owned map[string][]string
}

func NewUtxoSet() *UtxoSet {
	return &UtxoSet{
		utxos: make(map[string]Utxo),
		owned: make(map[string][]string),
	}
}

// Add stores the given utxo as owned by the given fingerprint. Adding the same
// outpoint twice is a no-op.
func (s *UtxoSet) Add(fingerprint []byte, utxo Utxo) {
	key := utxo.Key()
	if _, ok := s.utxos[key]; ok {
		return
	}
	s.utxos[key] = utxo

	fp := hex.EncodeToString(fingerprint)
	s.owned[fp] = append(s.owned[fp], key)
}

// IDsOwnedBy returns the sorted ids of the utxos owned by any of the given
// fingerprints.
func (s *UtxoSet) IDsOwnedBy(fingerprints ...[]byte) []string {
	ids := make([]string, 0)
	for _, fingerprint := range fingerprints {
		ids = append(ids, s.owned[hex.EncodeToString(fingerprint)]...)
	}
	sort.Strings(ids)
	return ids
}

// IsOwned returns whether the given fingerprint owns at least one utxo.
func (s *UtxoSet) IsOwned(fingerprint []byte) bool {
	return len(s.owned[hex.EncodeToString(fingerprint)]) > 0
}

func (s *UtxoSet) Get(id string) (Utxo, bool) {
	utxo, ok := s.utxos[id]
	return utxo, ok
}

func (s *UtxoSet) Len() int {
	return len(s.utxos)
}

// Utxos returns all utxos of the set sorted by id.
func (s *UtxoSet) Utxos() []Utxo {
	ids := make([]string, 0, len(s.utxos))
	for id := range s.utxos {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	utxos := make([]Utxo, 0, len(ids))
	for _, id := range ids {
		utxos = append(utxos, s.utxos[id])
	}
	return utxos
}
