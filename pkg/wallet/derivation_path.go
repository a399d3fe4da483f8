package wallet

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

// DerivationPath is the internal representation of a hierarchical
// deterministic path, relative to the key it is applied to.
type DerivationPath []uint32

// ParseDerivationPath converts a derivation path string to the internal
// binary representation. The path can optionally start with "m/" and
// hardened elements are suffixed with "'".
func ParseDerivationPath(strPath string) (DerivationPath, error) {
	if strings.TrimSpace(strPath) == "" {
		return nil, ErrNullDerivationPath
	}

	elems := strings.Split(strPath, "/")
	if containsEmptyString(elems) || len(elems) < 2 &&
		strings.TrimSpace(elems[0]) == "m" {
		return nil, ErrMalformedDerivationPath
	}
	if strings.TrimSpace(elems[0]) == "m" {
		elems = elems[1:]
	}

	path := make(DerivationPath, 0, len(elems))
	for _, elem := range elems {
		value, err := parsePathElem(elem)
		if err != nil {
			return nil, err
		}
		path = append(path, value)
	}
	return path, nil
}

// Child returns a copy of the path extended with the given index.
func (path DerivationPath) Child(index uint32) DerivationPath {
	child := make(DerivationPath, len(path), len(path)+1)
	copy(child, path)
	return append(child, index)
}

// IsHardened returns whether any step of the path is hardened, which makes
// it underivable from an extended public key.
func (path DerivationPath) IsHardened() bool {
	for _, step := range path {
		if step >= hdkeychain.HardenedKeyStart {
			return true
		}
	}
	return false
}

// String converts a binary derivation path to its canonical representation
func (path DerivationPath) String() string {
	if len(path) <= 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("m")
	for _, step := range path {
		if step >= hdkeychain.HardenedKeyStart {
			fmt.Fprintf(&b, "/%d'", step-hdkeychain.HardenedKeyStart)
			continue
		}
		fmt.Fprintf(&b, "/%d", step)
	}
	return b.String()
}

func parsePathElem(elem string) (uint32, error) {
	elem = strings.TrimSpace(elem)

	var value uint32
	if strings.HasSuffix(elem, "'") {
		value = hdkeychain.HardenedKeyStart
		elem = strings.TrimSpace(strings.TrimSuffix(elem, "'"))
	}

	// big int handles decimal and 0x prefixed values alike
	bigval, ok := new(big.Int).SetString(elem, 0)
	if !ok {
		return 0, fmt.Errorf("invalid elem '%s' in path", elem)
	}

	max := math.MaxUint32 - value
	if bigval.Sign() < 0 || bigval.Cmp(big.NewInt(int64(max))) > 0 {
		if value == 0 {
			return 0, fmt.Errorf("elem %v must be in range [0, %d]", bigval, max)
		}
		return 0, fmt.Errorf("elem %v must be in hardened range [0, %d]", bigval, max)
	}
	return value + uint32(bigval.Uint64()), nil
}

func containsEmptyString(composedPath []string) bool {
	for _, s := range composedPath {
		if s == "" {
			return true
		}
	}
	return false
}
