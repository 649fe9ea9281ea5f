package identity

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Hasher derives identity keys with keyed BLAKE2b-256. The pepper never
// leaves the process, so keys cannot be reversed by enumerating tax ids.
type Hasher struct {
	key []byte
}

func NewHasher(pepper string) (*Hasher, error) {
	if pepper == "" {
		return nil, fmt.Errorf("identity pepper is required")
	}
	k := blake2b.Sum256([]byte(pepper))
	return &Hasher{key: k[:]}, nil
}

// Key expects already-normalized inputs.
func (h *Hasher) Key(taxDigits, isoBirthDate string) string {
	mac, err := blake2b.New256(h.key)
	if err != nil {
		// only fails for keys longer than 64 bytes
		panic(err)
	}
	mac.Write([]byte(taxDigits))
	mac.Write([]byte{0})
	mac.Write([]byte(isoBirthDate))
	return hex.EncodeToString(mac.Sum(nil))
}
