package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec"
)

// Key is a node identity.
type Key struct {
	priv *btcec.PrivateKey
}

// GenerateKey creates a fresh secp256k1 key.
func GenerateKey() (*Key, error) {
	priv, err := btcec.NewPrivateKey(btcec.S256())
	if err != nil {
		return nil, err
	}
	return &Key{priv: priv}, nil
}

// ParseKey rebuilds a key from the raw bytes of its D value.
func ParseKey(d []byte) (*Key, error) {
	if len(d) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("invalid length, need %d bytes, got %d", btcec.PrivKeyBytesLen, len(d))
	}
	priv, _ := btcec.PrivKeyFromBytes(btcec.S256(), d)
	if priv.D.Sign() <= 0 || priv.D.Cmp(btcec.S256().N) >= 0 {
		return nil, fmt.Errorf("invalid private key")
	}
	return &Key{priv: priv}, nil
}

// Hex returns the hex dump of the private key.
func (k *Key) Hex() string {
	return hex.EncodeToString(k.priv.Serialize())
}

// PublicHex returns the uppercase hex representation, with 0X prefix, of the
// uncompressed public key. It is used as the submitter of signed vertices.
func (k *Key) PublicHex() string {
	return fmt.Sprintf("0X%X", k.priv.PubKey().SerializeUncompressed())
}

// Sign signs the SHA256 digest of data and returns the hex encoded DER
// signature.
func (k *Key) Sign(data []byte) (string, error) {
	digest := sha256.Sum256(data)
	sig, err := k.priv.Sign(digest[:])
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig.Serialize()), nil
}

// Verify checks a signature produced by Sign against a public key in the
// PublicHex format.
func Verify(pubHex string, data []byte, sigHex string) (bool, error) {
	pubBytes, err := hex.DecodeString(strings.TrimPrefix(strings.ToUpper(pubHex), "0X"))
	if err != nil {
		return false, err
	}
	pub, err := btcec.ParsePubKey(pubBytes, btcec.S256())
	if err != nil {
		return false, err
	}
	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, err
	}
	sig, err := btcec.ParseDERSignature(sigBytes, btcec.S256())
	if err != nil {
		return false, err
	}
	digest := sha256.Sum256(data)
	return sig.Verify(digest[:], pub), nil
}
