package crypto

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tenderbake/tenderbake/common"
)

// Watermark magic bytes. Every consensus signature binds one of these and the
// chain id ahead of the message body, so a preendorsement can never be
// replayed as an endorsement nor on another chain.
const (
	BlockMagic          = 0x11
	PreendorsementMagic = 0x12
	EndorsementMagic    = 0x13
)

var (
	errNoSecretKey  = errors.New("crypto: no secret key in base directory")
	errKeyEncrypted = errors.New("crypto: encrypted keys are not supported, use an unencrypted edsk")
)

// Wallet is the baker's signing identity, loaded once at boot and never
// mutated afterwards.
type Wallet struct {
	secret ed25519.PrivateKey
	public ed25519.PublicKey
	pkh    common.PublicKeyHash
}

type secretKeyEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// LoadWallet reads the first unencrypted edsk key from <baseDir>/secret_keys,
// the client-directory layout the octez tooling writes. An encrypted entry
// reached before such a key is an error.
func LoadWallet(baseDir string) (*Wallet, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, "secret_keys"))
	if err != nil {
		return nil, fmt.Errorf("crypto: reading secret keys: %w", err)
	}
	var entries []secretKeyEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("crypto: parsing secret keys: %w", err)
	}
	for _, e := range entries {
		v := e.Value
		if strings.HasPrefix(v, "encrypted:") {
			return nil, errKeyEncrypted
		}
		v = strings.TrimPrefix(v, "unencrypted:")
		if !strings.HasPrefix(v, "edsk") {
			continue
		}
		return WalletFromSeed(v)
	}
	return nil, errNoSecretKey
}

// WalletFromSeed builds a wallet from a b58check edsk seed.
func WalletFromSeed(edsk string) (*Wallet, error) {
	seed, err := common.DecodeBase58Check(common.SeedPrefix, edsk)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding seed: %w", err)
	}
	secret := ed25519.NewKeyFromSeed(seed)
	public := secret.Public().(ed25519.PublicKey)
	return &Wallet{
		secret: secret,
		public: public,
		pkh:    Digest160(public),
	}, nil
}

// PublicKeyHash returns the wallet's validator identity.
func (w *Wallet) PublicKeyHash() common.PublicKeyHash { return w.pkh }

// PublicKey returns the b58check edpk form of the wallet's public key.
func (w *Wallet) PublicKey() string {
	return common.EncodeBase58Check(common.PublicKeyPrefix, w.public)
}

// Sign signs magic ‖ chainID ‖ body and returns the body with the raw
// signature appended, ready for injection, alongside the signature itself.
func (w *Wallet) Sign(magic byte, chainID common.ChainID, body []byte) ([]byte, []byte, error) {
	if len(w.secret) != ed25519.PrivateKeySize {
		return nil, nil, errNoSecretKey
	}
	watermarked := make([]byte, 0, 1+common.ChainIDLength+len(body))
	watermarked = append(watermarked, magic)
	watermarked = append(watermarked, chainID[:]...)
	watermarked = append(watermarked, body...)
	digest := Digest256(watermarked)
	sig := ed25519.Sign(w.secret, digest[:])
	signed := make([]byte, 0, len(body)+len(sig))
	signed = append(signed, body...)
	signed = append(signed, sig...)
	return signed, sig, nil
}

// Verify checks a signature produced by Sign against the wallet's own key.
// It is used by tests; network-side verification belongs to the node.
func (w *Wallet) Verify(magic byte, chainID common.ChainID, body, sig []byte) bool {
	watermarked := make([]byte, 0, 1+common.ChainIDLength+len(body))
	watermarked = append(watermarked, magic)
	watermarked = append(watermarked, chainID[:]...)
	watermarked = append(watermarked, body...)
	digest := Digest256(watermarked)
	return ed25519.Verify(w.public, digest[:], sig)
}
