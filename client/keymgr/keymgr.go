// Package keymgr derives and persists two symmetric keys from the backup
// client's passphrase: one for chunk encryption and one MAC key. Only the
// encryption key is used by the chunk codec; the MAC key is derived and
// stored but not consumed by any other package. The passphrase itself is
// never written to disk.
package keymgr

import (
	cryptorand "crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"os"
	"runtime"

	"github.com/uplo-tech/errors"
	"golang.org/x/crypto/pbkdf2"
	"gopkg.in/yaml.v3"
)

func sha256New() hash.Hash { return sha256.New() }

const (
	// keySize is 32 bytes for both the encryption and the MAC key, sized
	// for ChaCha20-Poly1305 and HMAC-SHA256 respectively.
	keySize = 32

	// pbkdf2Iterations is this build's PBKDF2-HMAC-SHA256 round count,
	// well above the 10000-round floor a wallet-seed KDF would use.
	pbkdf2Iterations = 100000

	// saltSize is the number of random bytes generated for init and stored
	// alongside the (never stored) passphrase-derived keys.
	saltSize = 32
)

// ErrKeyMissing is returned by Load when no key file exists at the
// configured path.
var ErrKeyMissing = errors.New("no key file; run 'obnam init' first")

// ErrKeyInsecure is returned by Load when the key file's permissions are
// more permissive than owner-only.
var ErrKeyInsecure = errors.New("key file permissions are too open; expected 0600")

// Keys holds the two secrets derived from the user's passphrase.
type Keys struct {
	Encryption [keySize]byte
	MAC        [keySize]byte
}

// keyFile is the on-disk, YAML-shaped document persisted by Init. The
// passphrase is never part of it; only its derived keys and the salt
// needed to re-derive them are written, and the file is created 0600.
type keyFile struct {
	Salt       string `yaml:"salt"`
	Encryption string `yaml:"encryption_key"`
	MAC        string `yaml:"mac_key"`
}

// Init derives fresh encryption and MAC keys from passphrase using a
// freshly generated random salt, and persists them (never the passphrase)
// to path with owner-only permissions.
func Init(passphrase, path string) (Keys, error) {
	salt := make([]byte, saltSize)
	if _, err := readRandom(salt); err != nil {
		return Keys{}, errors.AddContext(err, "could not generate salt")
	}

	keys := deriveKeys(passphrase, salt)

	doc := keyFile{
		Salt:       hex.EncodeToString(salt),
		Encryption: hex.EncodeToString(keys.Encryption[:]),
		MAC:        hex.EncodeToString(keys.MAC[:]),
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return Keys{}, errors.AddContext(err, "could not marshal key file")
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return Keys{}, errors.AddContext(err, "could not write key file")
	}
	return keys, nil
}

// Load reads the persisted keys from path, failing if the file is missing
// or if its permissions allow group or other access.
func Load(path string) (Keys, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Keys{}, ErrKeyMissing
		}
		return Keys{}, errors.AddContext(err, "could not stat key file")
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0077 != 0 {
		return Keys{}, ErrKeyInsecure
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Keys{}, errors.AddContext(err, "could not read key file")
	}
	var doc keyFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Keys{}, errors.AddContext(err, "could not parse key file")
	}

	var keys Keys
	if err := decodeFixed(doc.Encryption, keys.Encryption[:]); err != nil {
		return Keys{}, errors.AddContext(err, "could not decode encryption key")
	}
	if err := decodeFixed(doc.MAC, keys.MAC[:]); err != nil {
		return Keys{}, errors.AddContext(err, "could not decode mac key")
	}
	return keys, nil
}

// deriveKeys runs PBKDF2-HMAC-SHA256 twice over the passphrase and salt,
// once per distinct info string, so the encryption and MAC keys are
// independent even though they share the same underlying entropy.
func deriveKeys(passphrase string, salt []byte) Keys {
	var keys Keys
	copy(keys.Encryption[:], pbkdf2.Key([]byte(passphrase), append(salt, "encryption"...), pbkdf2Iterations, keySize, sha256New))
	copy(keys.MAC[:], pbkdf2.Key([]byte(passphrase), append(salt, "mac"...), pbkdf2Iterations, keySize, sha256New))
	return keys
}

func decodeFixed(s string, out []byte) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != len(out) {
		return errors.New("unexpected key length")
	}
	copy(out, b)
	return nil
}

// readRandom fills b with cryptographically secure random bytes.
var readRandom = func(b []byte) (int, error) {
	return cryptorand.Read(b)
}
