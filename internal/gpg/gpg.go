package gpg

import (
	"errors"
	"fmt"
	"os"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
)

const maxKeyFileSize = 1024 * 1024 // 1MB is generous for an armored public key

// ErrNoKeys indicates a verifier was requested with no trusted keys.
var ErrNoKeys = errors.New("no trusted keys configured")

// Verifier checks detached PGP signatures against a set of trusted
// publisher keys.
type Verifier struct {
	keyRing *crypto.KeyRing
}

// NewVerifierFromKeyFiles builds a verifier from ASCII-armored public
// key files.
func NewVerifierFromKeyFiles(paths []string) (*Verifier, error) {
	if len(paths) == 0 {
		return nil, ErrNoKeys
	}

	armored := make([]string, 0, len(paths))
	for _, path := range paths {
		if err := validateKeyFile(path); err != nil {
			return nil, fmt.Errorf("invalid key file %s: %w", path, err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file %s: %w", path, err)
		}
		armored = append(armored, string(data))
	}

	return NewVerifierFromKeys(armored)
}

// NewVerifierFromKeys builds a verifier from ASCII-armored public key
// strings.
func NewVerifierFromKeys(armoredKeys []string) (*Verifier, error) {
	if len(armoredKeys) == 0 {
		return nil, ErrNoKeys
	}

	var keyRing *crypto.KeyRing
	for i, armored := range armoredKeys {
		key, err := crypto.NewKeyFromArmored(armored)
		if err != nil {
			return nil, fmt.Errorf("failed to parse armored key at index %d: %w", i, err)
		}

		if keyRing == nil {
			keyRing, err = crypto.NewKeyRing(key)
			if err != nil {
				return nil, fmt.Errorf("failed to create keyring: %w", err)
			}
			continue
		}
		if err := keyRing.AddKey(key); err != nil {
			return nil, fmt.Errorf("failed to add key to keyring: %w", err)
		}
	}

	return &Verifier{keyRing: keyRing}, nil
}

// VerifyDetached verifies a detached signature over message. Armored
// signatures are tried first, falling back to binary format.
func (v *Verifier) VerifyDetached(message []byte, signature []byte) error {
	if v.keyRing == nil {
		return ErrNoKeys
	}

	plainMessage := crypto.NewPlainMessage(message)

	pgpSignature, err := crypto.NewPGPSignatureFromArmored(string(signature))
	if err != nil {
		pgpSignature = crypto.NewPGPSignature(signature)
	}

	if err := v.keyRing.VerifyDetached(plainMessage, pgpSignature, crypto.GetUnixTime()); err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}

// validateKeyFile checks that an on-disk key file exists and has a
// plausible size.
func validateKeyFile(path string) error {
	fileInfo, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to access key file: %w", err)
	}
	if fileInfo.Size() > maxKeyFileSize {
		return fmt.Errorf("key file exceeds maximum allowed size of %d bytes", maxKeyFileSize)
	}
	return nil
}
