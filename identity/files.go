// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/capone-project/capone/lib/secret"
)

// LoadSignKeyPair reads a hex-encoded public key from pubPath and a
// hex-encoded secret key from secPath (as written by capone-keygen),
// returning the assembled keypair.
func LoadSignKeyPair(pubPath, secPath string) (*SignKeyPair, error) {
	pubBuf, err := secret.ReadFromPath(pubPath)
	if err != nil {
		return nil, fmt.Errorf("identity: reading %s: %w", pubPath, err)
	}
	defer pubBuf.Close()

	public, err := ParseSignPublic(pubBuf.String())
	if err != nil {
		return nil, fmt.Errorf("identity: parsing %s: %w", pubPath, err)
	}

	secretBuf, err := secret.ReadFromPath(secPath)
	if err != nil {
		return nil, fmt.Errorf("identity: reading %s: %w", secPath, err)
	}
	defer secretBuf.Close()

	secretRaw, err := hex.DecodeString(secretBuf.String())
	if err != nil {
		return nil, fmt.Errorf("identity: parsing %s: %w", secPath, err)
	}

	secretKey, err := NewSignSecret(secretRaw)
	if err != nil {
		return nil, err
	}
	if secretKey.Public() != public {
		return nil, fmt.Errorf("identity: %s and %s do not form a matching keypair", pubPath, secPath)
	}

	return &SignKeyPair{Public: public, Secret: secretKey}, nil
}

// LoadSignPublic reads a hex-encoded public key from path.
func LoadSignPublic(path string) (SignPublic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SignPublic{}, fmt.Errorf("identity: reading %s: %w", path, err)
	}
	return ParseSignPublic(trimNewline(string(data)))
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
