// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/capone-project/capone/crypto"
)

func TestGenerateSignKeyPairSignsAndVerifies(t *testing.T) {
	kp, err := GenerateSignKeyPair()
	if err != nil {
		t.Fatalf("GenerateSignKeyPair: %v", err)
	}
	defer kp.Close()

	if kp.Secret.Public() != kp.Public {
		t.Error("Secret.Public() does not match the keypair's Public field")
	}

	sig := kp.Secret.Sign([]byte("message"))
	if !crypto.Verify(kp.Public.Bytes(), []byte("message"), sig) {
		t.Error("Sign returned a signature that does not verify against Public")
	}
}

func TestSignPublicTextRoundtrip(t *testing.T) {
	kp, err := GenerateSignKeyPair()
	if err != nil {
		t.Fatalf("GenerateSignKeyPair: %v", err)
	}
	defer kp.Close()

	text, err := kp.Public.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}

	var parsed SignPublic
	if err := parsed.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if parsed != kp.Public {
		t.Error("round trip through MarshalText/UnmarshalText changed the key")
	}

	again, err := ParseSignPublic(kp.Public.String())
	if err != nil {
		t.Fatalf("ParseSignPublic: %v", err)
	}
	if again != kp.Public {
		t.Error("ParseSignPublic(String()) changed the key")
	}
}

func TestSignPublicEqual(t *testing.T) {
	var a, b SignPublic
	a[0], b[0] = 1, 1
	if !a.Equal(b) {
		t.Error("identical keys should be Equal")
	}
	b[0] = 2
	if a.Equal(b) {
		t.Error("differing keys should not be Equal")
	}
}

func TestParseSignPublicRejectsBadInput(t *testing.T) {
	if _, err := ParseSignPublic("not-hex"); err == nil {
		t.Error("ParseSignPublic should reject non-hex input")
	}
	if _, err := ParseSignPublic("aabb"); err == nil {
		t.Error("ParseSignPublic should reject a key of the wrong length")
	}
}

func TestGenerateEncryptKeyPair(t *testing.T) {
	kp, err := GenerateEncryptKeyPair()
	if err != nil {
		t.Fatalf("GenerateEncryptKeyPair: %v", err)
	}
	defer kp.Close()

	var zero EncryptPublic
	if kp.Public == zero {
		t.Error("generated public key should not be all-zero")
	}
	scalar := kp.Secret.Scalar()
	var zeroScalar [32]byte
	if scalar == zeroScalar {
		t.Error("generated secret scalar should not be all-zero")
	}
}

func TestSymmetricKeyRoundtrip(t *testing.T) {
	var raw [32]byte
	for i := range raw {
		raw[i] = byte(i)
	}
	key, err := NewSymmetricKey(raw)
	if err != nil {
		t.Fatalf("NewSymmetricKey: %v", err)
	}
	defer key.Close()

	if key.Key() != raw {
		t.Error("Key() did not return the raw bytes passed to NewSymmetricKey")
	}
}

func TestLoadSignKeyPairRoundtrip(t *testing.T) {
	kp, err := GenerateSignKeyPair()
	if err != nil {
		t.Fatalf("GenerateSignKeyPair: %v", err)
	}
	defer kp.Close()

	dir := t.TempDir()
	pubPath := filepath.Join(dir, "server.pub")
	secPath := filepath.Join(dir, "server.sec")

	if err := os.WriteFile(pubPath, []byte(kp.Public.String()), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	secHex := kp.Secret.Key()
	if err := os.WriteFile(secPath, []byte(hexEncode(secHex)), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	loaded, err := LoadSignKeyPair(pubPath, secPath)
	if err != nil {
		t.Fatalf("LoadSignKeyPair: %v", err)
	}
	defer loaded.Close()

	if loaded.Public != kp.Public {
		t.Error("loaded public key does not match the generated one")
	}
}

func TestLoadSignKeyPairRejectsMismatchedPair(t *testing.T) {
	kp1, err := GenerateSignKeyPair()
	if err != nil {
		t.Fatalf("GenerateSignKeyPair: %v", err)
	}
	defer kp1.Close()
	kp2, err := GenerateSignKeyPair()
	if err != nil {
		t.Fatalf("GenerateSignKeyPair: %v", err)
	}
	defer kp2.Close()

	dir := t.TempDir()
	pubPath := filepath.Join(dir, "server.pub")
	secPath := filepath.Join(dir, "server.sec")

	if err := os.WriteFile(pubPath, []byte(kp1.Public.String()), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(secPath, []byte(hexEncode(kp2.Secret.Key())), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := LoadSignKeyPair(pubPath, secPath); err == nil {
		t.Error("LoadSignKeyPair should reject a public/secret key file pair that don't match")
	}
}

func TestParseSignKeyPairRoundtrip(t *testing.T) {
	kp, err := GenerateSignKeyPair()
	if err != nil {
		t.Fatalf("GenerateSignKeyPair: %v", err)
	}
	defer kp.Close()

	loaded, err := ParseSignKeyPair(kp.Public.String(), hexEncode(kp.Secret.Key()))
	if err != nil {
		t.Fatalf("ParseSignKeyPair: %v", err)
	}
	defer loaded.Close()

	if loaded.Public != kp.Public {
		t.Error("parsed public key does not match the generated one")
	}
}

func TestParseSignKeyPairRejectsMismatchedPair(t *testing.T) {
	kp1, err := GenerateSignKeyPair()
	if err != nil {
		t.Fatalf("GenerateSignKeyPair: %v", err)
	}
	defer kp1.Close()
	kp2, err := GenerateSignKeyPair()
	if err != nil {
		t.Fatalf("GenerateSignKeyPair: %v", err)
	}
	defer kp2.Close()

	if _, err := ParseSignKeyPair(kp1.Public.String(), hexEncode(kp2.Secret.Key())); err == nil {
		t.Error("ParseSignKeyPair should reject a public/secret pair that don't match")
	}
}

func TestParseSignKeyPairRejectsMalformedHex(t *testing.T) {
	if _, err := ParseSignKeyPair("not-hex", "not-hex"); err == nil {
		t.Error("ParseSignKeyPair should reject malformed hex")
	}
}

func TestLoadSignPublicTrimsTrailingNewline(t *testing.T) {
	kp, err := GenerateSignKeyPair()
	if err != nil {
		t.Fatalf("GenerateSignKeyPair: %v", err)
	}
	defer kp.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "client.pub")
	if err := os.WriteFile(path, []byte(kp.Public.String()+"\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	loaded, err := LoadSignPublic(path)
	if err != nil {
		t.Fatalf("LoadSignPublic: %v", err)
	}
	if loaded != kp.Public {
		t.Error("loaded public key does not match the generated one")
	}
}

func hexEncode(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = digits[v>>4]
		out[i*2+1] = digits[v&0xF]
	}
	return string(out)
}
