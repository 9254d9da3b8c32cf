// Package verifytest produces Minisign keys and signatures for tests.
package verifytest

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"
)

type Key struct {
	id   [8]byte
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func NewKey(t testing.TB) *Key {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	k := &Key{pub: pub, priv: priv}
	if _, err := rand.Read(k.id[:]); err != nil {
		t.Fatalf("generate key id: %v", err)
	}
	return k
}

// PublicKeyLine is the base64 key as printed on the second line of a .pub file.
func (k *Key) PublicKeyLine() string {
	bin := make([]byte, 0, 42)
	bin = append(bin, 'E', 'd')
	bin = append(bin, k.id[:]...)
	bin = append(bin, k.pub...)
	return base64.StdEncoding.EncodeToString(bin)
}

func (k *Key) PublicKeyFile() string {
	return "untrusted comment: minisign public key\n" + k.PublicKeyLine() + "\n"
}

// Sign returns a legacy (non-prehashed) detached signature file for data.
func (k *Key) Sign(data []byte) []byte {
	sig := ed25519.Sign(k.priv, data)
	trusted := "timestamp:0\tfile:test"

	line := make([]byte, 0, 74)
	line = append(line, 'E', 'd')
	line = append(line, k.id[:]...)
	line = append(line, sig...)

	global := ed25519.Sign(k.priv, append(append([]byte{}, sig...), trusted...))

	out := "untrusted comment: signature from minisign secret key\n" +
		base64.StdEncoding.EncodeToString(line) + "\n" +
		"trusted comment: " + trusted + "\n" +
		base64.StdEncoding.EncodeToString(global) + "\n"
	return []byte(out)
}
