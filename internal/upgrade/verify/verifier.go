// Package verify checks release archives against detached Minisign signatures.
package verify

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	minisign "github.com/jedisct1/go-minisign"
)

var ErrBadSignature = errors.New("signature verification failed")

// MinisignVerifier holds the trusted release key.
type MinisignVerifier struct {
	publicKey minisign.PublicKey
}

// NewMinisignVerifier accepts either the two-line .pub file contents or the
// bare base64 key line.
func NewMinisignVerifier(pubKey string) (*MinisignVerifier, error) {
	pubKey = strings.TrimSpace(pubKey)
	if pubKey == "" {
		return nil, errors.New("minisign public key is required")
	}
	var (
		publicKey minisign.PublicKey
		err       error
	)
	if strings.Contains(pubKey, "\n") {
		publicKey, err = minisign.DecodePublicKey(pubKey)
	} else {
		publicKey, err = minisign.NewPublicKey(pubKey)
	}
	if err != nil {
		return nil, fmt.Errorf("parse minisign public key: %w", err)
	}
	return &MinisignVerifier{publicKey: publicKey}, nil
}

// LoadPublicKey returns the key text for a configured value that is either the
// key itself or the path of a .pub file. Relative paths resolve against baseDir.
func LoadPublicKey(value, baseDir string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" || strings.Contains(value, "\n") {
		return value, nil
	}
	path := value
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		return string(data), nil
	case errors.Is(err, fs.ErrNotExist) && !strings.HasSuffix(value, ".pub"):
		return value, nil
	default:
		return "", fmt.Errorf("read public key %q: %w", path, err)
	}
}

// Verify checks the archive at artifactPath against the signature file at
// signaturePath.
func (v *MinisignVerifier) Verify(ctx context.Context, artifactPath, signaturePath string) error {
	if v == nil {
		return errors.New("signature verifier not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	sig, err := os.ReadFile(signaturePath)
	if err != nil {
		return fmt.Errorf("read signature %q: %w", signaturePath, err)
	}
	artifact, err := os.ReadFile(artifactPath)
	if err != nil {
		return fmt.Errorf("read artifact %q: %w", artifactPath, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return v.VerifyBytes(artifact, sig)
}

func (v *MinisignVerifier) VerifyBytes(artifact, sig []byte) error {
	signature, err := minisign.DecodeSignature(string(sig))
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	ok, err := v.publicKey.Verify(artifact, signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if !ok {
		return ErrBadSignature
	}
	return nil
}
