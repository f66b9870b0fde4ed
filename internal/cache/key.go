// Package cache provides the analysis cache: content-addressed keys, a TTL
// key-value store (Redis or in-process), and the orchestrator that
// deduplicates concurrent computations per key.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/reposcope/internal/core"
)

// Key addresses one analysis result: repository, mode, target, and a
// fingerprint of the content state. Same content always yields the same
// key; distinct content states never collide.
type Key struct {
	Repo        core.Repository
	Mode        core.Mode
	Target      string
	Fingerprint string
}

// NewKey computes a key. parts are the content inputs the result depends
// on (shas, question text, window shas); they are hashed into the
// fingerprint so the key is a pure function of its inputs.
func NewKey(repo core.Repository, mode core.Mode, target string, parts ...string) Key {
	return Key{Repo: repo, Mode: mode, Target: target, Fingerprint: Fingerprint(parts...)}
}

// String renders the store key.
func (k Key) String() string {
	return fmt.Sprintf("analysis:%s:%s:%s:%s", k.Repo, k.Mode, k.Target, k.Fingerprint)
}

// Fingerprint hashes content parts into a stable hex digest. A length
// prefix per part keeps ("ab","c") distinct from ("a","bc").
func Fingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%d:", len(p))
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}
