// Package checksum verifies artifact integrity with
// streaming MD5 digests.
package checksum

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

// ErrMismatch is returned when a file digest does not match
// its recorded checksum.
var ErrMismatch = errors.New("checksum: digest mismatch")

// File computes the hex MD5 digest of a file.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrapf(err, "digest %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify compares the digest of path against want. Read
// failures are retried a bounded number of times so a file
// still being synced into place gets a chance to settle; a
// digest mismatch is deterministic and fails immediately.
func Verify(ctx context.Context, path, want string, retries uint64, delay time.Duration) error {
	op := func() error {
		got, err := File(path)
		if err != nil {
			return err
		}
		if got != want {
			return backoff.Permanent(
				errors.Wrapf(ErrMismatch, "%s: have %s, want %s", path, got, want))
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), retries),
		ctx,
	)
	return backoff.Retry(op, policy)
}
