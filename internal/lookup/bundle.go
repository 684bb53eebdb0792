package lookup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/quilldev/kurisu/internal/output"
)

// BundleStatus reports what EnsureLatestBundle did.
type BundleStatus int

const (
	BundleAlreadyPresent BundleStatus = iota
	BundleDownloaded
)

func (s BundleStatus) String() string {
	switch s {
	case BundleAlreadyPresent:
		return "already_present"
	case BundleDownloaded:
		return "downloaded"
	default:
		return fmt.Sprintf("BundleStatus(%d)", int(s))
	}
}

// Bundle describes the local static-data archive for a game version.
type Bundle struct {
	Version string       `json:"version"`
	Path    string       `json:"path"`
	Status  BundleStatus `json:"status"`
	Size    int64        `json:"size"`
}

// MarshalText renders the status by name.
func (s BundleStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

const bundleLockWait = 10 * time.Minute

// EnsureLatestBundle makes sure {dir}/{version}.tgz exists for the current
// game version, downloading it when missing. The check is by existence, not
// by age. A lock file in dir serializes concurrent processes; the archive
// is written to a temp file first so a crash never leaves a partial bundle
// under the final name.
func (r *Resolver) EnsureLatestBundle(ctx context.Context, dir string) (*Bundle, error) {
	ver, err := r.GameVersion(ctx)
	if err != nil {
		return nil, err
	}

	if !validBundleVersion(ver) {
		return nil, output.ErrAPI(0, fmt.Sprintf("Unusable game version %q", ver))
	}

	b := &Bundle{Version: ver, Path: filepath.Join(dir, ver+".tgz")}
	if info, err := os.Stat(b.Path); err == nil {
		b.Status = BundleAlreadyPresent
		b.Size = info.Size()
		return b, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating bundle dir: %w", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, bundleLockWait)
	defer cancel()

	fl := flock.New(filepath.Join(dir, ".lock"))
	locked, err := fl.TryLockContext(lockCtx, 250*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("locking bundle dir: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("locking bundle dir: %w", context.DeadlineExceeded)
	}
	defer func() { _ = fl.Unlock() }()

	// Another process may have finished the download while we waited.
	if info, err := os.Stat(b.Path); err == nil {
		b.Status = BundleAlreadyPresent
		b.Size = info.Size()
		return b, nil
	}

	tmp, err := os.CreateTemp(dir, ver+".*.part")
	if err != nil {
		return nil, fmt.Errorf("creating temp bundle: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	r.logger.Info("downloading static data bundle", zap.String("version", ver), zap.String("path", b.Path))

	n, err := r.upstream.DownloadBundle(ctx, ver, tmp)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("writing bundle: %w", closeErr)
	}
	if err != nil {
		return nil, err
	}

	if err := os.Rename(tmpPath, b.Path); err != nil {
		return nil, fmt.Errorf("installing bundle: %w", err)
	}

	b.Status = BundleDownloaded
	b.Size = n
	return b, nil
}

// validBundleVersion reports whether ver is safe to use as a file name.
func validBundleVersion(ver string) bool {
	return ver != "" && ver != "." && !strings.Contains(ver, "..") && !strings.ContainsAny(ver, `/\`)
}
