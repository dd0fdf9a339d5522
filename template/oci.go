package template

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-logr/logr"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"golang.org/x/sys/unix"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/content/oci"
	"oras.land/oras-go/v2/registry"
	"oras.land/oras-go/v2/registry/remote"
)

const (
	DefaultCacheRoot = "/var/cache/ackstep/templates"
	readyMarkerName  = "READY"
	templateFileName = "template.yaml"
	maxTemplateBytes = int64(1 << 20)
	maxFetchAttempts = 3
	maxBackoff       = 10 * time.Second
)

var (
	digestPattern = regexp.MustCompile(`^sha256:[A-Fa-f0-9]{64}$`)

	// Injection points for tests.
	orasCopy = func(ctx context.Context, src oras.Target, srcRef string, dst oras.Target, dstRef string, opts oras.CopyOptions) (ocispec.Descriptor, error) {
		return oras.Copy(ctx, src, srcRef, dst, dstRef, opts)
	}
	newRemoteRepository = func(ref string) (*remote.Repository, error) {
		return remote.NewRepository(ref)
	}
	backoffFunc = backoffDuration
)

// OCIFetcher pulls digest-pinned template artifacts and caches them on disk.
// An artifact is an OCI manifest with exactly one layer holding the template.
type OCIFetcher struct {
	root   string
	logger logr.Logger
	// PlainHTTPHosts lists registries reached over plain HTTP. "*" matches all.
	PlainHTTPHosts []string
}

// NewOCIFetcher returns a fetcher caching under root.
func NewOCIFetcher(logger logr.Logger, root string) *OCIFetcher {
	r := strings.TrimSpace(root)
	if r == "" {
		r = DefaultCacheRoot
	}
	return &OCIFetcher{root: r, logger: logger}
}

// Fetch returns the template stored in the artifact at ref.
func (f *OCIFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	parsedRef, err := registry.ParseReference(strings.TrimSpace(ref))
	if err != nil {
		return nil, fmt.Errorf("invalid oci ref: %w", err)
	}
	if parsedRef.Reference == "" || !digestPattern.MatchString(parsedRef.Reference) {
		return nil, fmt.Errorf("oci ref must be pinned by digest (got %q)", parsedRef.Reference)
	}

	digestHex := strings.ToLower(strings.TrimPrefix(parsedRef.Reference, "sha256:"))
	baseDir := filepath.Join(f.root, digestHex)
	readyPath := filepath.Join(baseDir, readyMarkerName)
	templatePath := filepath.Join(baseDir, templateFileName)

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, err
	}
	lockFile, err := os.OpenFile(filepath.Join(baseDir, ".lock"), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	defer lockFile.Close()
	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX); err != nil {
		return nil, err
	}
	defer unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)

	if fileExists(readyPath) {
		if data, err := os.ReadFile(templatePath); err == nil {
			f.logger.V(1).Info("template cache hit", "digest", parsedRef.Reference)
			return data, nil
		}
	}

	store, err := oci.New(filepath.Join(baseDir, "layout"))
	if err != nil {
		return nil, err
	}
	repository, err := newRemoteRepository(fmt.Sprintf("%s/%s", parsedRef.Registry, parsedRef.Repository))
	if err != nil {
		return nil, err
	}
	repository.PlainHTTP = f.allowPlainHTTP(parsedRef.Registry)

	var desc ocispec.Descriptor
	for attempt := 0; attempt < maxFetchAttempts; attempt++ {
		desc, err = orasCopy(ctx, repository, parsedRef.Reference, store, parsedRef.Reference, oras.DefaultCopyOptions)
		if err == nil || !isRetryable(err) {
			break
		}
		f.logger.Info("template pull failed, retrying", "ref", ref, "attempt", attempt+1, "error", err.Error())
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoffFunc(attempt)):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("pull %s: %w", ref, err)
	}
	if desc.Digest.String() != parsedRef.Reference {
		return nil, fmt.Errorf("unexpected manifest digest %s (want %s)", desc.Digest, parsedRef.Reference)
	}

	manifestBytes, err := content.FetchAll(ctx, store, desc)
	if err != nil {
		return nil, err
	}
	var manifest ocispec.Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if len(manifest.Layers) != 1 {
		return nil, fmt.Errorf("template artifact must have exactly one layer, got %d", len(manifest.Layers))
	}
	layer := manifest.Layers[0]
	if layer.Size > maxTemplateBytes {
		return nil, fmt.Errorf("template layer is %d bytes, limit is %d", layer.Size, maxTemplateBytes)
	}
	data, err := content.FetchAll(ctx, store, layer)
	if err != nil {
		return nil, err
	}

	tmp := templatePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp, templatePath); err != nil {
		return nil, err
	}
	if err := os.WriteFile(readyPath, []byte("ok\n"), 0o644); err != nil {
		return nil, err
	}
	f.logger.Info("template pulled", "ref", ref, "bytes", len(data))
	return data, nil
}

func (f *OCIFetcher) allowPlainHTTP(reg string) bool {
	hostOnly := reg
	if h, _, err := net.SplitHostPort(reg); err == nil {
		hostOnly = h
	}
	hostOnly = strings.ToLower(hostOnly)
	for _, h := range f.PlainHTTPHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "*" || (h != "" && h == hostOnly) {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "429") || strings.Contains(s, "too many requests") ||
		strings.Contains(s, "internal server error") || strings.Contains(s, "service unavailable")
}

func backoffDuration(attempt int) time.Duration {
	base := time.Second * time.Duration(1<<attempt)
	if base > maxBackoff {
		base = maxBackoff
	}
	return base
}
