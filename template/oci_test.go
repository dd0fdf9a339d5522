package template

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content/oci"
	"oras.land/oras-go/v2/registry/remote"
)

const templateMediaType = "application/vnd.apollo.ackstep.template.v1+yaml"

type temporaryErr struct{ msg string }

func (e temporaryErr) Error() string   { return e.msg }
func (e temporaryErr) Timeout() bool   { return true }
func (e temporaryErr) Temporary() bool { return true }

func withOCIOverrides(t *testing.T, copyFn func(context.Context, oras.Target, string, oras.Target, string, oras.CopyOptions) (ocispec.Descriptor, error)) {
	t.Helper()
	origCopy, origRepo, origBackoff := orasCopy, newRemoteRepository, backoffFunc
	orasCopy = copyFn
	newRemoteRepository = func(ref string) (*remote.Repository, error) {
		return &remote.Repository{}, nil
	}
	backoffFunc = func(int) time.Duration { return 0 }
	t.Cleanup(func() {
		orasCopy, newRemoteRepository, backoffFunc = origCopy, origRepo, origBackoff
	})
}

// artifact builds a manifest for layers and returns it with its digest.
func artifact(layers ...[]byte) ([]byte, []ocispec.Descriptor, string) {
	descs := make([]ocispec.Descriptor, 0, len(layers))
	for _, l := range layers {
		descs = append(descs, ocispec.Descriptor{MediaType: templateMediaType, Digest: digest.FromBytes(l), Size: int64(len(l))})
	}
	manifestBytes, _ := json.Marshal(ocispec.Manifest{MediaType: ocispec.MediaTypeImageManifest, Layers: descs})
	return manifestBytes, descs, digest.FromBytes(manifestBytes).String()
}

func pushArtifact(dst oras.Target, layers ...[]byte) (ocispec.Descriptor, error) {
	ctx := context.Background()
	manifestBytes, descs, _ := artifact(layers...)
	for i, l := range layers {
		if err := dst.Push(ctx, descs[i], bytes.NewReader(l)); err != nil {
			return ocispec.Descriptor{}, err
		}
	}
	manifestDesc := ocispec.Descriptor{
		MediaType: ocispec.MediaTypeImageManifest,
		Digest:    digest.FromBytes(manifestBytes),
		Size:      int64(len(manifestBytes)),
	}
	if err := dst.Push(ctx, manifestDesc, bytes.NewReader(manifestBytes)); err != nil {
		return ocispec.Descriptor{}, err
	}
	return manifestDesc, nil
}

func TestFetchPullsAndCaches(t *testing.T) {
	tmpl := []byte(endpointTemplate)
	_, _, ref := artifact(tmpl)
	calls := 0
	withOCIOverrides(t, func(ctx context.Context, src oras.Target, srcRef string, dst oras.Target, dstRef string, opts oras.CopyOptions) (ocispec.Descriptor, error) {
		calls++
		if _, ok := dst.(*oci.Store); !ok {
			t.Fatalf("expected oci layout store destination, got %T", dst)
		}
		return pushArtifact(dst, tmpl)
	})

	f := NewOCIFetcher(logr.Discard(), t.TempDir())
	for i := 0; i < 2; i++ {
		data, err := f.Fetch(context.Background(), "ghcr.io/apollo/templates@"+ref)
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if string(data) != endpointTemplate {
			t.Fatalf("unexpected template content %q", data)
		}
	}
	if calls != 1 {
		t.Fatalf("expected a single pull, got %d", calls)
	}
}

func TestFetchCacheHitSkipsPull(t *testing.T) {
	dir := t.TempDir()
	digestStr := "sha256:" + strings.Repeat("0", 64)
	base := filepath.Join(dir, strings.Repeat("0", 64))
	if err := os.MkdirAll(base, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(base, templateFileName), []byte("kind: Model\n"), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := os.WriteFile(filepath.Join(base, readyMarkerName), []byte("ok"), 0o644); err != nil {
		t.Fatalf("write ready: %v", err)
	}
	withOCIOverrides(t, func(context.Context, oras.Target, string, oras.Target, string, oras.CopyOptions) (ocispec.Descriptor, error) {
		return ocispec.Descriptor{}, errors.New("should not be called")
	})

	data, err := NewOCIFetcher(logr.Discard(), dir).Fetch(context.Background(), "ghcr.io/apollo/templates@"+digestStr)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(data) != "kind: Model\n" {
		t.Fatalf("unexpected cached content %q", data)
	}
}

func TestFetchRejectsTagReference(t *testing.T) {
	_, err := NewOCIFetcher(logr.Discard(), t.TempDir()).Fetch(context.Background(), "ghcr.io/apollo/templates:latest")
	if err == nil || !strings.Contains(err.Error(), "pinned") {
		t.Fatalf("expected pin by digest error, got %v", err)
	}
}

func TestFetchRejectsMultiLayerArtifact(t *testing.T) {
	a, b := []byte("kind: A\n"), []byte("kind: B\n")
	_, _, ref := artifact(a, b)
	withOCIOverrides(t, func(ctx context.Context, src oras.Target, srcRef string, dst oras.Target, dstRef string, opts oras.CopyOptions) (ocispec.Descriptor, error) {
		return pushArtifact(dst, a, b)
	})

	_, err := NewOCIFetcher(logr.Discard(), t.TempDir()).Fetch(context.Background(), "ghcr.io/apollo/templates@"+ref)
	if err == nil || !strings.Contains(err.Error(), "exactly one layer") {
		t.Fatalf("expected single layer error, got %v", err)
	}
}

func TestFetchRejectsDigestMismatch(t *testing.T) {
	withOCIOverrides(t, func(ctx context.Context, src oras.Target, srcRef string, dst oras.Target, dstRef string, opts oras.CopyOptions) (ocispec.Descriptor, error) {
		return pushArtifact(dst, []byte("kind: Model\n"))
	})

	_, err := NewOCIFetcher(logr.Discard(), t.TempDir()).Fetch(context.Background(), "ghcr.io/apollo/templates@sha256:"+strings.Repeat("1", 64))
	if err == nil || !strings.Contains(err.Error(), "unexpected manifest digest") {
		t.Fatalf("expected digest mismatch, got %v", err)
	}
}

func TestFetchRetriesTransientErrors(t *testing.T) {
	tmpl := []byte("kind: Model\n")
	_, _, ref := artifact(tmpl)
	calls := 0
	withOCIOverrides(t, func(ctx context.Context, src oras.Target, srcRef string, dst oras.Target, dstRef string, opts oras.CopyOptions) (ocispec.Descriptor, error) {
		calls++
		if calls < 3 {
			return ocispec.Descriptor{}, temporaryErr{msg: "temp"}
		}
		return pushArtifact(dst, tmpl)
	})

	if _, err := NewOCIFetcher(logr.Discard(), t.TempDir()).Fetch(context.Background(), "ghcr.io/apollo/templates@"+ref); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestFetchDoesNotRetryPermanentErrors(t *testing.T) {
	calls := 0
	withOCIOverrides(t, func(context.Context, oras.Target, string, oras.Target, string, oras.CopyOptions) (ocispec.Descriptor, error) {
		calls++
		return ocispec.Descriptor{}, errors.New("unauthorized")
	})

	_, err := NewOCIFetcher(logr.Discard(), t.TempDir()).Fetch(context.Background(), "ghcr.io/apollo/templates@sha256:"+strings.Repeat("2", 64))
	if err == nil || calls != 1 {
		t.Fatalf("expected one failed attempt, got calls=%d err=%v", calls, err)
	}
}

func TestAllowPlainHTTP(t *testing.T) {
	f := NewOCIFetcher(logr.Discard(), t.TempDir())
	f.PlainHTTPHosts = []string{"registry.local"}
	if !f.allowPlainHTTP("registry.local:5000") {
		t.Fatalf("expected allowlisted host to use plain http")
	}
	if f.allowPlainHTTP("ghcr.io") {
		t.Fatalf("expected ghcr.io to use https")
	}
	f.PlainHTTPHosts = []string{"*"}
	if !f.allowPlainHTTP("ghcr.io") {
		t.Fatalf("wildcard should allow every host")
	}
}
