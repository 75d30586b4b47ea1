package multimodal

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/leofalp/mmchat/providers/ai"
)

const defaultMimeType = "image/jpeg"

var mimeByExtension = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// ResolutionError reports a local image that could not be inlined. It is
// never returned by [ImageResolver.Resolve]; the reference is passed
// through unchanged instead.
type ResolutionError struct {
	Ref string
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("multimodal: resolve image %q: %v", e.Ref, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// ImageResolver turns image references into values a provider accepts.
// Remote URLs and data URIs pass through; readable local files become
// base64 data URIs.
type ImageResolver struct {
	logger *slog.Logger
}

// ResolverOption configures an ImageResolver.
type ResolverOption func(*ImageResolver)

// WithResolverLogger sets the logger used for fallback warnings.
func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *ImageResolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewImageResolver returns a resolver logging to slog.Default unless
// configured otherwise.
func NewImageResolver(opts ...ResolverOption) *ImageResolver {
	r := &ImageResolver{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the provider-ready form of ref. Failures to read a local
// file are logged and ref is returned unchanged.
func (r *ImageResolver) Resolve(ref string) string {
	resolved, err := r.ResolveRef(ref)
	if err != nil {
		r.logger.Warn("image reference used as-is", "ref", ref, "error", err.Err)
	}
	return resolved
}

// ResolveRef behaves like Resolve but also reports the non-fatal error
// behind a fallback.
func (r *ImageResolver) ResolveRef(ref string) (string, *ResolutionError) {
	if isPassthrough(ref) {
		return ref, nil
	}

	info, err := os.Stat(ref)
	if err != nil {
		return ref, &ResolutionError{Ref: ref, Err: err}
	}
	if info.IsDir() {
		return ref, &ResolutionError{Ref: ref, Err: fmt.Errorf("is a directory")}
	}

	content, err := os.ReadFile(ref)
	if err != nil {
		return ref, &ResolutionError{Ref: ref, Err: err}
	}

	return "data:" + DetectMimeType(ref) + ";base64," + base64.StdEncoding.EncodeToString(content), nil
}

// DetectMimeType maps a file extension to an image MIME type, defaulting
// to image/jpeg.
func DetectMimeType(path string) string {
	if mime, ok := mimeByExtension[strings.ToLower(filepath.Ext(path))]; ok {
		return mime
	}
	return defaultMimeType
}

// ToMediaRef classifies a resolved value for storage in history.
func ToMediaRef(resolved string) ai.MediaRef {
	switch {
	case strings.HasPrefix(resolved, "http://"), strings.HasPrefix(resolved, "https://"):
		return ai.NewURLMedia(resolved)
	case strings.HasPrefix(resolved, "data:"):
		header, payload, found := strings.Cut(strings.TrimPrefix(resolved, "data:"), ",")
		if !found {
			return ai.NewLocalPathMedia(resolved)
		}
		return ai.NewInlineMedia(strings.TrimSuffix(header, ";base64"), payload)
	default:
		return ai.NewLocalPathMedia(resolved)
	}
}

func isPassthrough(ref string) bool {
	return strings.HasPrefix(ref, "http://") ||
		strings.HasPrefix(ref, "https://") ||
		strings.HasPrefix(ref, "data:")
}
