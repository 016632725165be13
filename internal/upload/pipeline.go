// Package upload turns an incoming image into a stored, normalized asset and
// links it to its owning record. A file that has been written is always
// either referenced by a record or removed again.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"math/rand/v2"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/ayesh156/roxeleye-crud/internal/apperror"
	"github.com/ayesh156/roxeleye-crud/internal/observability"
	"github.com/ayesh156/roxeleye-crud/internal/storage"
)

type Namespace string

const (
	NamespaceItems   Namespace = "items"
	NamespaceAvatars Namespace = "avatars"
)

func (n Namespace) filePrefix() string {
	switch n {
	case NamespaceAvatars:
		return "avatar"
	default:
		return "item"
	}
}

// PublicPrefix is prepended to storage keys to form the stored reference,
// which doubles as the URL path the asset is served from.
const PublicPrefix = "uploads/"

const maxDecodePixels = 40_000_000

var allowedTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/jpg":  {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
}

type Options struct {
	MaxBytes     int64
	MaxDimension int
	Quality      float32
}

func DefaultOptions() Options {
	return Options{MaxBytes: 10 * 1024 * 1024, MaxDimension: 800, Quality: 80}
}

// Input is an upload held by the transport layer. Size is the declared size
// or -1 when unknown.
type Input struct {
	Reader      io.Reader
	Size        int64
	ContentType string
	Filename    string
}

type Asset struct {
	Key    string
	Ref    string
	Width  int
	Height int
	Bytes  int
}

// AssociateFunc stores ref on the owning record and returns the reference it
// replaced, if any.
type AssociateFunc func(ctx context.Context, ref string) (previous *string, err error)

type Pipeline struct {
	store  storage.Store
	opts   Options
	logger *slog.Logger
	now    func() time.Time
	suffix func() int64
}

func NewPipeline(store storage.Store, opts Options, logger *slog.Logger) *Pipeline {
	def := DefaultOptions()
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = def.MaxBytes
	}
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = def.MaxDimension
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = def.Quality
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:  store,
		opts:   opts,
		logger: logger,
		now:    time.Now,
		suffix: func() int64 { return rand.Int64N(1_000_000_000) },
	}
}

func (p *Pipeline) MaxBytes() int64 {
	return p.opts.MaxBytes
}

// Process runs every stage for in and returns the attached asset.
func (p *Pipeline) Process(ctx context.Context, ns Namespace, in Input, associate AssociateFunc) (*Asset, error) {
	start := time.Now()
	asset, err := p.process(ctx, ns, in, associate)
	outcome := "success"
	if err != nil {
		outcome = apperror.KindOf(err).String()
	}
	observability.RecordUploadDuration(ctx, string(ns), outcome, time.Since(start))
	return asset, err
}

func (p *Pipeline) process(ctx context.Context, ns Namespace, in Input, associate AssociateFunc) (*Asset, error) {
	data, err := p.Accept(ctx, ns, in)
	if err != nil {
		return nil, err
	}
	encoded, width, height, err := p.Transcode(ctx, ns, data)
	if err != nil {
		return nil, err
	}
	asset, err := p.Persist(ctx, ns, encoded)
	if err != nil {
		return nil, err
	}
	asset.Width, asset.Height = width, height
	if err := p.Attach(ctx, ns, asset, associate); err != nil {
		return nil, err
	}
	return asset, nil
}

// Accept buffers the upload in memory and checks its size and type. Nothing
// is decoded or written here.
func (p *Pipeline) Accept(ctx context.Context, ns Namespace, in Input) ([]byte, error) {
	if in.Reader == nil {
		return nil, ErrMissingFile
	}
	if in.Size > p.opts.MaxBytes {
		observability.RecordUploadEvent(ctx, string(ns), "accept", "too_large")
		return nil, p.tooLarge()
	}
	if declared := normalizeContentType(in.ContentType); declared != "" {
		if _, ok := allowedTypes[declared]; !ok {
			observability.RecordUploadEvent(ctx, string(ns), "accept", "invalid_type")
			return nil, ErrInvalidFileType
		}
	}

	data, err := io.ReadAll(io.LimitReader(in.Reader, p.opts.MaxBytes+1))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			observability.RecordUploadEvent(ctx, string(ns), "accept", "too_large")
			return nil, p.tooLarge()
		}
		return nil, ErrPersistFailure.Wrap(fmt.Errorf("read upload: %w", err))
	}
	if int64(len(data)) > p.opts.MaxBytes {
		observability.RecordUploadEvent(ctx, string(ns), "accept", "too_large")
		return nil, p.tooLarge()
	}
	if len(data) == 0 {
		return nil, ErrMissingFile
	}
	if _, ok := allowedTypes[http.DetectContentType(data)]; !ok {
		observability.RecordUploadEvent(ctx, string(ns), "accept", "invalid_type")
		return nil, ErrInvalidFileType
	}
	observability.RecordUploadEvent(ctx, string(ns), "accept", "success")
	observability.RecordUploadSize(ctx, string(ns), int64(len(data)))
	return data, nil
}

// Transcode fits the image inside the configured bounding box, never
// enlarging it, and re-encodes it as WebP.
func (p *Pipeline) Transcode(ctx context.Context, ns Namespace, data []byte) ([]byte, int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		observability.RecordUploadEvent(ctx, string(ns), "transcode", "corrupt")
		return nil, 0, 0, ErrTranscodeFailure.Wrap(err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxDecodePixels {
		observability.RecordUploadEvent(ctx, string(ns), "transcode", "corrupt")
		return nil, 0, 0, ErrTranscodeFailure.Wrap(fmt.Errorf("unsupported dimensions %dx%d", cfg.Width, cfg.Height))
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		observability.RecordUploadEvent(ctx, string(ns), "transcode", "corrupt")
		return nil, 0, 0, ErrTranscodeFailure.Wrap(err)
	}

	fitted := imaging.Fit(img, p.opts.MaxDimension, p.opts.MaxDimension, imaging.Lanczos)
	var buf bytes.Buffer
	if err := webp.Encode(&buf, fitted, &webp.Options{Quality: p.opts.Quality}); err != nil {
		observability.RecordUploadEvent(ctx, string(ns), "transcode", "encode_error")
		return nil, 0, 0, ErrTranscodeFailure.Wrap(err)
	}
	b := fitted.Bounds()
	observability.RecordUploadEvent(ctx, string(ns), "transcode", "success")
	return buf.Bytes(), b.Dx(), b.Dy(), nil
}

// Persist writes data under a freshly generated key in ns.
func (p *Pipeline) Persist(ctx context.Context, ns Namespace, data []byte) (*Asset, error) {
	key := fmt.Sprintf("%s/%s-%d-%d.webp", ns, ns.filePrefix(), p.now().UnixMilli(), p.suffix())
	if err := p.store.Put(ctx, key, data, "image/webp"); err != nil {
		observability.RecordUploadEvent(ctx, string(ns), "persist", "error")
		p.logger.ErrorContext(ctx, "persist upload failed", "key", key, "error", err)
		// Put may have left a partial object.
		p.discard(ctx, ns, key, "persist_cleanup")
		return nil, ErrPersistFailure.Wrap(err)
	}
	observability.RecordUploadEvent(ctx, string(ns), "persist", "success")
	return &Asset{Key: key, Ref: PublicPrefix + key, Bytes: len(data)}, nil
}

// Attach links asset to its owner. On failure the new file is removed and
// the association error returned; typed failures such as a missing owner
// pass through unchanged. On success the replaced file, if any, is removed.
func (p *Pipeline) Attach(ctx context.Context, ns Namespace, asset *Asset, associate AssociateFunc) error {
	previous, err := associate(ctx, asset.Ref)
	if err != nil {
		observability.RecordUploadEvent(ctx, string(ns), "associate", "error")
		p.discard(ctx, ns, asset.Key, "rollback")
		if _, ok := apperror.As(err); ok {
			return err
		}
		p.logger.ErrorContext(ctx, "associate upload failed", "ref", asset.Ref, "error", err)
		return ErrAssociationFailure.Wrap(err)
	}
	observability.RecordUploadEvent(ctx, string(ns), "associate", "success")
	if previous != nil && *previous != "" && *previous != asset.Ref {
		p.Remove(ctx, *previous)
	}
	return nil
}

// Remove deletes the asset behind a stored reference. Failures are logged
// and otherwise ignored.
func (p *Pipeline) Remove(ctx context.Context, ref string) {
	key, ok := KeyFromRef(ref)
	if !ok {
		p.logger.WarnContext(ctx, "skip removal of unrecognized asset reference", "ref", ref)
		return
	}
	p.discard(ctx, namespaceOf(key), key, "cleanup")
}

func (p *Pipeline) discard(ctx context.Context, ns Namespace, key, stage string) {
	if err := p.store.Delete(ctx, key); err != nil {
		observability.RecordUploadEvent(ctx, string(ns), stage, "error")
		p.logger.WarnContext(ctx, "asset removal failed", "stage", stage, "key", key, "error", err)
		return
	}
	observability.RecordUploadEvent(ctx, string(ns), stage, "success")
	p.logger.InfoContext(ctx, "asset removed", "stage", stage, "key", key)
}

func (p *Pipeline) tooLarge() error {
	return TooLargeError(p.opts.MaxBytes)
}

// TooLargeError reports an upload above maxBytes, naming the limit in MB.
func TooLargeError(maxBytes int64) error {
	const mb = 1024 * 1024
	if maxBytes <= 0 || maxBytes == DefaultOptions().MaxBytes {
		return ErrFileTooLarge
	}
	return ErrFileTooLarge.WithMessage(fmt.Sprintf("File too large. Maximum size is %dMB.", (maxBytes+mb-1)/mb))
}

// KeyFromRef converts a stored reference such as "uploads/items/x.webp"
// back to its storage key.
func KeyFromRef(ref string) (string, bool) {
	trimmed := strings.TrimPrefix(ref, "/")
	if !strings.HasPrefix(trimmed, PublicPrefix) {
		return "", false
	}
	key := strings.TrimPrefix(trimmed, PublicPrefix)
	if storage.ValidateKey(key) != nil {
		return "", false
	}
	return key, true
}

func namespaceOf(key string) Namespace {
	ns, _, _ := strings.Cut(key, "/")
	return Namespace(ns)
}

func normalizeContentType(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(v)
	if err != nil {
		return strings.ToLower(v)
	}
	return strings.ToLower(mediaType)
}
