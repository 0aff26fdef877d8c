package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/time/rate"
)

// ErrPutterRequired is returned when an ObjectSink is created without a putter.
var ErrPutterRequired = errors.New("object putter is required")

// ObjectPutter uploads one object. *minio.Client satisfies it.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

var _ ObjectPutter = (*minio.Client)(nil)

// MinioOptions configures an S3-compatible endpoint.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// NewMinioClient creates a client for an S3-compatible endpoint.
func NewMinioClient(opts MinioOptions) (*minio.Client, error) {
	return minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
}

// EnsureBucket creates bucket if it does not exist.
func EnsureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
}

// ObjectSinkConfig controls batching and upload pacing.
type ObjectSinkConfig struct {
	Bucket string
	Prefix string

	// BatchSize is the number of points per object.
	BatchSize int

	// FlushInterval uploads a partial batch after this long.
	FlushInterval time.Duration

	// BufferSize is the number of points queued before Record starts dropping.
	BufferSize int

	// UploadsPerSecond limits upload frequency. Zero means unlimited.
	UploadsPerSecond float64
}

// DefaultObjectSinkConfig returns the default batching parameters.
func DefaultObjectSinkConfig() ObjectSinkConfig {
	return ObjectSinkConfig{
		Bucket:           "leveler-telemetry",
		Prefix:           "points",
		BatchSize:        256,
		FlushInterval:    30 * time.Second,
		BufferSize:       4096,
		UploadsPerSecond: 2,
	}
}

func (c ObjectSinkConfig) withDefaults() ObjectSinkConfig {
	d := DefaultObjectSinkConfig()
	if c.Bucket == "" {
		c.Bucket = d.Bucket
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = d.FlushInterval
	}
	if c.BufferSize <= 0 {
		c.BufferSize = d.BufferSize
	}
	return c
}

// ObjectSinkStats reports sink counters.
type ObjectSinkStats struct {
	Uploaded int64 // objects written
	Points   int64 // points written
	Dropped  int64 // points lost to a full buffer or a failed upload
}

// ObjectSink batches points into zstd-compressed JSON Lines objects.
// Uploads happen on a background goroutine started by NewObjectSink.
type ObjectSink struct {
	putter  ObjectPutter
	cfg     ObjectSinkConfig
	logger  *slog.Logger
	limiter *rate.Limiter

	mu     sync.RWMutex // guards closed against sends on points
	closed bool
	points chan Point
	done   chan struct{}

	uploaded atomic.Int64
	written  atomic.Int64
	dropped  atomic.Int64
}

// ObjectSinkOption configures an ObjectSink.
type ObjectSinkOption func(*ObjectSink)

// WithObjectSinkLogger sets a custom logger.
// Default is slog.Default().
func WithObjectSinkLogger(logger *slog.Logger) ObjectSinkOption {
	return func(s *ObjectSink) {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
	}
}

// NewObjectSink creates a sink uploading through putter and starts its flush loop.
func NewObjectSink(putter ObjectPutter, cfg ObjectSinkConfig, opts ...ObjectSinkOption) (*ObjectSink, error) {
	if putter == nil {
		return nil, ErrPutterRequired
	}
	cfg = cfg.withDefaults()

	limit := rate.Inf
	if cfg.UploadsPerSecond > 0 {
		limit = rate.Limit(cfg.UploadsPerSecond)
	}

	s := &ObjectSink{
		putter:  putter,
		cfg:     cfg,
		logger:  slog.Default(),
		limiter: rate.NewLimiter(limit, 1),
		points:  make(chan Point, cfg.BufferSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "telemetry", "bucket", cfg.Bucket)

	go s.loop()
	return s, nil
}

// Record queues p for upload. The point is dropped if the buffer is full
// or the sink is closed.
func (s *ObjectSink) Record(ctx context.Context, p Point) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.points <- p:
	default:
		s.dropped.Add(1)
	}
}

// Close uploads buffered points and stops the flush loop.
// It returns ctx.Err() if ctx ends first; the loop still finishes in the background.
func (s *ObjectSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.points)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns the current counters.
func (s *ObjectSink) Stats() ObjectSinkStats {
	return ObjectSinkStats{
		Uploaded: s.uploaded.Load(),
		Points:   s.written.Load(),
		Dropped:  s.dropped.Load(),
	}
}

func (s *ObjectSink) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Point, 0, s.cfg.BatchSize)
	for {
		select {
		case p, ok := <-s.points:
			if !ok {
				s.flush(batch)
				return
			}
			batch = append(batch, p)
			if len(batch) >= s.cfg.BatchSize {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *ObjectSink) flush(batch []Point) {
	if len(batch) == 0 {
		return
	}
	ctx := context.Background()

	data, err := EncodeBatch(batch)
	if err != nil {
		s.dropped.Add(int64(len(batch)))
		s.logger.Warn("failed to encode points", "points", len(batch), "err", err)
		return
	}
	if err := s.limiter.Wait(ctx); err != nil {
		s.dropped.Add(int64(len(batch)))
		return
	}

	name := s.objectName(time.Now().UTC())
	_, err = s.putter.PutObject(ctx, s.cfg.Bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/zstd",
	})
	if err != nil {
		s.dropped.Add(int64(len(batch)))
		s.logger.Warn("failed to upload points", "object", name, "points", len(batch), "err", err)
		return
	}
	s.uploaded.Add(1)
	s.written.Add(int64(len(batch)))
	s.logger.Debug("points uploaded", "object", name, "points", len(batch), "bytes", len(data))
}

func (s *ObjectSink) objectName(now time.Time) string {
	return path.Join(s.cfg.Prefix, now.Format("2006/01/02"), fmt.Sprintf("%s.jsonl.zst", uuid.NewString()))
}

// EncodeBatch writes points as zstd-compressed JSON Lines.
func EncodeBatch(points []Point) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	jenc := json.NewEncoder(enc)
	for i := range points {
		if err := jenc.Encode(&points[i]); err != nil {
			enc.Close()
			return nil, err
		}
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeBatch reads an object written by EncodeBatch.
func DecodeBatch(r io.Reader) ([]Point, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var points []Point
	jdec := json.NewDecoder(dec)
	for {
		var p Point
		err := jdec.Decode(&p)
		if errors.Is(err, io.EOF) {
			return points, nil
		}
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
}
