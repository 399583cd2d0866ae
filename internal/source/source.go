// Package source opens datasets from local files, HTTP(S) URLs and S3
// objects.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/lacquerai/cortex/internal/dataset"
)

// DefaultMaxBytes caps the size of a remote dataset.
const DefaultMaxBytes = 256 << 20

// S3Config overrides the default AWS configuration chain. Empty fields
// fall back to the environment and shared config files.
type S3Config struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// Opener resolves dataset locations.
type Opener struct {
	http     *http.Client
	s3       S3Config
	maxBytes int64
}

// Option configures an Opener.
type Option func(*Opener)

// WithHTTPClient sets the client used for http and https locations.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opener) { o.http = c }
}

// WithS3 sets the S3 configuration.
func WithS3(cfg S3Config) Option {
	return func(o *Opener) { o.s3 = cfg }
}

// WithMaxBytes limits how much of a remote object is read.
func WithMaxBytes(n int64) Option {
	return func(o *Opener) {
		if n > 0 {
			o.maxBytes = n
		}
	}
}

// New returns an Opener.
func New(opts ...Option) *Opener {
	o := &Opener{
		http:     &http.Client{Timeout: 5 * time.Minute},
		maxBytes: DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Load opens location and parses it as CSV.
func (o *Opener) Load(ctx context.Context, location string) (*dataset.Dataset, error) {
	rc, err := o.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	d, err := dataset.ReadCSV(rc)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("location", location).
		Int("rows", d.Len()).
		Int("columns", d.Width()).
		Msg("dataset loaded")
	return d, nil
}

// Open returns a reader for location, which may be a file path, an
// http(s) URL or an s3://bucket/key URI. "-" reads standard input.
func (o *Opener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	switch {
	case location == "-":
		return io.NopCloser(os.Stdin), nil
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return o.openHTTP(ctx, location)
	case strings.HasPrefix(location, "s3://"):
		return o.openS3(ctx, location)
	}
	f, err := os.Open(location)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	return f, nil
}

func (o *Opener) openHTTP(ctx context.Context, location string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("build dataset request: %w", err)
	}
	req.Header.Set("Accept", "text/csv, text/plain, */*")

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch dataset: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch dataset: %s returned %s", location, resp.Status)
	}
	return limit(resp.Body, o.maxBytes), nil
}

func (o *Opener) openS3(ctx context.Context, location string) (io.ReadCloser, error) {
	bucket, key, err := ParseS3URI(location)
	if err != nil {
		return nil, err
	}
	client, err := o.s3Client(ctx)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3 object %s: %w", location, err)
	}
	return limit(out.Body, o.maxBytes), nil
}

func (o *Opener) s3Client(ctx context.Context) (*s3.Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if o.s3.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(o.s3.Region))
	}
	if o.s3.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.s3.AccessKeyID, o.s3.SecretAccessKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(opts *s3.Options) {
		if o.s3.Endpoint != "" {
			opts.BaseEndpoint = aws.String(o.s3.Endpoint)
		}
		opts.UsePathStyle = o.s3.UsePathStyle
	}), nil
}

// ParseS3URI splits s3://bucket/key into its parts.
func ParseS3URI(location string) (bucket, key string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("parse s3 uri: %w", err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("invalid s3 uri %q: expected s3://bucket/key", location)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("invalid s3 uri %q: missing object key", location)
	}
	return u.Host, key, nil
}

type limitedReadCloser struct {
	io.Reader
	io.Closer
}

func limit(rc io.ReadCloser, n int64) io.ReadCloser {
	return limitedReadCloser{Reader: io.LimitReader(rc, n), Closer: rc}
}
