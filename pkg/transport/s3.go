package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/dmitrymomot/flagsync/pkg/feature"
)

// MetadataUpdatedAt is the object metadata key holding the modification time
// in seconds. When absent, LastModified is used.
const MetadataUpdatedAt = "updated-at"

// S3Client is the subset of the S3 API used by S3Transport.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Config locates the configuration object.
type S3Config struct {
	Bucket         string
	Key            string
	Region         string
	AccessKeyID    string
	SecretKey      string
	Endpoint       string // S3-compatible services
	ForcePathStyle bool   // MinIO and friends
}

// S3Transport reads the configuration payload from an S3 object. Full fetches
// use GetObject, time-only probes use HeadObject.
type S3Transport struct {
	client      S3Client
	bucket      string
	key         string
	maxBodySize int64
}

// S3Option configures an S3Transport.
type S3Option func(*s3Options)

type s3Options struct {
	client        S3Client
	httpClient    *http.Client
	configOptions []func(*config.LoadOptions) error
	maxBodySize   int64
}

// WithS3Client uses a pre-configured client, typically a mock in tests.
func WithS3Client(c S3Client) S3Option {
	return func(o *s3Options) { o.client = c }
}

func WithS3HTTPClient(c *http.Client) S3Option {
	return func(o *s3Options) { o.httpClient = c }
}

// WithS3ConfigOption adds an AWS config loader option.
func WithS3ConfigOption(opt func(*config.LoadOptions) error) S3Option {
	return func(o *s3Options) { o.configOptions = append(o.configOptions, opt) }
}

func WithS3MaxBodySize(n int64) S3Option {
	return func(o *s3Options) {
		if n > 0 {
			o.maxBodySize = n
		}
	}
}

// NewS3Transport builds a transport for cfg.Bucket/cfg.Key. Without
// WithS3Client it loads the default AWS configuration chain, overridden by
// static credentials when cfg carries them.
func NewS3Transport(ctx context.Context, cfg S3Config, opts ...S3Option) (*S3Transport, error) {
	if cfg.Bucket == "" || cfg.Key == "" {
		return nil, errors.Join(ErrInvalidConfig, errors.New("s3 bucket and key are required"))
	}

	o := s3Options{maxBodySize: defaultMaxBodySize}
	for _, opt := range opts {
		opt(&o)
	}

	client := o.client
	if client == nil {
		if cfg.Region == "" {
			return nil, errors.Join(ErrInvalidConfig, errors.New("s3 region is required"))
		}
		loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
		if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
			loadOpts = append(loadOpts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
			))
		}
		if o.httpClient != nil {
			loadOpts = append(loadOpts, config.WithHTTPClient(o.httpClient))
		}
		loadOpts = append(loadOpts, o.configOptions...)

		awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, errors.Join(ErrFailedToLoadAWS, err)
		}
		client = s3.NewFromConfig(awsCfg, func(so *s3.Options) {
			if cfg.Endpoint != "" {
				so.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			so.UsePathStyle = cfg.ForcePathStyle
		})
	}

	return &S3Transport{
		client:      client,
		bucket:      cfg.Bucket,
		key:         cfg.Key,
		maxBodySize: o.maxBodySize,
	}, nil
}

func (t *S3Transport) FetchConfig(ctx context.Context, mode Mode) (*Response, error) {
	switch mode {
	case ModeTimeOnly:
		out, err := t.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(t.bucket),
			Key:    aws.String(t.key),
		})
		if err != nil {
			return nil, classifyS3Error(err, "head object")
		}
		return &Response{Header: objectHeader(out.Metadata, out.LastModified)}, nil

	case ModeFull:
		out, err := t.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(t.bucket),
			Key:    aws.String(t.key),
		})
		if err != nil {
			return nil, classifyS3Error(err, "get object")
		}
		defer func() { _ = out.Body.Close() }()

		body, err := readLimited(out.Body, t.maxBodySize)
		if err != nil {
			return nil, err
		}
		schema, err := feature.ParseSchema(body)
		if err != nil {
			return nil, errors.Join(ErrDecodePayload, err)
		}
		return &Response{Schema: schema, Raw: body, Header: objectHeader(out.Metadata, out.LastModified)}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// objectHeader synthesizes the updated-at header from object attributes so
// that full and time-only fetches agree on the timestamp.
func objectHeader(metadata map[string]string, lastModified *time.Time) http.Header {
	for k, v := range metadata {
		if strings.EqualFold(k, MetadataUpdatedAt) {
			if sec, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return UpdatedAtHeader(sec)
			}
		}
	}
	if lastModified != nil && !lastModified.IsZero() {
		return UpdatedAtHeader(float64(lastModified.Unix()))
	}
	return http.Header{}
}

func classifyS3Error(err error, operation string) error {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return errors.Join(ErrConfigNotFound, err)
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return errors.Join(ErrConfigNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return errors.Join(ErrConfigNotFound, err)
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return errors.Join(ErrAccessDenied, err)
		}
	}
	return errors.Join(ErrRequestFailed, fmt.Errorf("%s: %w", operation, err))
}
