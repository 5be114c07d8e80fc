package s3

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"gfwpro-workflow/internal/shared/storage/object"
)

const defaultContentType = "application/octet-stream"

type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Options selects the bucket area a Store writes to. Objects are encrypted
// with KMSKeyID when set and with SSE-S3 otherwise.
type Options struct {
	Region   string
	Bucket   string
	Prefix   string
	KMSKeyID string
}

// Store keeps staged CSVs and result archives in S3 so the CLI, the worker
// and operators share one location.
type Store struct {
	api  objectAPI
	opts Options
}

// New loads AWS configuration from the environment and returns a Store.
func New(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newStore(s3.NewFromConfig(cfg), opts), nil
}

func newStore(api objectAPI, opts Options) *Store {
	opts.Prefix = strings.Trim(strings.TrimSpace(opts.Prefix), "/")
	opts.KMSKeyID = strings.TrimSpace(opts.KMSKeyID)
	return &Store{api: api, opts: opts}
}

// Location returns the s3:// URI of key.
func (s *Store) Location(key string) string {
	return "s3://" + s.opts.Bucket + "/" + s.objectKey(key)
}

// Open streams a stored object.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s: %w", s.Location(key), err)
	}
	return out.Body, nil
}

// SaveWithKey uploads r to key. PutObject replaces the object atomically, so
// readers see either the old archive or the new one.
func (s *Store) SaveWithKey(ctx context.Context, key string, contentType string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if contentType == "" {
		contentType = defaultContentType
	}

	body := &countingReader{r: r}
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.opts.Bucket),
		Key:         aws.String(s.objectKey(key)),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	s.encrypt(input)

	if _, err := s.api.PutObject(ctx, input); err != nil {
		return 0, fmt.Errorf("s3 put %s: %w", s.Location(key), err)
	}
	return body.n, nil
}

func (s *Store) encrypt(input *s3.PutObjectInput) {
	if s.opts.KMSKeyID == "" {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAes256
		return
	}
	input.ServerSideEncryption = s3types.ServerSideEncryptionAwsKms
	input.SSEKMSKeyId = aws.String(s.opts.KMSKeyID)
}

func (s *Store) objectKey(key string) string {
	return applyPrefix(s.opts.Prefix, key)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func applyPrefix(prefix, key string) string {
	cleanPrefix := strings.Trim(prefix, "/")
	cleanKey := strings.TrimLeft(key, "/")
	switch {
	case cleanPrefix == "":
		return cleanKey
	case cleanKey == "":
		return cleanPrefix
	}
	return cleanPrefix + "/" + cleanKey
}

var (
	_ object.ObjectStore = (*Store)(nil)
	_ object.Locator     = (*Store)(nil)
)
