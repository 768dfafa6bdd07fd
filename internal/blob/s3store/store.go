// Package s3store implements blob.Store on Amazon S3 or an S3-compatible
// endpoint.
package s3store

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"downloadgate/internal/blob"
	"downloadgate/pkg/platform/sentinel"
)

// MetadataSHA256 is the user metadata key holding a hex body digest, set by
// the release upload pipeline.
const MetadataSHA256 = "sha256"

// Config holds S3 store configuration.
type Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// API is the subset of the S3 client used by the store.
type API interface {
	s3.ListObjectsV2APIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Presigner signs GetObject requests.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Store implements blob.Store using S3.
type Store struct {
	bucket    string
	client    API
	presigner Presigner
}

var _ blob.Store = (*Store)(nil)

// New creates a store with an existing client and presigner.
func New(bucket string, client API, presigner Presigner) (*Store, error) {
	if bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	if client == nil || presigner == nil {
		return nil, errors.New("s3 client and presigner are required")
	}
	return &Store{bucket: bucket, client: client, presigner: presigner}, nil
}

// NewFromConfig loads AWS credentials from the default chain.
func NewFromConfig(ctx context.Context, cfg Config) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return New(cfg.Bucket, client, s3.NewPresignClient(client))
}

// List walks every page of the bucket listing.
func (s *Store) List(ctx context.Context) ([]blob.ObjectInfo, error) {
	var out []blob.ObjectInfo
	pager := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing bucket %s: %w", s.bucket, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			out = append(out, blob.ObjectInfo{
				Key:          key,
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return out, nil
}

// Head reads object metadata, asking S3 for the stored checksum.
func (s *Store) Head(ctx context.Context, key string) (*blob.ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		ChecksumMode: types.ChecksumModeEnabled,
	})
	if err != nil {
		var nf *types.NotFound
		var nsk *types.NoSuchKey
		if errors.As(err, &nf) || errors.As(err, &nsk) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("head object: %w", err)
	}
	return &blob.ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		ContentType:  aws.ToString(out.ContentType),
		SHA256:       checksumOf(out),
	}, nil
}

// PresignGet signs a GetObject for ttl. Signing is local to the SDK; ctx
// bounds any credential refresh it triggers.
func (s *Store) PresignGet(ctx context.Context, key string, ttl time.Duration, filename string) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(s.bucket),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String(blob.AttachmentDisposition(filename)),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign get object: %w", err)
	}
	return req.URL, nil
}

// checksumOf prefers the uploader's hex metadata, then a full-object
// SHA-256 checksum. Composite multipart checksums are not body digests.
func checksumOf(out *s3.HeadObjectOutput) string {
	for k, v := range out.Metadata {
		if strings.EqualFold(k, MetadataSHA256) && v != "" {
			return strings.ToLower(v)
		}
	}
	raw := aws.ToString(out.ChecksumSHA256)
	if raw == "" || strings.Contains(raw, "-") {
		return ""
	}
	sum, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return ""
	}
	return hex.EncodeToString(sum)
}
