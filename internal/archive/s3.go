package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"memoriae/internal/memoriae"
)

// versionMetadataKey is the S3 object metadata key carrying the archive version.
const versionMetadataKey = "memoriae-archive-version"

// S3Vault is an S3-backed implementation of the ArchiveVault interface.
// Each seed's archive is a single object at <prefix>/<seedID>.archive with
// the version stored as object metadata.
type S3Vault struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3Options configures an S3Vault.
type S3Options struct {
	Bucket string
	Prefix string
	Region string

	// Optional static credentials. When empty the default AWS credential
	// chain (env, shared config, instance role) is used.
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Vault creates a new S3-backed archive vault.
func NewS3Vault(ctx context.Context, opts S3Options) (*S3Vault, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 archive requires a bucket")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return &S3Vault{
		client: s3.NewFromConfig(cfg),
		bucket: opts.Bucket,
		prefix: strings.TrimSuffix(opts.Prefix, "/"),
	}, nil
}

func (v *S3Vault) key(seedID string) string {
	if v.prefix == "" {
		return seedID + ".archive"
	}
	return v.prefix + "/" + seedID + ".archive"
}

// PutArchive stores the archive for a seed, replacing any previous one.
func (v *S3Vault) PutArchive(seedID string, r io.Reader, size int64, version int64) error {
	uploader := manager.NewUploader(v.client)
	_, err := uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket:        aws.String(v.bucket),
		Key:           aws.String(v.key(seedID)),
		Body:          r,
		ContentLength: aws.Int64(size),
		Metadata: map[string]string{
			versionMetadataKey: strconv.FormatInt(version, 10),
		},
	})
	if err != nil {
		return fmt.Errorf("uploading archive to s3: %w", err)
	}
	return nil
}

// GetArchive retrieves the archive for a seed and writes it to w.
func (v *S3Vault) GetArchive(seedID string, w io.Writer) error {
	out, err := v.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key(seedID)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return memoriae.ErrArchiveNotFound
		}
		return fmt.Errorf("fetching archive from s3: %w", err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading archive body: %w", err)
	}
	return nil
}

// ArchiveVersion returns the stored version for a seed's archive.
// Returns 0 if no archive object exists.
func (v *S3Vault) ArchiveVersion(seedID string) (int64, error) {
	out, err := v.client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key(seedID)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("checking archive on s3: %w", err)
	}

	raw, ok := out.Metadata[versionMetadataKey]
	if !ok {
		return 0, nil
	}
	version, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing archive version metadata: %w", err)
	}
	return version, nil
}

// ValidateSetup verifies that the bucket exists and is reachable.
func (v *S3Vault) ValidateSetup() error {
	_, err := v.client.HeadBucket(context.Background(), &s3.HeadBucketInput{
		Bucket: aws.String(v.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 bucket %s not accessible: %w", v.bucket, err)
	}
	return nil
}

// Compile-time check that S3Vault implements the ArchiveVault interface
var _ memoriae.ArchiveVault = (*S3Vault)(nil)
