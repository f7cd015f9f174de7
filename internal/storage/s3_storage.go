package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"greendrake/marketdesk/internal/config"
	"greendrake/marketdesk/internal/utils"
)

// ErrStorageDisabled is returned for uploads when no bucket is configured.
var ErrStorageDisabled = errors.New("object storage is not configured")

// IObjectStorage holds listing images and message attachments.
type IObjectStorage interface {
	// PresignAttachmentPut returns an upload URL and the key the object will
	// live under once the client PUTs it.
	PresignAttachmentPut(ctx context.Context, threadID utils.SixID, filename, contentType string) (url string, key string, err error)
	// PresignListingImagePut does the same for a listing photo.
	PresignListingImagePut(ctx context.Context, listingID utils.SixID, filename, contentType string) (url string, key string, err error)
	// DeleteObjects removes keys. Missing keys are not an error.
	DeleteObjects(ctx context.Context, keys []string) error
}

// S3 caps DeleteObjects at 1000 keys per request.
const deleteBatchSize = 1000

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// AttachmentPrefix is the key prefix of every attachment uploaded for a thread.
func AttachmentPrefix(threadID utils.SixID) string {
	return "attachments/" + threadID.String() + "/"
}

// ListingImagePrefix is the key prefix of every photo uploaded for a listing.
func ListingImagePrefix(listingID utils.SixID) string {
	return "listings/" + listingID.String() + "/"
}

// IsThreadAttachment reports whether key was issued for the given thread.
func IsThreadAttachment(threadID utils.SixID, key string) bool {
	return isIssuedUnder(AttachmentPrefix(threadID), key)
}

// IsListingImage reports whether key was issued for the given listing.
func IsListingImage(listingID utils.SixID, key string) bool {
	return isIssuedUnder(ListingImagePrefix(listingID), key)
}

func isIssuedUnder(prefix, key string) bool {
	rest, ok := strings.CutPrefix(key, prefix)
	return ok && rest != "" && !strings.Contains(rest, "/") && !strings.Contains(rest, "..")
}

func sanitizeFilename(filename string) string {
	name := unsafeFilenameChars.ReplaceAllString(path.Base(strings.ReplaceAll(filename, "\\", "/")), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "file"
	}
	if len(name) > 100 {
		name = name[len(name)-100:]
	}
	return name
}

type s3Storage struct {
	cfg           *config.Config
	s3Client      *s3.Client
	presignClient *s3.PresignClient
	log           *zap.Logger
}

// NewS3Storage creates a new S3 storage service.
func NewS3Storage(cfg *config.Config, log *zap.Logger) (IObjectStorage, error) {
	awsCfg, err := aws_config.LoadDefaultConfig(context.TODO(),
		aws_config.WithRegion(cfg.AwsRegion),
		aws_config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AwsAccessKeyID,
			cfg.AwsSecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg)
	return &s3Storage{
		cfg:           cfg,
		s3Client:      s3Client,
		presignClient: s3.NewPresignClient(s3Client),
		log:           log,
	}, nil
}

func (s *s3Storage) PresignAttachmentPut(ctx context.Context, threadID utils.SixID, filename, contentType string) (string, string, error) {
	return s.presignPut(ctx, AttachmentPrefix(threadID)+uuid.NewString()+"_"+sanitizeFilename(filename), contentType)
}

func (s *s3Storage) PresignListingImagePut(ctx context.Context, listingID utils.SixID, filename, contentType string) (string, string, error) {
	return s.presignPut(ctx, ListingImagePrefix(listingID)+uuid.NewString()+"_"+sanitizeFilename(filename), contentType)
}

func (s *s3Storage) presignPut(ctx context.Context, objectKey, contentType string) (string, string, error) {
	presignedReq, err := s.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.AwsS3Bucket),
		Key:         aws.String(objectKey),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.cfg.AttachmentURLTTL))
	if err != nil {
		return "", "", fmt.Errorf("failed to generate presigned PUT URL for key %s: %w", objectKey, err)
	}

	s.log.Debug("Generated presigned upload URL", zap.String("key", objectKey))
	return presignedReq.URL, objectKey, nil
}

func (s *s3Storage) DeleteObjects(ctx context.Context, keys []string) error {
	var errs []error
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))
		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := s.s3Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.cfg.AwsS3Bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("delete batch at %d: %w", start, err))
			continue
		}
		for _, e := range out.Errors {
			errs = append(errs, fmt.Errorf("delete %s: %s", aws.ToString(e.Key), aws.ToString(e.Message)))
		}
	}
	return errors.Join(errs...)
}

// Disabled stands in when no bucket is configured: uploads are refused and
// deletes succeed without doing anything.
type Disabled struct{}

func (Disabled) PresignAttachmentPut(context.Context, utils.SixID, string, string) (string, string, error) {
	return "", "", ErrStorageDisabled
}

func (Disabled) PresignListingImagePut(context.Context, utils.SixID, string, string) (string, string, error) {
	return "", "", ErrStorageDisabled
}

func (Disabled) DeleteObjects(context.Context, []string) error {
	return nil
}
