package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sirupsen/logrus"

	"github.com/autopilot-ops/extraction-store/internal/config"
	"github.com/autopilot-ops/extraction-store/internal/models"
)

// S3Archiver writes session rows to an S3 bucket as JSON objects keyed by
// day and session id.
type S3Archiver struct {
	uploader *s3manager.Uploader
	bucket   string
	prefix   string
	log      *logrus.Entry
}

func NewS3Archiver(logger *logrus.Logger, cfg *config.Config) *S3Archiver {
	awsConfig := &aws.Config{
		Region:           aws.String(cfg.S3Region),
		Credentials:      credentials.NewStaticCredentials(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		S3ForcePathStyle: aws.Bool(true),
	}
	if cfg.S3Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.S3Endpoint)
	}

	sess := session.Must(session.NewSession(awsConfig))

	return &S3Archiver{
		uploader: s3manager.NewUploader(sess),
		bucket:   cfg.ArchiveBucket,
		prefix:   cfg.ArchivePrefix,
		log:      logger.WithField("component", "s3_archiver"),
	}
}

func (a *S3Archiver) ArchiveSession(ctx context.Context, rec *models.ProcessingSession) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	key := fmt.Sprintf("%ssessions/%s/%s.json",
		a.prefix, rec.CreatedAt.UTC().Format("2006/01/02"), rec.SessionID)

	_, err = a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 upload failed: %w", err)
	}

	a.log.WithFields(logrus.Fields{
		"session_id": rec.SessionID,
		"key":        key,
	}).Debug("Archived session")
	return nil
}
