// utils/r2.go
package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	appconfig "buildinpublic-hub/config"
	"buildinpublic-hub/logger"
	"buildinpublic-hub/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
)

// R2Archiver uploads finished spar results to a Cloudflare R2 bucket.
type R2Archiver struct {
	client     *s3.Client
	bucket     string
	cdnBaseURL string
	log        logrus.FieldLogger
}

// SparResultSnapshot is the JSON document stored per completed spar.
type SparResultSnapshot struct {
	Spar       *models.Spar        `json:"spar"`
	Commits    []models.SparCommit `json:"commits"`
	ArchivedAt time.Time           `json:"archived_at"`
}

func NewR2Archiver(ctx context.Context, cfg appconfig.R2Config, log logrus.FieldLogger, opts ...func(*s3.Options)) (*R2Archiver, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	}
	cdnBaseURL := cfg.CDNBaseURL
	if cdnBaseURL == "" {
		cdnBaseURL = endpoint + "/" + cfg.Bucket
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.AccessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	opts = append([]func(*s3.Options){func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
		// R2 rejects some of the newer default checksum headers.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	}}, opts...)

	return &R2Archiver{
		client:     s3.NewFromConfig(awsCfg, opts...),
		bucket:     cfg.Bucket,
		cdnBaseURL: strings.TrimRight(cdnBaseURL, "/"),
		log:        logger.Component(log, "r2"),
	}, nil
}

// ResultKey is the object key a spar's result is stored under.
func ResultKey(spar *models.Spar) string {
	return fmt.Sprintf("spars/%s-%s.json", spar.ID, spar.Slug)
}

// PublicURL returns the CDN URL for key.
func (a *R2Archiver) PublicURL(key string) string {
	return fmt.Sprintf("%s/%s", a.cdnBaseURL, key)
}

func (a *R2Archiver) ArchiveResult(ctx context.Context, spar *models.Spar, commits []models.SparCommit) error {
	body, err := json.Marshal(SparResultSnapshot{
		Spar:       spar,
		Commits:    commits,
		ArchivedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode spar result: %w", err)
	}

	key := ResultKey(spar)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to R2: %w", err)
	}

	a.log.WithFields(logrus.Fields{"spar_id": spar.ID, "url": a.PublicURL(key)}).Info("📦 Spar result archived")
	return nil
}
