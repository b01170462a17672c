package minio

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"settlement-service/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Client wraps the MinIO client for the settlement evidence store.
type Client struct {
	client *minio.Client
	config config.MinioConfig
}

// EvidenceBucket holds settlement proof documents, keyed by content hash.
const EvidenceBucket = "settlement-evidence"

// NewClient initializes the MinIO client and ensures the evidence bucket
// exists.
func NewClient(cfg config.MinioConfig) (*Client, error) {
	endpoint := strings.TrimPrefix(cfg.MinioURL, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	isSecure, err := strconv.ParseBool(cfg.MinioSecure)
	if err != nil {
		log.Printf("Invalid value for MinIO secure flag: %v. Defaulting to false.", err)
		isSecure = false
	}

	minioClient, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: isSecure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := minioClient.ListBuckets(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to MinIO server: %w", err)
	}

	mc := &Client{client: minioClient, config: cfg}

	if err := mc.ensureBucket(ctx, EvidenceBucket); err != nil {
		return nil, fmt.Errorf("failed to ensure evidence bucket: %w", err)
	}

	log.Printf("MinIO client initialized, evidence bucket ready")
	return mc, nil
}

func (mc *Client) ensureBucket(ctx context.Context, bucketName string) error {
	exists, err := mc.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("error checking bucket existence: %w", err)
	}

	if !exists {
		err := mc.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{
			Region: mc.config.MinioLocation,
		})
		if err != nil {
			return fmt.Errorf("error creating bucket %s: %w", bucketName, err)
		}
		log.Printf("Created bucket: %s", bucketName)
	}

	return nil
}

// UploadEvidence stores an evidence document. Object names are content
// hashes, so overwriting an existing object is a no-op with identical
// bytes.
func (mc *Client) UploadEvidence(ctx context.Context, objectName string, data []byte) error {
	reader := bytes.NewReader(data)
	_, err := mc.client.PutObject(ctx, EvidenceBucket, objectName, reader, int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("failed to upload %s to bucket %s: %w", objectName, EvidenceBucket, err)
	}

	return nil
}

// GetEvidence retrieves a stored evidence document.
func (mc *Client) GetEvidence(ctx context.Context, objectName string) (*minio.Object, error) {
	object, err := mc.client.GetObject(ctx, EvidenceBucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s from bucket %s: %w", objectName, EvidenceBucket, err)
	}

	return object, nil
}

// PresignedEvidenceURL generates a temporary retrieval URL for an
// evidence object.
func (mc *Client) PresignedEvidenceURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	presignedURL, err := mc.client.PresignedGetObject(ctx, EvidenceBucket, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL for %s: %w", objectName, err)
	}

	return presignedURL.String(), nil
}

// PublicEvidenceURL builds the stable retrieval URL behind the configured
// resource endpoint.
func (mc *Client) PublicEvidenceURL(objectName string) string {
	return fmt.Sprintf("%s%s/%s", mc.config.MinioResourceURL, EvidenceBucket, objectName)
}

// Close performs any necessary cleanup (MinIO client doesn't require explicit closing)
func (mc *Client) Close() error {
	log.Println("MinIO client connection closed")
	return nil
}
