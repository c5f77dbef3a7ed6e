package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	stripe "github.com/stripe/stripe-go/v82"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Config holds dead-letter archive configuration.
type Config struct {
	S3         S3Config
	Passphrase string
}

// record is the archived shape: the raw event plus why it could not be applied.
type record struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	Reason     string          `json:"reason"`
	ReceivedAt time.Time       `json:"received_at"`
	Event      json.RawMessage `json:"event"`
}

// DeadLetter archives webhook events that could not be mapped to a user, so
// support can replay them once the mapping is repaired. Payloads are encrypted
// at rest because they carry customer emails.
type DeadLetter struct {
	cfg    Config
	client s3Client
	logger *slog.Logger
	now    func() time.Time
}

// NewDeadLetter returns the archive, or nil when S3 is not configured.
// Callers treat a nil archive as "log only".
func NewDeadLetter(cfg Config, logger *slog.Logger) *DeadLetter {
	if cfg.S3.Bucket == "" || cfg.S3.AccessKey == "" || cfg.S3.SecretKey == "" {
		return nil
	}
	return &DeadLetter{
		cfg:    cfg,
		client: newS3Client(cfg.S3),
		logger: logger,
		now:    time.Now,
	}
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// ArchiveEvent encrypts the event and writes it under a date-partitioned key.
func (d *DeadLetter) ArchiveEvent(ctx context.Context, event stripe.Event, reason string) error {
	now := d.now().UTC()

	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	payload, err := json.Marshal(record{
		EventID:    event.ID,
		EventType:  string(event.Type),
		Reason:     reason,
		ReceivedAt: now,
		Event:      raw,
	})
	if err != nil {
		return fmt.Errorf("marshal dead-letter record: %w", err)
	}

	sealed, err := Encrypt(payload, d.cfg.Passphrase)
	if err != nil {
		return fmt.Errorf("encrypt dead-letter record: %w", err)
	}

	key := fmt.Sprintf("dead-letter/%s/%s.json.enc", now.Format("2006/01/02"), event.ID)
	_, err = d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.cfg.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(sealed),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("upload dead-letter record: %w", err)
	}

	d.logger.Info("archived dead-letter event", "event_id", event.ID, "key", key)
	return nil
}

// Retrieve fetches and decrypts one archived event by its object key.
func (d *DeadLetter) Retrieve(ctx context.Context, key string) (json.RawMessage, error) {
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.cfg.S3.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch dead-letter record: %w", err)
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, fmt.Errorf("read dead-letter record: %w", err)
	}
	return Decrypt(buf.Bytes(), d.cfg.Passphrase)
}
