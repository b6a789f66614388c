// Package archive retains the full payload of blocked requests in S3 for
// after-the-fact security review.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aegisgraph/aegisgraph/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Evidence is the archived snapshot of one blocked request.
type Evidence struct {
	RequestID    string    `json:"request_id"`
	ClinicianID  string    `json:"clinician_id"`
	PatientID    string    `json:"patient_id"`
	Message      string    `json:"message"`
	SecurityMode string    `json:"security_mode"`
	Reason       string    `json:"reason"`
	RiskScore    int       `json:"risk_score,omitempty"`
	AttackTypes  []string  `json:"attack_types,omitempty"`
	BlockedAt    time.Time `json:"blocked_at"`
}

// Store writes evidence objects to S3. If bucket is empty all operations are
// no-ops.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
}

// NewStore creates an evidence store.
func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{bucket: bucket, s3Client: s3Client, logger: logger.Component("archive")}
}

// Enabled returns true if archival is configured.
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// ArchiveBlocked writes one evidence object, keyed by date and request ID.
func (s *Store) ArchiveBlocked(ctx context.Context, ev Evidence) error {
	if !s.Enabled() {
		return nil
	}
	if ev.BlockedAt.IsZero() {
		ev.BlockedAt = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("archive: marshal evidence: %w", err)
	}

	key := fmt.Sprintf("blocked/%s/%s.json", ev.BlockedAt.Format("2006-01-02"), ev.RequestID)
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: put evidence object: %w", err)
	}

	s.logger.Debug("archived blocked request", "request_id", ev.RequestID, "key", key)
	return nil
}
