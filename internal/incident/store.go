// Package incident keeps a short-lived record of security incidents
// (escalations and safety blocks) for the admin surface.
package incident

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/aegisgraph/aegisgraph/pkg/logging"
)

const recordTTL = 7 * 24 * time.Hour

// Kind classifies an incident.
type Kind string

const (
	KindEscalation  Kind = "escalation"
	KindSafetyBlock Kind = "safety_block"
)

type dynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Record is one persisted incident.
type Record struct {
	IncidentID   string   `dynamodbav:"incidentId" json:"incident_id"`
	Kind         Kind     `dynamodbav:"kind" json:"kind"`
	RequestID    string   `dynamodbav:"requestId,omitempty" json:"request_id,omitempty"`
	SecurityMode string   `dynamodbav:"securityMode" json:"security_mode"`
	RiskScore    int      `dynamodbav:"riskScore,omitempty" json:"risk_score,omitempty"`
	AttackTypes  []string `dynamodbav:"attackTypes,omitempty" json:"attack_types,omitempty"`
	Detail       string   `dynamodbav:"detail,omitempty" json:"detail,omitempty"`
	CreatedAt    string   `dynamodbav:"createdAt" json:"created_at"`
	ExpiresAt    int64    `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// Store persists incidents to DynamoDB with a TTL.
type Store struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

// NewStore builds an incident store. A nil client or empty table name yields
// a nil store whose methods are no-ops.
func NewStore(client dynamoAPI, tableName string, logger *logging.Logger) *Store {
	if client == nil || tableName == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{client: client, tableName: tableName, logger: logger.Component("incident")}
}

// Put persists one incident record.
func (s *Store) Put(ctx context.Context, rec Record) error {
	if s == nil || s.client == nil {
		return nil
	}
	now := time.Now().UTC()
	if rec.CreatedAt == "" {
		rec.CreatedAt = now.Format(time.RFC3339)
	}
	if rec.ExpiresAt == 0 {
		rec.ExpiresAt = now.Add(recordTTL).Unix()
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("incident: marshal record: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("incident: put record: %w", err)
	}
	return nil
}

// ListRecent returns up to limit incidents, newest first. The table stays
// small thanks to the TTL, so a scan is acceptable here.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	if s == nil || s.client == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(s.tableName),
	})
	if err != nil {
		return nil, fmt.Errorf("incident: scan records: %w", err)
	}

	records := make([]Record, 0, len(out.Items))
	for _, item := range out.Items {
		var rec Record
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			return nil, fmt.Errorf("incident: unmarshal record: %w", err)
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt > records[j].CreatedAt
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
