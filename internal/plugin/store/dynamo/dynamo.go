// Package dynamo registers the "dynamo" entry store backed by a DynamoDB
// table partitioned by identity with a composite "domain#key" sort key.
// Expiry is enforced by DynamoDB's TTL on the expires_at attribute; this
// layer never filters by expiry itself.
package dynamo

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/omnibot/context-service/internal/config"
	"github.com/omnibot/context-service/internal/model"
	registrystore "github.com/omnibot/context-service/internal/registry/store"
)

const (
	attrIdentity  = "identity"
	attrSortKey   = "sk"
	attrDomain    = "domain"
	attrKey       = "key"
	attrValue     = "value"
	attrTimestamp = "timestamp"
	attrExpiresAt = "expires_at"
)

// Client is the subset of the DynamoDB API the store uses. Tests substitute
// a fake.
type Client interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

func init() {
	registrystore.Register(registrystore.Plugin{
		Name:   "dynamo",
		Loader: load,
	})
}

func load(ctx context.Context) (registrystore.EntryStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.DynamoTable == "" {
		return nil, fmt.Errorf("dynamo store: CONTEXT_SERVICE_DYNAMO_TABLE is required")
	}
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(client, cfg.DynamoTable), nil
}

// NewClient builds a DynamoDB client from the AWS default config chain.
// When cfg.DynamoEndpoint is set (local development), the endpoint is
// overridden and static throwaway credentials are used.
func NewClient(ctx context.Context, cfg *config.Config) (*dynamodb.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}
	if cfg.DynamoEndpoint != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("dynamo store: loading AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoEndpoint)
		}
	}), nil
}

// Store is the DynamoDB-backed EntryStore.
type Store struct {
	client Client
	table  string
}

// New creates a Store over the given client and table.
func New(client Client, table string) *Store {
	return &Store{client: client, table: table}
}

func sortKey(domain, key string) string {
	return domain + "#" + key
}

func (s *Store) QueryByIdentity(ctx context.Context, identity string) ([]model.Entry, error) {
	return s.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("#id = :id"),
		ExpressionAttributeNames: map[string]string{
			"#id": attrIdentity,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: identity},
		},
	})
}

func (s *Store) QueryByIdentityAndDomain(ctx context.Context, identity, domain string) ([]model.Entry, error) {
	return s.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("#id = :id AND begins_with(#sk, :prefix)"),
		ExpressionAttributeNames: map[string]string{
			"#id": attrIdentity,
			"#sk": attrSortKey,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id":     &types.AttributeValueMemberS{Value: identity},
			":prefix": &types.AttributeValueMemberS{Value: domain + "#"},
		},
	})
}

func (s *Store) query(ctx context.Context, input *dynamodb.QueryInput) ([]model.Entry, error) {
	var entries []model.Entry
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, registrystore.Unavailable("query", err)
		}
		for _, item := range out.Items {
			entries = append(entries, decodeItem(item))
		}
		if len(out.LastEvaluatedKey) == 0 {
			return entries, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (s *Store) Put(ctx context.Context, entry model.Entry) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			attrIdentity:  &types.AttributeValueMemberS{Value: entry.Identity},
			attrSortKey:   &types.AttributeValueMemberS{Value: sortKey(entry.Domain, entry.Key)},
			attrDomain:    &types.AttributeValueMemberS{Value: entry.Domain},
			attrKey:       &types.AttributeValueMemberS{Value: entry.Key},
			attrValue:     &types.AttributeValueMemberS{Value: entry.Value},
			attrTimestamp: &types.AttributeValueMemberN{Value: strconv.FormatInt(entry.Timestamp, 10)},
			attrExpiresAt: &types.AttributeValueMemberN{Value: strconv.FormatInt(entry.ExpiresAt, 10)},
		},
	})
	if err != nil {
		return registrystore.Unavailable("put", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, identity, domain, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			attrIdentity: &types.AttributeValueMemberS{Value: identity},
			attrSortKey:  &types.AttributeValueMemberS{Value: sortKey(domain, key)},
		},
	})
	if err != nil {
		return registrystore.Unavailable("delete", err)
	}
	return nil
}

// decodeItem translates a raw item into an Entry. The explicit domain/key
// attributes are preferred; the sort key is only split when a legacy item
// lacks them. Values written as native numbers decode to their numeric
// string so the service layer surfaces them as numbers.
func decodeItem(item map[string]types.AttributeValue) model.Entry {
	e := model.Entry{
		Identity:  stringAttr(item[attrIdentity]),
		Domain:    stringAttr(item[attrDomain]),
		Key:       stringAttr(item[attrKey]),
		Value:     stringAttr(item[attrValue]),
		Timestamp: numberAttr(item[attrTimestamp]),
		ExpiresAt: numberAttr(item[attrExpiresAt]),
	}
	if e.Domain == "" && e.Key == "" {
		if domain, key, ok := strings.Cut(stringAttr(item[attrSortKey]), "#"); ok {
			e.Domain, e.Key = domain, key
		}
	}
	return e
}

func stringAttr(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	default:
		return ""
	}
}

func numberAttr(av types.AttributeValue) int64 {
	if v, ok := av.(*types.AttributeValueMemberN); ok {
		n, err := strconv.ParseInt(v.Value, 10, 64)
		if err == nil {
			return n
		}
	}
	return 0
}

var _ registrystore.EntryStore = (*Store)(nil)
