package dynamo_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/omnibot/context-service/internal/model"
	"github.com/omnibot/context-service/internal/plugin/store/dynamo"
	registrystore "github.com/omnibot/context-service/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	queries     []*dynamodb.QueryInput
	queryPages  []*dynamodb.QueryOutput
	puts        []*dynamodb.PutItemInput
	deletes     []*dynamodb.DeleteItemInput
	failWith    error
	pageCursor  int
}

func (f *fakeClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queries = append(f.queries, params)
	if f.failWith != nil {
		return nil, f.failWith
	}
	if f.pageCursor >= len(f.queryPages) {
		return &dynamodb.QueryOutput{}, nil
	}
	out := f.queryPages[f.pageCursor]
	f.pageCursor++
	return out, nil
}

func (f *fakeClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, params)
	if f.failWith != nil {
		return nil, f.failWith
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.deletes = append(f.deletes, params)
	if f.failWith != nil {
		return nil, f.failWith
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

func item(identity, domain, key, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"identity":   &types.AttributeValueMemberS{Value: identity},
		"sk":         &types.AttributeValueMemberS{Value: domain + "#" + key},
		"domain":     &types.AttributeValueMemberS{Value: domain},
		"key":        &types.AttributeValueMemberS{Value: key},
		"value":      &types.AttributeValueMemberS{Value: value},
		"timestamp":  &types.AttributeValueMemberN{Value: "1700000000"},
		"expires_at": &types.AttributeValueMemberN{Value: "1702592000"},
	}
}

func TestQueryByIdentity(t *testing.T) {
	client := &fakeClient{queryPages: []*dynamodb.QueryOutput{
		{Items: []map[string]types.AttributeValue{
			item("a@x.com", "global", "last_intent", "greet"),
		}},
	}}
	store := dynamo.New(client, "context-entries")

	entries, err := store.QueryByIdentity(context.Background(), "a@x.com")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.Entry{
		Identity:  "a@x.com",
		Domain:    "global",
		Key:       "last_intent",
		Value:     "greet",
		Timestamp: 1700000000,
		ExpiresAt: 1702592000,
	}, entries[0])

	require.Len(t, client.queries, 1)
	q := client.queries[0]
	assert.Equal(t, "context-entries", aws.ToString(q.TableName))
	assert.Equal(t, "#id = :id", aws.ToString(q.KeyConditionExpression))
	id := q.ExpressionAttributeValues[":id"].(*types.AttributeValueMemberS)
	assert.Equal(t, "a@x.com", id.Value)
}

func TestQueryByIdentityAndDomainUsesSortKeyPrefix(t *testing.T) {
	client := &fakeClient{}
	store := dynamo.New(client, "context-entries")

	_, err := store.QueryByIdentityAndDomain(context.Background(), "a@x.com", "retail")
	require.NoError(t, err)

	require.Len(t, client.queries, 1)
	q := client.queries[0]
	assert.Equal(t, "#id = :id AND begins_with(#sk, :prefix)", aws.ToString(q.KeyConditionExpression))
	prefix := q.ExpressionAttributeValues[":prefix"].(*types.AttributeValueMemberS)
	assert.Equal(t, "retail#", prefix.Value)
}

func TestQueryFollowsPagination(t *testing.T) {
	cursor := map[string]types.AttributeValue{
		"identity": &types.AttributeValueMemberS{Value: "a@x.com"},
	}
	client := &fakeClient{queryPages: []*dynamodb.QueryOutput{
		{
			Items:            []map[string]types.AttributeValue{item("a@x.com", "global", "last_intent", "greet")},
			LastEvaluatedKey: cursor,
		},
		{
			Items: []map[string]types.AttributeValue{item("a@x.com", "retail", "cart", "3")},
		},
	}}
	store := dynamo.New(client, "context-entries")

	entries, err := store.QueryByIdentity(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	require.Len(t, client.queries, 2)
	assert.Equal(t, cursor, client.queries[1].ExclusiveStartKey)
}

func TestDecodeLegacyItemSplitsSortKey(t *testing.T) {
	legacy := map[string]types.AttributeValue{
		"identity":  &types.AttributeValueMemberS{Value: "a@x.com"},
		"sk":        &types.AttributeValueMemberS{Value: "travel#trip"},
		"value":     &types.AttributeValueMemberS{Value: "NYC"},
		"timestamp": &types.AttributeValueMemberN{Value: "1700000000"},
	}
	client := &fakeClient{queryPages: []*dynamodb.QueryOutput{
		{Items: []map[string]types.AttributeValue{legacy}},
	}}
	store := dynamo.New(client, "context-entries")

	entries, err := store.QueryByIdentity(context.Background(), "a@x.com")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "travel", entries[0].Domain)
	assert.Equal(t, "trip", entries[0].Key)
}

func TestDecodeNumericValueAttribute(t *testing.T) {
	numeric := item("a@x.com", "retail", "cart", "")
	numeric["value"] = &types.AttributeValueMemberN{Value: "3"}
	client := &fakeClient{queryPages: []*dynamodb.QueryOutput{
		{Items: []map[string]types.AttributeValue{numeric}},
	}}
	store := dynamo.New(client, "context-entries")

	entries, err := store.QueryByIdentity(context.Background(), "a@x.com")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "3", entries[0].Value)
}

func TestPutWritesAllAttributes(t *testing.T) {
	client := &fakeClient{}
	store := dynamo.New(client, "context-entries")

	err := store.Put(context.Background(), model.Entry{
		Identity:  "a@x.com",
		Domain:    "retail",
		Key:       "cart",
		Value:     "3",
		Timestamp: 1700000000,
		ExpiresAt: 1702592000,
	})
	require.NoError(t, err)

	require.Len(t, client.puts, 1)
	putItem := client.puts[0].Item
	assert.Equal(t, "a@x.com", putItem["identity"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "retail#cart", putItem["sk"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "retail", putItem["domain"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "cart", putItem["key"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "3", putItem["value"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "1700000000", putItem["timestamp"].(*types.AttributeValueMemberN).Value)
	assert.Equal(t, "1702592000", putItem["expires_at"].(*types.AttributeValueMemberN).Value)
}

func TestDeleteKeysBySortKey(t *testing.T) {
	client := &fakeClient{}
	store := dynamo.New(client, "context-entries")

	require.NoError(t, store.Delete(context.Background(), "a@x.com", "retail", "cart"))

	require.Len(t, client.deletes, 1)
	key := client.deletes[0].Key
	assert.Equal(t, "a@x.com", key["identity"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "retail#cart", key["sk"].(*types.AttributeValueMemberS).Value)
}

func TestErrorsWrapAsUnavailable(t *testing.T) {
	client := &fakeClient{failWith: errors.New("throttled")}
	store := dynamo.New(client, "context-entries")
	ctx := context.Background()

	var unavailable *registrystore.StorageUnavailableError

	_, err := store.QueryByIdentity(ctx, "a@x.com")
	assert.ErrorAs(t, err, &unavailable)

	err = store.Put(ctx, model.Entry{Identity: "a@x.com", Domain: "global", Key: "k"})
	assert.ErrorAs(t, err, &unavailable)

	err = store.Delete(ctx, "a@x.com", "global", "k")
	assert.ErrorAs(t, err, &unavailable)
}
