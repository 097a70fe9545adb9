package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	kerrors "github.com/bmlock/bmlock/internal/errors"
)

const nodeSortKeyPrefix = "NODE#"

// DynamoDBAPI is the subset of the DynamoDB client the store uses.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoDBStore keeps one item per managed folder under the user's partition.
type DynamoDBStore struct {
	client    DynamoDBAPI
	tableName string
	userID    string
}

// DynamoDBItem represents the item structure in DynamoDB
type DynamoDBItem struct {
	PK           string `dynamodbav:"PK"`
	SK           string `dynamodbav:"SK"`
	FolderID     string `dynamodbav:"folder_id"`
	SettingsBlob string `dynamodbav:"settings_blob"` // JSON string of NodeSettings
	Version      int64  `dynamodbav:"version"`
	ModifiedAt   string `dynamodbav:"modified_at"`
	DeviceID     string `dynamodbav:"device_id"`
}

// NewDynamoDBStore loads the default AWS configuration for region.
func NewDynamoDBStore(ctx context.Context, region, tableName, userID string) (*DynamoDBStore, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewDynamoDBStoreWithClient(dynamodb.NewFromConfig(cfg), tableName, userID), nil
}

// NewDynamoDBStoreWithClient wraps an existing client.
func NewDynamoDBStoreWithClient(client DynamoDBAPI, tableName, userID string) *DynamoDBStore {
	return &DynamoDBStore{
		client:    client,
		tableName: tableName,
		userID:    userID,
	}
}

// GetDeviceID returns a unique device identifier
func GetDeviceID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

func (ds *DynamoDBStore) partitionKey() string {
	return fmt.Sprintf("USER#%s", ds.userID)
}

func (ds *DynamoDBStore) key(folderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: ds.partitionKey()},
		"SK": &types.AttributeValueMemberS{Value: nodeSortKeyPrefix + folderID},
	}
}

func (ds *DynamoDBStore) Get(ctx context.Context, folderID string) (NodeSettings, bool, error) {
	result, err := ds.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(ds.tableName),
		Key:            ds.key(folderID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return NodeSettings{}, false, fmt.Errorf("get settings from DynamoDB: %w: %w", kerrors.ErrStoreUnavailable, err)
	}
	if result.Item == nil {
		return NodeSettings{}, false, nil
	}

	var item DynamoDBItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return NodeSettings{}, false, fmt.Errorf("%w: DynamoDB item: %v", kerrors.ErrMalformedInput, err)
	}
	s, err := NodeSettingsFromJSON([]byte(item.SettingsBlob))
	if err != nil {
		return NodeSettings{}, false, err
	}
	s.Version = item.Version
	return s, true, nil
}

// Set writes the record with a conditional put so a stale version never overwrites a newer one.
func (ds *DynamoDBStore) Set(ctx context.Context, folderID string, s NodeSettings) error {
	next, err := nextRecord(s)
	if err != nil {
		return err
	}
	blob, err := next.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize settings: %w", err)
	}

	item := DynamoDBItem{
		PK:           ds.partitionKey(),
		SK:           nodeSortKeyPrefix + folderID,
		FolderID:     folderID,
		SettingsBlob: string(blob),
		Version:      next.Version,
		ModifiedAt:   next.ModifiedAt,
		DeviceID:     GetDeviceID(),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName:                aws.String(ds.tableName),
		Item:                     av,
		ExpressionAttributeNames: map[string]string{"#v": "version"},
	}
	if s.Version == 0 {
		input.ConditionExpression = aws.String("attribute_not_exists(#v)")
	} else {
		input.ConditionExpression = aws.String("#v = :expectedVersion")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expectedVersion": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", s.Version)},
		}
	}

	if _, err := ds.client.PutItem(ctx, input); err != nil {
		var condCheckErr *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckErr) {
			return fmt.Errorf("folder %s: remote settings have been updated: %w", folderID, kerrors.ErrVersionConflict)
		}
		return fmt.Errorf("save settings to DynamoDB: %w: %w", kerrors.ErrStoreUnavailable, err)
	}
	return nil
}

func (ds *DynamoDBStore) Delete(ctx context.Context, folderID string) error {
	_, err := ds.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(ds.tableName),
		Key:       ds.key(folderID),
	})
	if err != nil {
		return fmt.Errorf("delete settings from DynamoDB: %w: %w", kerrors.ErrStoreUnavailable, err)
	}
	return nil
}

// List queries every folder record in the user's partition.
func (ds *DynamoDBStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	var startKey map[string]types.AttributeValue
	for {
		out, err := ds.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(ds.tableName),
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: ds.partitionKey()},
				":prefix": &types.AttributeValueMemberS{Value: nodeSortKeyPrefix},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("query settings in DynamoDB: %w: %w", kerrors.ErrStoreUnavailable, err)
		}
		for _, raw := range out.Items {
			var item DynamoDBItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, fmt.Errorf("%w: DynamoDB item: %v", kerrors.ErrMalformedInput, err)
			}
			ids = append(ids, strings.TrimPrefix(item.SK, nodeSortKeyPrefix))
		}
		if len(out.LastEvaluatedKey) == 0 {
			return ids, nil
		}
		startKey = out.LastEvaluatedKey
	}
}
