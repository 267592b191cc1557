package script

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
)

const defaultCacheTTL = 24 * time.Hour

type scriptItem struct {
	Key    string `dynamodbav:"cache_key"`
	Script string `dynamodbav:"script"`
	TTL    int64  `dynamodbav:"ttl"`
}

// DynamoCache keeps scripts in a DynamoDB table keyed by cache_key, with the
// table's TTL attribute set to ttl.
type DynamoCache struct {
	client dynamodbiface.DynamoDBAPI
	table  string
	ttl    time.Duration
	now    func() time.Time
}

func NewDynamoCache(table, region string, ttl time.Duration) (*DynamoCache, error) {
	if strings.TrimSpace(table) == "" {
		return nil, errors.New("script cache: dynamodb table is required")
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("script cache: aws session: %w", err)
	}
	return NewDynamoCacheWithClient(dynamodb.New(sess), table, ttl), nil
}

func NewDynamoCacheWithClient(client dynamodbiface.DynamoDBAPI, table string, ttl time.Duration) *DynamoCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &DynamoCache{client: client, table: table, ttl: ttl, now: time.Now}
}

func (c *DynamoCache) Get(ctx context.Context, key string) (string, bool, error) {
	out, err := c.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.table),
		Key:       map[string]*dynamodb.AttributeValue{"cache_key": {S: aws.String(key)}},
	})
	if err != nil {
		return "", false, fmt.Errorf("script cache: get %s: %w", key, err)
	}
	if len(out.Item) == 0 {
		return "", false, nil
	}
	var item scriptItem
	if err := dynamodbattribute.UnmarshalMap(out.Item, &item); err != nil {
		return "", false, fmt.Errorf("script cache: decode %s: %w", key, err)
	}
	// Expired rows linger until DynamoDB sweeps them.
	if item.TTL > 0 && c.now().Unix() >= item.TTL {
		return "", false, nil
	}
	return item.Script, true, nil
}

func (c *DynamoCache) Put(ctx context.Context, key, script string) error {
	av, err := dynamodbattribute.MarshalMap(scriptItem{
		Key:    key,
		Script: script,
		TTL:    c.now().Add(c.ttl).Unix(),
	})
	if err != nil {
		return fmt.Errorf("script cache: encode %s: %w", key, err)
	}
	if _, err := c.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("script cache: put %s: %w", key, err)
	}
	return nil
}

var _ Cache = (*DynamoCache)(nil)
