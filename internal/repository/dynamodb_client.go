package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"assistant-web/internal/domain"
)

const (
	skSession   = "SESSION#"
	ttlDuration = 30 * 24 * time.Hour // 30-day TTL
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Client stores browser sessions in a DynamoDB table keyed by browser id.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

func browserPK(browserID string) string {
	return "BROWSER#" + browserID
}

func (c *Client) key(browserID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: browserPK(browserID)},
		"SK": &types.AttributeValueMemberS{Value: skSession},
	}
}

// Load returns the stored session, or nil when none exists or the item has
// passed its TTL but not yet been swept by DynamoDB.
func (c *Client) Load(ctx context.Context, browserID string) (*domain.Session, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            c.key(browserID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: Load get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, nil
	}

	if ttl, err := intAttr(out.Item, "ttl"); err == nil && ttl > 0 && c.now().Unix() >= ttl {
		return nil, nil
	}

	s, err := itemToSession(out.Item)
	if err != nil {
		return nil, fmt.Errorf("repository: Load decode: %w", err)
	}
	return s, nil
}

// Save writes or replaces the browser's session.
func (c *Client) Save(ctx context.Context, browserID string, s *domain.Session) error {
	if s == nil {
		return errors.New("repository: Save: session must not be nil")
	}
	item := sessionItem(s)
	for k, v := range c.key(browserID) {
		item[k] = v
	}
	item["ttl"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(c.now().Add(ttlDuration).Unix(), 10)}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("repository: Save: %w", err)
	}
	return nil
}

// Delete removes the browser's session. Deleting a missing item is not an error.
func (c *Client) Delete(ctx context.Context, browserID string) error {
	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key:       c.key(browserID),
	})
	if err != nil {
		return fmt.Errorf("repository: Delete: %w", err)
	}
	return nil
}

func sessionItem(s *domain.Session) map[string]types.AttributeValue {
	var expiresAt int64
	if !s.ExpiresAt.IsZero() {
		expiresAt = s.ExpiresAt.Unix()
	}
	return map[string]types.AttributeValue{
		"accessToken":  &types.AttributeValueMemberS{Value: s.AccessToken},
		"refreshToken": &types.AttributeValueMemberS{Value: s.RefreshToken},
		"tokenType":    &types.AttributeValueMemberS{Value: s.TokenType},
		"expiresAt":    &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt, 10)},
		"userId":       &types.AttributeValueMemberS{Value: s.User.ID},
		"email":        &types.AttributeValueMemberS{Value: s.User.Email},
	}
}

func itemToSession(item map[string]types.AttributeValue) (*domain.Session, error) {
	access, err := strAttr(item, "accessToken")
	if err != nil {
		return nil, err
	}
	refresh, err := strAttr(item, "refreshToken")
	if err != nil {
		return nil, err
	}
	tokenType, _ := strAttr(item, "tokenType") // allow empty
	userID, _ := strAttr(item, "userId")
	email, _ := strAttr(item, "email")

	s := &domain.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    tokenType,
		User:         domain.User{ID: userID, Email: email},
	}
	if exp, err := intAttr(item, "expiresAt"); err == nil && exp > 0 {
		s.ExpiresAt = time.Unix(exp, 0).UTC()
	}
	return s, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
