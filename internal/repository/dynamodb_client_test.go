package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"assistant-web/internal/domain"
)

type fakeDynamo struct {
	getOut       *dynamodb.GetItemOutput
	getErr       error
	putErr       error
	deleteErr    error
	lastGetInput *dynamodb.GetItemInput
	lastPutInput *dynamodb.PutItemInput
	lastDelInput *dynamodb.DeleteItemInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGetInput = in
	return f.getOut, f.getErr
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutInput = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.lastDelInput = in
	return &dynamodb.DeleteItemOutput{}, f.deleteErr
}

var testNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func mustNewClient(t *testing.T, db *fakeDynamo) *Client {
	t.Helper()
	c, err := New(db, "test-table")
	require.NoError(t, err)
	c.now = func() time.Time { return testNow }
	return c
}

func testSession() *domain.Session {
	return &domain.Session{
		AccessToken:  "at",
		RefreshToken: "rt",
		TokenType:    "bearer",
		ExpiresAt:    testNow.Add(time.Hour),
		User:         domain.User{ID: "u1", Email: "juan@example.com"},
	}
}

func TestNew_Validates(t *testing.T) {
	_, err := New(nil, "t")
	require.Error(t, err)
	_, err = New(&fakeDynamo{}, " ")
	require.Error(t, err)
}

func TestSave_WritesKeyedItemWithTTL(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	require.NoError(t, c.Save(context.Background(), "b1", testSession()))
	in := db.lastPutInput
	require.NotNil(t, in)
	require.Equal(t, "test-table", *in.TableName)
	require.Equal(t, &types.AttributeValueMemberS{Value: "BROWSER#b1"}, in.Item["PK"])
	require.Equal(t, &types.AttributeValueMemberS{Value: skSession}, in.Item["SK"])
	require.Equal(t, &types.AttributeValueMemberS{Value: "at"}, in.Item["accessToken"])
	ttl := in.Item["ttl"].(*types.AttributeValueMemberN)
	require.NotEmpty(t, ttl.Value)
}

func TestSave_Errors(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{putErr: errors.New("throttled")})
	require.ErrorContains(t, c.Save(context.Background(), "b1", testSession()), "throttled")
	require.Error(t, c.Save(context.Background(), "b1", nil))
}

func TestLoad_RoundTripsSavedItem(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	require.NoError(t, c.Save(context.Background(), "b1", testSession()))

	db.getOut = &dynamodb.GetItemOutput{Item: db.lastPutInput.Item}
	s, err := c.Load(context.Background(), "b1")
	require.NoError(t, err)
	require.Equal(t, testSession(), s)
	require.True(t, *db.lastGetInput.ConsistentRead)
}

func TestLoad_Missing(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{getOut: &dynamodb.GetItemOutput{}})
	s, err := c.Load(context.Background(), "b1")
	require.NoError(t, err)
	require.Nil(t, s)
}

func TestLoad_ExpiredTTLIsMissing(t *testing.T) {
	item := sessionItem(testSession())
	item["ttl"] = &types.AttributeValueMemberN{Value: "1"}
	c := mustNewClient(t, &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: item}})

	s, err := c.Load(context.Background(), "b1")
	require.NoError(t, err)
	require.Nil(t, s)
}

func TestLoad_Errors(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{getErr: errors.New("boom")})
	_, err := c.Load(context.Background(), "b1")
	require.ErrorContains(t, err, "Load get item")

	c = mustNewClient(t, &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"accessToken": &types.AttributeValueMemberN{Value: "1"},
	}}})
	_, err = c.Load(context.Background(), "b1")
	require.ErrorContains(t, err, "Load decode")
}

func TestDelete(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	require.NoError(t, c.Delete(context.Background(), "b1"))
	require.Equal(t, &types.AttributeValueMemberS{Value: "BROWSER#b1"}, db.lastDelInput.Key["PK"])

	db.deleteErr = errors.New("boom")
	require.ErrorContains(t, c.Delete(context.Background(), "b1"), "Delete")
}
