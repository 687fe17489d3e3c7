package aws

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuxishi/aws-quota-monitor/internal/model"
)

type fakeDynamoDB struct {
	items       map[string]map[string]ddbtypes.AttributeValue
	batches     []int
	unprocessed int
	queryItems  []map[string]ddbtypes.AttributeValue
}

func (f *fakeDynamoDB) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	key := in.Key["ServiceCode"].(*ddbtypes.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: f.items[key]}, nil
}

func (f *fakeDynamoDB) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	key := in.Item["ServiceCode"].(*ddbtypes.AttributeValueMemberS).Value
	f.items[key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

// BatchWriteItem leaves the first f.unprocessed requests unprocessed, once.
func (f *fakeDynamoDB) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	out := &dynamodb.BatchWriteItemOutput{}
	for table, reqs := range in.RequestItems {
		f.batches = append(f.batches, len(reqs))
		if f.unprocessed > 0 {
			n := min(f.unprocessed, len(reqs))
			out.UnprocessedItems = map[string][]ddbtypes.WriteRequest{table: reqs[:n]}
			f.unprocessed = 0
		}
	}
	return out, nil
}

func (f *fakeDynamoDB) Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return &dynamodb.QueryOutput{Items: f.queryItems}, nil
}

func (f *fakeDynamoDB) Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	var items []map[string]ddbtypes.AttributeValue
	for _, it := range f.items {
		items = append(items, it)
	}
	return &dynamodb.ScanOutput{Items: items}, nil
}

func newFakeDynamoDB() *fakeDynamoDB {
	return &fakeDynamoDB{items: map[string]map[string]ddbtypes.AttributeValue{}}
}

var testTables = Tables{Service: "svc", Quota: "quota", Report: "report"}

func TestDynamoStore_Services(t *testing.T) {
	ctx := context.Background()
	s := NewDynamoStore(newFakeDynamoDB(), testTables)

	_, found, err := s.GetService(ctx, "ec2")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.PutService(ctx, model.ServiceStatus{ServiceCode: "ec2", Monitored: true}))
	status, found, err := s.GetService(ctx, "ec2")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, status.Monitored)

	all, err := s.ListServices(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.ServiceStatus{{ServiceCode: "ec2", Monitored: true}}, all)
}

func TestDynamoStore_DeleteQuotasInChunks(t *testing.T) {
	api := newFakeDynamoDB()
	codes := make([]string, 60)
	for i := range codes {
		codes[i] = "L-" + string(rune('A'+i%26)) + string(rune('0'+i/26))
	}

	require.NoError(t, NewDynamoStore(api, testTables).DeleteQuotas(context.Background(), "ec2", codes))
	assert.Equal(t, []int{25, 25, 10}, api.batches)
}

func TestDynamoStore_RetriesUnprocessedOnce(t *testing.T) {
	api := newFakeDynamoDB()
	api.unprocessed = 3

	require.NoError(t, NewDynamoStore(api, testTables).DeleteQuotas(context.Background(), "ec2", []string{"L-1", "L-2", "L-3", "L-4"}))
	assert.Equal(t, []int{4, 3}, api.batches)
}

func TestDynamoStore_QuotaEntriesRoundTrip(t *testing.T) {
	entry := model.CatalogEntry{
		Quota: model.Quota{
			ServiceCode: "ec2",
			QuotaCode:   "L-1216C47A",
			QuotaName:   "Running On-Demand Standard instances",
			Value:       1152,
			UsageMetric: &model.UsageMetric{
				Namespace:  "AWS/Usage",
				MetricName: "ResourceCount",
				Dimensions: map[string]string{"Service": "EC2"},
				Statistic:  "Maximum",
			},
		},
		LastMonitored: time.Unix(1767225600, 0),
		ExpiryTime:    1767830400,
	}
	item, err := attributevalue.MarshalMap(entry)
	require.NoError(t, err)
	assert.Contains(t, item, "QuotaCode")
	assert.Contains(t, item, "UsageMetric")

	api := newFakeDynamoDB()
	api.queryItems = []map[string]ddbtypes.AttributeValue{item}
	entries, err := NewDynamoStore(api, testTables).QuotaEntries(context.Background(), "ec2")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entry.Quota, entries[0].Quota)
	assert.True(t, entry.LastMonitored.Equal(entries[0].LastMonitored))
	assert.Equal(t, entry.ExpiryTime, entries[0].ExpiryTime)
}
