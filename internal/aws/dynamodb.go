package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/yuxishi/aws-quota-monitor/internal/logging"
	"github.com/yuxishi/aws-quota-monitor/internal/model"
)

// maxBatchWrite is the BatchWriteItem request limit.
const maxBatchWrite = 25

type DynamoDBAPI interface {
	dynamodb.QueryAPIClient
	dynamodb.ScanAPIClient
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

type Tables struct {
	Service string
	Quota   string
	Report  string
}

// DynamoStore keeps the service table, the quota catalog and the usage
// report in DynamoDB. Tables are regional, so a store serves one region.
type DynamoStore struct {
	api    DynamoDBAPI
	tables Tables
}

func NewDynamoStore(api DynamoDBAPI, tables Tables) *DynamoStore {
	return &DynamoStore{api: api, tables: tables}
}

func (s *DynamoStore) GetService(ctx context.Context, serviceCode string) (model.ServiceStatus, bool, error) {
	output, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tables.Service),
		Key:            map[string]ddbtypes.AttributeValue{"ServiceCode": &ddbtypes.AttributeValueMemberS{Value: serviceCode}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return model.ServiceStatus{}, false, fmt.Errorf("get service %s: %w", serviceCode, err)
	}
	if len(output.Item) == 0 {
		return model.ServiceStatus{}, false, nil
	}
	var status model.ServiceStatus
	if err := attributevalue.UnmarshalMap(output.Item, &status); err != nil {
		return model.ServiceStatus{}, false, fmt.Errorf("decode service %s: %w", serviceCode, err)
	}
	return status, true, nil
}

func (s *DynamoStore) PutService(ctx context.Context, status model.ServiceStatus) error {
	item, err := attributevalue.MarshalMap(status)
	if err != nil {
		return fmt.Errorf("encode service %s: %w", status.ServiceCode, err)
	}
	if _, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(s.tables.Service), Item: item}); err != nil {
		return fmt.Errorf("put service %s: %w", status.ServiceCode, err)
	}
	return nil
}

func (s *DynamoStore) ListServices(ctx context.Context) ([]model.ServiceStatus, error) {
	var services []model.ServiceStatus
	paginator := dynamodb.NewScanPaginator(s.api, &dynamodb.ScanInput{TableName: aws.String(s.tables.Service)})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan services: %w", err)
		}
		var page []model.ServiceStatus
		if err := attributevalue.UnmarshalListOfMaps(output.Items, &page); err != nil {
			return nil, fmt.Errorf("decode services: %w", err)
		}
		services = append(services, page...)
	}
	return services, nil
}

func (s *DynamoStore) QuotaEntries(ctx context.Context, serviceCode string) ([]model.CatalogEntry, error) {
	var entries []model.CatalogEntry
	paginator := dynamodb.NewQueryPaginator(s.api, &dynamodb.QueryInput{
		TableName:              aws.String(s.tables.Quota),
		KeyConditionExpression: aws.String("ServiceCode = :s"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":s": &ddbtypes.AttributeValueMemberS{Value: serviceCode},
		},
	})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query quotas for %s: %w", serviceCode, err)
		}
		var page []model.CatalogEntry
		if err := attributevalue.UnmarshalListOfMaps(output.Items, &page); err != nil {
			return nil, fmt.Errorf("decode quotas for %s: %w", serviceCode, err)
		}
		entries = append(entries, page...)
	}
	return entries, nil
}

func (s *DynamoStore) PutQuotas(ctx context.Context, entries []model.CatalogEntry) error {
	requests := make([]ddbtypes.WriteRequest, 0, len(entries))
	for _, e := range entries {
		item, err := attributevalue.MarshalMap(e)
		if err != nil {
			return fmt.Errorf("encode quota %s: %w", e.QuotaCode, err)
		}
		requests = append(requests, ddbtypes.WriteRequest{PutRequest: &ddbtypes.PutRequest{Item: item}})
	}
	return s.batchWrite(ctx, s.tables.Quota, requests)
}

func (s *DynamoStore) DeleteQuotas(ctx context.Context, serviceCode string, quotaCodes []string) error {
	requests := make([]ddbtypes.WriteRequest, 0, len(quotaCodes))
	for _, code := range quotaCodes {
		requests = append(requests, ddbtypes.WriteRequest{DeleteRequest: &ddbtypes.DeleteRequest{
			Key: map[string]ddbtypes.AttributeValue{
				"ServiceCode": &ddbtypes.AttributeValueMemberS{Value: serviceCode},
				"QuotaCode":   &ddbtypes.AttributeValueMemberS{Value: code},
			},
		}})
	}
	return s.batchWrite(ctx, s.tables.Quota, requests)
}

// batchWrite sends requests in chunks of 25 and retries unprocessed items
// once before giving up on them.
func (s *DynamoStore) batchWrite(ctx context.Context, table string, requests []ddbtypes.WriteRequest) error {
	for start := 0; start < len(requests); start += maxBatchWrite {
		chunk := requests[start:min(start+maxBatchWrite, len(requests))]
		pending := map[string][]ddbtypes.WriteRequest{table: chunk}
		for attempt := 0; attempt < 2 && len(pending[table]) > 0; attempt++ {
			output, err := s.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return fmt.Errorf("batch write %s: %w", table, err)
			}
			pending = output.UnprocessedItems
		}
		if n := len(pending[table]); n > 0 {
			return fmt.Errorf("batch write %s: %d unprocessed items", table, n)
		}
	}
	logging.Entry(ctx).Debugf("wrote %d items to %s", len(requests), table)
	return nil
}

func (s *DynamoStore) PutReport(ctx context.Context, item model.ReportItem) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", item.MessageID, err)
	}
	if _, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(s.tables.Report), Item: av}); err != nil {
		return fmt.Errorf("put report %s: %w", item.MessageID, err)
	}
	return nil
}

func (s *DynamoStore) Reports(ctx context.Context) ([]model.ReportItem, error) {
	var items []model.ReportItem
	paginator := dynamodb.NewScanPaginator(s.api, &dynamodb.ScanInput{TableName: aws.String(s.tables.Report)})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan reports: %w", err)
		}
		var page []model.ReportItem
		if err := attributevalue.UnmarshalListOfMaps(output.Items, &page); err != nil {
			return nil, fmt.Errorf("decode reports: %w", err)
		}
		items = append(items, page...)
	}
	return items, nil
}
