package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo keeps items in key order and honours the subset of request
// fields Dynamo sends.
type fakeDynamo struct {
	items   map[string]map[string]types.AttributeValue
	scanErr error
	scans   []*dynamodb.ScanInput
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func attrS(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func itemKey(item map[string]types.AttributeValue) string {
	return attrS(item, "sessionId") + "\x00" + attrS(item, "timestamp")
}

func (f *fakeDynamo) sortedKeys() []string {
	keys := make([]string, 0, len(f.items))
	for k := range f.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	k := itemKey(in.Item)
	if in.ConditionExpression != nil {
		if _, exists := f.items[k]; exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
		}
	}
	f.items[k] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	session := attrS(in.ExpressionAttributeValues, ":sessionId")
	out := &dynamodb.QueryOutput{}
	for _, k := range f.sortedKeys() {
		item := f.items[k]
		if attrS(item, "sessionId") == session {
			out.Items = append(out.Items, item)
		}
	}
	return out, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.scans = append(f.scans, in)
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	var fields []string
	if in.ProjectionExpression != nil {
		for _, p := range strings.Split(*in.ProjectionExpression, ",") {
			fields = append(fields, strings.TrimSpace(p))
		}
	}
	after := ""
	if in.ExclusiveStartKey != nil {
		after = itemKey(in.ExclusiveStartKey)
	}

	out := &dynamodb.ScanOutput{}
	keys := f.sortedKeys()
	for i, k := range keys {
		if after != "" && k <= after {
			continue
		}
		item := f.items[k]
		projected := map[string]types.AttributeValue{}
		for _, name := range fields {
			if v, ok := item[name]; ok {
				projected[name] = v
			}
		}
		out.Items = append(out.Items, projected)
		if in.Limit != nil && int32(len(out.Items)) == *in.Limit {
			if i < len(keys)-1 {
				out.LastEvaluatedKey = map[string]types.AttributeValue{
					"sessionId": item["sessionId"],
					"timestamp": item["timestamp"],
				}
			}
			break
		}
	}
	return out, nil
}

func TestDynamoPutQueryRoundTrip(t *testing.T) {
	d := NewDynamo(newFakeDynamo(), "TemperatureReadings")
	ctx := context.Background()
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	in := Record{
		SessionID:        "s1",
		Timestamp:        "100",
		SensorName:       "probe",
		Temperature:      25.5,
		RateOfRise:       0.4,
		Unit:             "celsius",
		SessionStartTime: "100",
		CreatedAt:        created,
		ExpiresAt:        created.Add(time.Hour).Unix(),
	}
	if err := d.Put(ctx, in, PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}

	rows, err := d.Query(ctx, "s1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	got := rows[0]
	if !got.CreatedAt.Equal(in.CreatedAt) {
		t.Fatalf("createdAt mismatch: got %v want %v", got.CreatedAt, in.CreatedAt)
	}
	got.CreatedAt = in.CreatedAt
	if got != in {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, in)
	}
}

func TestDynamoQueryOrdersNumericTimestampsByValue(t *testing.T) {
	d := NewDynamo(newFakeDynamo(), "TemperatureReadings")
	ctx := context.Background()
	for _, ts := range []string{"10", "9", "100"} {
		if err := d.Put(ctx, Record{SessionID: "s1", Timestamp: ts, SensorName: "A"}, PutOptions{}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	rows, err := d.Query(ctx, "s1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	got := make([]string, 0, len(rows))
	for _, r := range rows {
		got = append(got, r.Timestamp)
	}
	if strings.Join(got, ",") != "9,10,100" {
		t.Fatalf("unexpected order: %v", got)
	}
}

func TestDynamoConditionalPut(t *testing.T) {
	d := NewDynamo(newFakeDynamo(), "t")
	ctx := context.Background()

	if err := d.Put(ctx, Record{SessionID: "s1", Timestamp: "1", Temperature: 1}, PutOptions{IfNotExists: true}); err != nil {
		t.Fatalf("put: %v", err)
	}
	err := d.Put(ctx, Record{SessionID: "s1", Timestamp: "1", Temperature: 2}, PutOptions{IfNotExists: true})
	if !errors.Is(err, ErrConditionFailed) {
		t.Fatalf("expected ErrConditionFailed, got %v", err)
	}
}

func TestDynamoScanProjectsAndPages(t *testing.T) {
	fake := newFakeDynamo()
	d := NewDynamo(fake, "t")
	ctx := context.Background()

	for _, r := range []Record{
		{SessionID: "a", Timestamp: "1", SensorName: "A", Temperature: 10, CreatedAt: time.Unix(100, 0)},
		{SessionID: "a", Timestamp: "2", SensorName: "A", Temperature: 11},
		{SessionID: "b", Timestamp: "1", SensorName: "B", Temperature: 12, SessionStartTime: "1"},
	} {
		if err := d.Put(ctx, r, PutOptions{}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	page, err := d.Scan(ctx, 2, nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(page.Records) != 2 || page.LastKey == nil {
		t.Fatalf("expected a partial first page, got %d rows key=%q", len(page.Records), page.LastKey)
	}
	if got := *fake.scans[0].ProjectionExpression; got != listProjection {
		t.Fatalf("unexpected projection %q", got)
	}
	if page.Records[0].Temperature != 0 {
		t.Fatalf("temperature should not be projected")
	}
	if !page.Records[0].CreatedAt.Equal(time.Unix(100, 0)) {
		t.Fatalf("expected createdAt to survive projection, got %v", page.Records[0].CreatedAt)
	}

	page2, err := d.Scan(ctx, 2, page.LastKey)
	if err != nil {
		t.Fatalf("scan page 2: %v", err)
	}
	if len(page2.Records) != 1 || page2.Records[0].SessionID != "b" || page2.LastKey != nil {
		t.Fatalf("unexpected second page: %+v", page2)
	}
	if page2.Records[0].SessionStartTime != "1" {
		t.Fatalf("expected sessionStartTime, got %q", page2.Records[0].SessionStartTime)
	}
}

func TestDynamoScanRejectsForeignStartKey(t *testing.T) {
	fake := newFakeDynamo()
	d := NewDynamo(fake, "t")
	if _, err := d.Scan(context.Background(), 5, []byte(`{"foo":1}`)); !errors.Is(err, ErrInvalidStartKey) {
		t.Fatalf("expected ErrInvalidStartKey, got %v", err)
	}
	if len(fake.scans) != 0 {
		t.Fatalf("no scan should be issued for a bad key")
	}
}

func TestDynamoScanPropagatesClientError(t *testing.T) {
	fake := newFakeDynamo()
	fake.scanErr = errors.New("ProvisionedThroughputExceededException")
	d := NewDynamo(fake, "t")
	if _, err := d.Scan(context.Background(), 5, nil); err == nil || !strings.Contains(err.Error(), "Throughput") {
		t.Fatalf("expected client error, got %v", err)
	}
}
