package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client used by Dynamo.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// listProjection is what the session lister needs from a scan.
const listProjection = "sessionId, sessionStartTime, sensorName, createdAt"

type dynamoItem struct {
	SessionID        string  `dynamodbav:"sessionId"`
	Timestamp        string  `dynamodbav:"timestamp"`
	SensorName       string  `dynamodbav:"sensorName,omitempty"`
	Temperature      float64 `dynamodbav:"temperature"`
	RateOfRise       float64 `dynamodbav:"rateOfRise"`
	Unit             string  `dynamodbav:"unit,omitempty"`
	SessionStartTime string  `dynamodbav:"sessionStartTime,omitempty"`
	CreatedAt        string  `dynamodbav:"createdAt,omitempty"`
	TTL              int64   `dynamodbav:"ttl,omitempty"`
}

func itemFromRecord(rec Record) dynamoItem {
	item := dynamoItem{
		SessionID:        rec.SessionID,
		Timestamp:        rec.Timestamp,
		SensorName:       rec.SensorName,
		Temperature:      rec.Temperature,
		RateOfRise:       rec.RateOfRise,
		Unit:             rec.Unit,
		SessionStartTime: rec.SessionStartTime,
		TTL:              rec.ExpiresAt,
	}
	if !rec.CreatedAt.IsZero() {
		item.CreatedAt = rec.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return item
}

func (i dynamoItem) record() Record {
	rec := Record{
		SessionID:        i.SessionID,
		Timestamp:        i.Timestamp,
		SensorName:       i.SensorName,
		Temperature:      i.Temperature,
		RateOfRise:       i.RateOfRise,
		Unit:             i.Unit,
		SessionStartTime: i.SessionStartTime,
		ExpiresAt:        i.TTL,
	}
	if i.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, i.CreatedAt); err == nil {
			rec.CreatedAt = t.UTC()
		}
	}
	return rec
}

// Dynamo stores readings in a DynamoDB table with partition key sessionId
// and sort key timestamp. Expiry is left to the table's native TTL on "ttl".
type Dynamo struct {
	client DynamoAPI
	table  string
}

func NewDynamo(client DynamoAPI, table string) *Dynamo {
	return &Dynamo{client: client, table: table}
}

// NewDynamoClient builds a client from the default AWS credential chain.
// A non-empty endpoint points it at DynamoDB Local or another compatible
// service.
func NewDynamoClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func (d *Dynamo) Table() string { return d.table }

func (d *Dynamo) Put(ctx context.Context, rec Record, opts PutOptions) error {
	av, err := attributevalue.MarshalMap(itemFromRecord(rec))
	if err != nil {
		return fmt.Errorf("error marshalling reading for dynamo: %w", err)
	}
	in := &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      av,
	}
	if opts.IfNotExists {
		in.ConditionExpression = aws.String("attribute_not_exists(sessionId)")
	}
	if _, err := d.client.PutItem(ctx, in); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrConditionFailed
		}
		return err
	}
	return nil
}

func (d *Dynamo) Query(ctx context.Context, sessionID string) ([]Record, error) {
	p := dynamodb.NewQueryPaginator(d.client, &dynamodb.QueryInput{
		TableName:              aws.String(d.table),
		KeyConditionExpression: aws.String("sessionId = :sessionId"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sessionId": &types.AttributeValueMemberS{Value: sessionID},
		},
		ScanIndexForward: aws.Bool(true),
	})

	var out []Record
	for p.HasMorePages() {
		resp, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var items []dynamoItem
		if err := attributevalue.UnmarshalListOfMaps(resp.Items, &items); err != nil {
			return nil, fmt.Errorf("error unmarshalling dynamo items: %w", err)
		}
		for _, item := range items {
			out = append(out, item.record())
		}
	}
	// The table sorts timestamps as strings; reorder numeric ones by value.
	slices.SortStableFunc(out, func(a, b Record) int {
		return strings.Compare(SortKey(a.Timestamp), SortKey(b.Timestamp))
	})
	return out, nil
}

// Scan returns the projected list attributes only: temperature, unit and
// expiry are left zero.
func (d *Dynamo) Scan(ctx context.Context, limit int, startKey []byte) (ScanPage, error) {
	if limit <= 0 {
		limit = 1
	}
	in := &dynamodb.ScanInput{
		TableName:            aws.String(d.table),
		ProjectionExpression: aws.String(listProjection),
		Limit:                aws.Int32(int32(limit)),
	}
	if len(startKey) > 0 {
		k, err := decodeKey(startKey)
		if err != nil {
			return ScanPage{}, err
		}
		esk, err := attributevalue.MarshalMap(k)
		if err != nil {
			return ScanPage{}, ErrInvalidStartKey
		}
		in.ExclusiveStartKey = esk
	}

	resp, err := d.client.Scan(ctx, in)
	if err != nil {
		return ScanPage{}, err
	}

	var items []dynamoItem
	if err := attributevalue.UnmarshalListOfMaps(resp.Items, &items); err != nil {
		return ScanPage{}, fmt.Errorf("error unmarshalling dynamo items: %w", err)
	}
	page := ScanPage{Records: make([]Record, 0, len(items))}
	for _, item := range items {
		page.Records = append(page.Records, item.record())
	}

	if len(resp.LastEvaluatedKey) > 0 {
		var k Key
		if err := attributevalue.UnmarshalMap(resp.LastEvaluatedKey, &k); err != nil {
			return ScanPage{}, fmt.Errorf("error unmarshalling last evaluated key: %w", err)
		}
		page.LastKey = encodeKey(k)
	}
	return page, nil
}

// EnsureTable creates the readings table with TTL on "ttl" when it does not
// exist yet. Intended for local development against DynamoDB Local.
func EnsureTable(ctx context.Context, client *dynamodb.Client, table string) error {
	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
	if err == nil {
		return nil
	}
	var nf *types.ResourceNotFoundException
	if !errors.As(err, &nf) {
		return err
	}

	_, err = client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("sessionId"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("timestamp"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("sessionId"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("timestamp"), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}

	w := dynamodb.NewTableExistsWaiter(client)
	if err := w.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)}, 2*time.Minute); err != nil {
		return err
	}

	_, err = client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(table),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			AttributeName: aws.String("ttl"),
			Enabled:       aws.Bool(true),
		},
	})
	return err
}
