package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"rag-chat/internal/domain"
)

const (
	skMeta         = "META#"
	skPrefixMsg    = "MSG#"
	gsiUserThreads = "GSI1"
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Client stores threads and messages in a single DynamoDB table.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
	newID     func() string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now, newID: newID}, nil
}

func threadPK(threadID string) string {
	return "THREAD#" + threadID
}

func userPK(userID string) string {
	return "USER#" + userID
}

// threadGSISK sorts a user's threads by creation time, ties broken by id.
func threadGSISK(t domain.Thread) string {
	return "THREAD#" + t.CreatedAt.UTC().Format(time.RFC3339Nano) + "#" + t.ID
}

// msgSK pads order so that lexical order matches numeric order.
func msgSK(order int) string {
	return fmt.Sprintf("%s%010d", skPrefixMsg, order)
}

func (c *Client) metaKey(threadID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: threadPK(threadID)},
		"SK": &types.AttributeValueMemberS{Value: skMeta},
	}
}

// CreateThread writes thread metadata. ID and CreatedAt are assigned when empty.
func (c *Client) CreateThread(ctx context.Context, t domain.Thread) (domain.Thread, error) {
	if t.ID == "" {
		t.ID = c.newID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = c.now().UTC()
	}
	if t.Status == "" {
		t.Status = domain.ThreadActive
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                threadItem(t),
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return domain.Thread{}, fmt.Errorf("repository: CreateThread: %w", err)
	}
	return t, nil
}

// GetThread returns domain.ErrNotFound when the thread does not exist.
func (c *Client) GetThread(ctx context.Context, threadID string) (domain.Thread, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            c.metaKey(threadID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Thread{}, fmt.Errorf("repository: GetThread get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Thread{}, domain.ErrNotFound
	}
	t, err := itemToThread(out.Item)
	if err != nil {
		return domain.Thread{}, fmt.Errorf("repository: GetThread decode: %w", err)
	}
	return t, nil
}

// ListThreads returns the user's threads, newest first.
func (c *Client) ListThreads(ctx context.Context, userID string, req domain.PageRequest) (domain.Page[domain.Thread], error) {
	req = req.Normalize()
	start, err := decodeCursor(req.Cursor)
	if err != nil {
		return domain.Page[domain.Thread]{}, err
	}
	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		IndexName:              aws.String(gsiUserThreads),
		KeyConditionExpression: aws.String("GSI1PK = :u AND begins_with(GSI1SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u":      &types.AttributeValueMemberS{Value: userPK(userID)},
			":prefix": &types.AttributeValueMemberS{Value: "THREAD#"},
		},
		ScanIndexForward:  aws.Bool(false),
		Limit:             aws.Int32(int32(req.NumItems)),
		ExclusiveStartKey: start,
	})
	if err != nil {
		return domain.Page[domain.Thread]{}, fmt.Errorf("repository: ListThreads query: %w", err)
	}

	threads := make([]domain.Thread, 0, len(out.Items))
	for _, item := range out.Items {
		t, err := itemToThread(item)
		if err != nil {
			return domain.Page[domain.Thread]{}, fmt.Errorf("repository: ListThreads decode: %w", err)
		}
		threads = append(threads, t)
	}
	return pageFrom(threads, out.LastEvaluatedKey)
}

// UpdateThreadTitle sets a new title on an existing thread.
func (c *Client) UpdateThreadTitle(ctx context.Context, threadID, title string) error {
	return c.updateThread(ctx, "UpdateThreadTitle", threadID, "SET title = :v", &types.AttributeValueMemberS{Value: title})
}

// SetThreadStatus moves a thread between active and archived.
func (c *Client) SetThreadStatus(ctx context.Context, threadID string, status domain.ThreadStatus) error {
	return c.updateThread(ctx, "SetThreadStatus", threadID, "SET #status = :v", &types.AttributeValueMemberS{Value: string(status)})
}

func (c *Client) updateThread(ctx context.Context, op, threadID, expr string, v types.AttributeValue) error {
	in := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(c.tableName),
		Key:                       c.metaKey(threadID),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": v},
	}
	if strings.Contains(expr, "#status") {
		in.ExpressionAttributeNames = map[string]string{"#status": "status"}
	}
	if _, err := c.api.UpdateItem(ctx, in); err != nil {
		if isConditionFailed(err) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("repository: %s: %w", op, err)
	}
	return nil
}

// AppendMessage allocates the next order on the thread and stores msg under it.
func (c *Client) AppendMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	out, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 c.metaKey(msg.ThreadID),
		UpdateExpression:    aws.String("ADD nextOrder :one"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return domain.Message{}, domain.ErrNotFound
		}
		return domain.Message{}, fmt.Errorf("repository: AppendMessage allocate order: %w", err)
	}
	next, err := intAttr(out.Attributes, "nextOrder")
	if err != nil {
		return domain.Message{}, fmt.Errorf("repository: AppendMessage decode order: %w", err)
	}

	msg.Order = next - 1
	if msg.ID == "" {
		msg.ID = c.newID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = c.now().UTC()
	}
	item, err := messageItem(msg)
	if err != nil {
		return domain.Message{}, fmt.Errorf("repository: AppendMessage encode: %w", err)
	}
	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("repository: AppendMessage: %w", err)
	}
	return msg, nil
}

// UpdateMessage rewrites the mutable fields of a stored message.
func (c *Client) UpdateMessage(ctx context.Context, msg domain.Message) error {
	used, err := json.Marshal(msg.ContextUsed)
	if err != nil {
		return fmt.Errorf("repository: UpdateMessage encode context: %w", err)
	}
	_, err = c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: threadPK(msg.ThreadID)},
			"SK": &types.AttributeValueMemberS{Value: msgSK(msg.Order)},
		},
		UpdateExpression:         aws.String("SET #text = :text, streaming = :streaming, #status = :status, contextUsed = :ctx"),
		ConditionExpression:      aws.String("attribute_exists(PK)"),
		ExpressionAttributeNames: map[string]string{"#text": "text", "#status": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":text":      &types.AttributeValueMemberS{Value: msg.Text},
			":streaming": &types.AttributeValueMemberBOOL{Value: msg.Streaming},
			":status":    &types.AttributeValueMemberS{Value: string(msg.Status)},
			":ctx":       &types.AttributeValueMemberS{Value: string(used)},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("repository: UpdateMessage: %w", err)
	}
	return nil
}

// ListMessages returns a thread's messages, highest order first.
func (c *Client) ListMessages(ctx context.Context, threadID string, req domain.PageRequest) (domain.Page[domain.Message], error) {
	req = req.Normalize()
	start, err := decodeCursor(req.Cursor)
	if err != nil {
		return domain.Page[domain.Message]{}, err
	}
	out, err := c.queryMessages(ctx, threadID, int32(req.NumItems), start)
	if err != nil {
		return domain.Page[domain.Message]{}, fmt.Errorf("repository: ListMessages query: %w", err)
	}
	msgs, err := itemsToMessages(out.Items)
	if err != nil {
		return domain.Page[domain.Message]{}, fmt.Errorf("repository: ListMessages decode: %w", err)
	}
	return pageFrom(msgs, out.LastEvaluatedKey)
}

// RecentMessages returns up to limit of the latest messages in chronological order.
func (c *Client) RecentMessages(ctx context.Context, threadID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	out, err := c.queryMessages(ctx, threadID, int32(limit), nil)
	if err != nil {
		return nil, fmt.Errorf("repository: RecentMessages query: %w", err)
	}
	msgs, err := itemsToMessages(out.Items)
	if err != nil {
		return nil, fmt.Errorf("repository: RecentMessages decode: %w", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (c *Client) queryMessages(ctx context.Context, threadID string, limit int32, start map[string]types.AttributeValue) (*dynamodb.QueryOutput, error) {
	return c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: threadPK(threadID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		ScanIndexForward:  aws.Bool(false),
		Limit:             aws.Int32(limit),
		ExclusiveStartKey: start,
	})
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func pageFrom[T any](items []T, last map[string]types.AttributeValue) (domain.Page[T], error) {
	cursor, err := encodeCursor(last)
	if err != nil {
		return domain.Page[T]{}, err
	}
	return domain.Page[T]{Items: items, ContinueCursor: cursor, IsDone: cursor == ""}, nil
}

func threadItem(t domain.Thread) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: threadPK(t.ID)},
		"SK":        &types.AttributeValueMemberS{Value: skMeta},
		"GSI1PK":    &types.AttributeValueMemberS{Value: userPK(t.UserID)},
		"GSI1SK":    &types.AttributeValueMemberS{Value: threadGSISK(t)},
		"threadId":  &types.AttributeValueMemberS{Value: t.ID},
		"title":     &types.AttributeValueMemberS{Value: t.Title},
		"summary":   &types.AttributeValueMemberS{Value: t.Summary},
		"status":    &types.AttributeValueMemberS{Value: string(t.Status)},
		"userId":    &types.AttributeValueMemberS{Value: t.UserID},
		"createdAt": &types.AttributeValueMemberN{Value: strconv.FormatInt(t.CreatedAt.UnixMilli(), 10)},
		"nextOrder": &types.AttributeValueMemberN{Value: "0"},
	}
}

func itemToThread(item map[string]types.AttributeValue) (domain.Thread, error) {
	id, err := strAttr(item, "threadId")
	if err != nil {
		return domain.Thread{}, err
	}
	status, err := strAttr(item, "status")
	if err != nil {
		return domain.Thread{}, err
	}
	created, err := int64Attr(item, "createdAt")
	if err != nil {
		return domain.Thread{}, err
	}
	title, _ := strAttr(item, "title") // allow empty
	summary, _ := strAttr(item, "summary")
	userID, _ := strAttr(item, "userId")
	return domain.Thread{
		ID:        id,
		Title:     title,
		Summary:   summary,
		Status:    domain.ThreadStatus(status),
		UserID:    userID,
		CreatedAt: time.UnixMilli(created).UTC(),
	}, nil
}

func messageItem(msg domain.Message) (map[string]types.AttributeValue, error) {
	used, err := json.Marshal(msg.ContextUsed)
	if err != nil {
		return nil, err
	}
	return map[string]types.AttributeValue{
		"PK":          &types.AttributeValueMemberS{Value: threadPK(msg.ThreadID)},
		"SK":          &types.AttributeValueMemberS{Value: msgSK(msg.Order)},
		"messageId":   &types.AttributeValueMemberS{Value: msg.ID},
		"threadId":    &types.AttributeValueMemberS{Value: msg.ThreadID},
		"role":        &types.AttributeValueMemberS{Value: string(msg.Role)},
		"text":        &types.AttributeValueMemberS{Value: msg.Text},
		"streaming":   &types.AttributeValueMemberBOOL{Value: msg.Streaming},
		"status":      &types.AttributeValueMemberS{Value: string(msg.Status)},
		"order":       &types.AttributeValueMemberN{Value: strconv.Itoa(msg.Order)},
		"createdAt":   &types.AttributeValueMemberN{Value: strconv.FormatInt(msg.CreatedAt.UnixMilli(), 10)},
		"contextUsed": &types.AttributeValueMemberS{Value: string(used)},
	}, nil
}

func itemsToMessages(items []map[string]types.AttributeValue) ([]domain.Message, error) {
	msgs := make([]domain.Message, 0, len(items))
	for _, item := range items {
		m, err := itemToMessage(item)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func itemToMessage(item map[string]types.AttributeValue) (domain.Message, error) {
	id, err := strAttr(item, "messageId")
	if err != nil {
		return domain.Message{}, err
	}
	threadID, err := strAttr(item, "threadId")
	if err != nil {
		return domain.Message{}, err
	}
	text, err := strAttr(item, "text")
	if err != nil {
		return domain.Message{}, err
	}
	order, err := intAttr(item, "order")
	if err != nil {
		return domain.Message{}, err
	}
	created, err := int64Attr(item, "createdAt")
	if err != nil {
		return domain.Message{}, err
	}
	roleStr, _ := strAttr(item, "role") // allow empty
	role, err := domain.ParseRole(roleStr)
	if err != nil {
		return domain.Message{}, err
	}
	status, _ := strAttr(item, "status")
	msg := domain.Message{
		ID:        id,
		ThreadID:  threadID,
		Role:      role,
		Text:      text,
		Streaming: boolAttr(item, "streaming"),
		Status:    domain.MessageStatus(status),
		Order:     order,
		CreatedAt: time.UnixMilli(created).UTC(),
	}
	if raw, _ := strAttr(item, "contextUsed"); raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &msg.ContextUsed); err != nil {
			return domain.Message{}, fmt.Errorf("repository: decode contextUsed: %w", err)
		}
	}
	return msg, nil
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

func int64Attr(item map[string]types.AttributeValue, key string) (int64, error) {
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

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	n, err := int64Attr(item, key)
	return int(n), err
}

func boolAttr(item map[string]types.AttributeValue, key string) bool {
	b, ok := item[key].(*types.AttributeValueMemberBOOL)
	return ok && b.Value
}
