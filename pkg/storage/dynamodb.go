// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DefaultTable is the table used when none is configured.
const DefaultTable = "codedpad-metadata"

// maxRemoveAttempts bounds how often RemoveFile re-resolves an index after
// its condition lost against a concurrent writer.
const maxRemoveAttempts = 3

// DynamoDBClient defines the DynamoDB operations used by the metadata store.
type DynamoDBClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoDBStorage implements MetadataStore with one item per code, holding
// the descriptors in a list attribute named "files".
type DynamoDBStorage struct {
	client DynamoDBClient
	table  string
}

// NewDynamoDBStorage creates a metadata store on table. A non-empty
// endpoint overrides the service endpoint, e.g. for DynamoDB Local.
func NewDynamoDBStorage(cfg aws.Config, table, endpoint string) *DynamoDBStorage {
	if table == "" {
		table = DefaultTable
	}
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &DynamoDBStorage{client: client, table: table}
}

func (s *DynamoDBStorage) key(code string) map[string]dbtypes.AttributeValue {
	return map[string]dbtypes.AttributeValue{
		"code": &dbtypes.AttributeValueMemberS{Value: code},
	}
}

// AppendFiles implements the MetadataStore interface with list_append, so
// the item is created and extended in a single write.
func (s *DynamoDBStorage) AppendFiles(ctx context.Context, code string, files []FileDescriptor) (*NamespaceRecord, error) {
	if len(files) == 0 {
		return nil, errors.New("no files to append")
	}
	newFiles, err := encodeFiles(files)
	if err != nil {
		return nil, err
	}
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.table),
		Key:              s.key(code),
		UpdateExpression: aws.String("SET #files = list_append(if_not_exists(#files, :empty), :new)"),
		ExpressionAttributeNames: map[string]string{
			"#files": "files",
		},
		ExpressionAttributeValues: map[string]dbtypes.AttributeValue{
			":empty": &dbtypes.AttributeValueMemberL{Value: []dbtypes.AttributeValue{}},
			":new":   newFiles,
		},
		ReturnValues: dbtypes.ReturnValueAllNew,
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb: append files: %w", err)
	}
	return decodeItem(code, out.Attributes)
}

// ListFiles implements the MetadataStore interface.
func (s *DynamoDBStorage) ListFiles(ctx context.Context, code string) (*NamespaceRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.key(code),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb: get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	return decodeItem(code, out.Item)
}

// RemoveFileAt implements the MetadataStore interface.
func (s *DynamoDBStorage) RemoveFileAt(ctx context.Context, code string, index int) (*NamespaceRecord, error) {
	if index < 0 {
		return nil, ErrNotFound
	}
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 s.key(code),
		UpdateExpression:    aws.String(fmt.Sprintf("REMOVE #files[%d]", index)),
		ConditionExpression: aws.String(fmt.Sprintf("attribute_exists(#files[%d])", index)),
		ExpressionAttributeNames: map[string]string{
			"#files": "files",
		},
		ReturnValues: dbtypes.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("dynamodb: remove file: %w", err)
	}
	return decodeItem(code, out.Attributes)
}

// RemoveFile implements the MetadataStore interface. DynamoDB can only
// remove list elements by position, so the position is resolved from a
// consistent read and the removal is conditioned on the element at that
// position still carrying key.
func (s *DynamoDBStorage) RemoveFile(ctx context.Context, code, key string) (*NamespaceRecord, error) {
	for attempt := 0; attempt < maxRemoveAttempts; attempt++ {
		rec, err := s.ListFiles(ctx, code)
		if err != nil {
			return nil, err
		}
		index := indexOfKey(rec.Files, key)
		if index < 0 {
			return nil, ErrNotFound
		}

		out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:           aws.String(s.table),
			Key:                 s.key(code),
			UpdateExpression:    aws.String(fmt.Sprintf("REMOVE #files[%d]", index)),
			ConditionExpression: aws.String(fmt.Sprintf("#files[%d].#key = :key", index)),
			ExpressionAttributeNames: map[string]string{
				"#files": "files",
				"#key":   "key",
			},
			ExpressionAttributeValues: map[string]dbtypes.AttributeValue{
				":key": &dbtypes.AttributeValueMemberS{Value: key},
			},
			ReturnValues: dbtypes.ReturnValueAllNew,
		})
		if err == nil {
			return decodeItem(code, out.Attributes)
		}
		if !isConditionFailed(err) {
			return nil, fmt.Errorf("dynamodb: remove file: %w", err)
		}
	}
	return nil, ErrConflict
}

// DeleteRecord implements the MetadataStore interface.
func (s *DynamoDBStorage) DeleteRecord(ctx context.Context, code string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       s.key(code),
	})
	if err != nil {
		return fmt.Errorf("dynamodb: delete item: %w", err)
	}
	return nil
}

// Close implements the MetadataStore interface. The SDK client holds no
// resources that need releasing.
func (s *DynamoDBStorage) Close() error {
	return nil
}

func isConditionFailed(err error) bool {
	var ccf *dbtypes.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// recordItem is the stored shape of a NamespaceRecord.
type recordItem struct {
	Code  string           `dynamodbav:"code"`
	Files []FileDescriptor `dynamodbav:"files"`
}

func encodeFiles(files []FileDescriptor) (*dbtypes.AttributeValueMemberL, error) {
	list, err := attributevalue.MarshalList(files)
	if err != nil {
		return nil, fmt.Errorf("dynamodb: encode files: %w", err)
	}
	return &dbtypes.AttributeValueMemberL{Value: list}, nil
}

func decodeItem(code string, attrs map[string]dbtypes.AttributeValue) (*NamespaceRecord, error) {
	var it recordItem
	if err := attributevalue.UnmarshalMap(attrs, &it); err != nil {
		return nil, fmt.Errorf("dynamodb: decode item: %w", err)
	}
	if it.Files == nil {
		it.Files = []FileDescriptor{}
	}
	return &NamespaceRecord{Code: code, Files: it.Files}, nil
}
