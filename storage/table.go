package storage

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
)

// DefaultPartition is the partition key holding board snapshots.
const DefaultPartition = "board"

type tableClient interface {
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	UpsertEntity(ctx context.Context, entity []byte, options *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error)
	CreateTable(ctx context.Context, options *aztables.CreateTableOptions) (aztables.CreateTableResponse, error)
}

// TableStore keeps each key as one entity in an Azure table.
type TableStore struct {
	table     tableClient
	partition string
}

type snapshotEntity struct {
	aztables.Entity
	Snapshot string `json:"Snapshot"`
}

// NewTableStore creates a store for the named table from a storage connection string.
func NewTableStore(connStr, tableName string) (*TableStore, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return newTableStore(svc.NewClient(tableName), DefaultPartition), nil
}

func newTableStore(table tableClient, partition string) *TableStore {
	if partition == "" {
		partition = DefaultPartition
	}
	return &TableStore{table: table, partition: partition}
}

// EnsureTable creates the table, treating an existing table as success.
func (s *TableStore) EnsureTable(ctx context.Context) error {
	if _, err := s.table.CreateTable(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists) {
			return nil
		}
		return err
	}
	return nil
}

func (s *TableStore) Get(ctx context.Context, key string) (string, bool, error) {
	resp, err := s.table.GetEntity(ctx, s.partition, key, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return "", false, nil
		}
		return "", false, err
	}
	var ent snapshotEntity
	if err := sonic.Unmarshal(resp.Value, &ent); err != nil {
		return "", false, err
	}
	return ent.Snapshot, true, nil
}

func (s *TableStore) Set(ctx context.Context, key, value string) error {
	ent := snapshotEntity{
		Entity:   aztables.Entity{PartitionKey: s.partition, RowKey: key},
		Snapshot: value,
	}
	payload, err := sonic.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.table.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}
