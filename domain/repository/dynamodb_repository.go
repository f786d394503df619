package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/guregu/dynamo/v2"
	"github.com/pyama86/dlpwatch/domain/entity"
	"github.com/pyama86/dlpwatch/domain/model"
)

// SeverityFunc はアーカイブ時に重要度を付与するための関数
type SeverityFunc func(incidentType string) entity.Severity

func NewDynamoDBRepository(table string, severityOf SeverityFunc) (*DynamoDBRepository, error) {
	if table == "" {
		return nil, fmt.Errorf("dynamodb table name is empty")
	}
	if os.Getenv("DYNAMO_INCIDENTS_TABLE") != "" {
		table = os.Getenv("DYNAMO_INCIDENTS_TABLE")
	}

	var db *dynamo.DB
	if os.Getenv("DYNAMO_LOCAL") != "" {
		cfg, err := config.LoadDefaultConfig(context.TODO(),
			config.WithRegion("dummy"),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "dummy")),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %v", err)
		}
		db = dynamo.New(cfg, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String("http://localhost:8000")
		},
		)

		err = setupDdbSchema(db, table)
		if err != nil {
			return nil, fmt.Errorf("failed to setup schema: %v", err)
		}
	} else {
		cfg, err := config.LoadDefaultConfig(context.TODO())
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %v", err)
		}
		db = dynamo.New(cfg)
	}

	if severityOf == nil {
		severityOf = func(string) entity.Severity { return entity.SeverityLow }
	}
	return &DynamoDBRepository{
		db:         db,
		table:      table,
		severityOf: severityOf,
		now:        time.Now,
	}, nil
}

func setupDdbSchema(db *dynamo.DB, table string) error {
	t := db.Table(table)
	_, err := t.Describe().Run(context.TODO())
	if err != nil {
		input := db.CreateTable(table, model.IncidentRecord{}).
			Provision(10, 10)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		return input.Run(ctx)
	}
	return nil
}

type DynamoDBRepository struct {
	db         *dynamo.DB
	table      string
	severityOf SeverityFunc
	now        func() time.Time
}

// SaveIncidents は取得したスナップショットを BatchWriteItem でまとめて上書き保存する
func (r *DynamoDBRepository) SaveIncidents(ctx context.Context, incidents []entity.Incident) error {
	if len(incidents) == 0 {
		return nil
	}
	archivedAt := r.now().UTC()
	items := make([]any, 0, len(incidents))
	for _, inc := range incidents {
		items = append(items, model.NewIncidentRecord(inc, r.severityOf(inc.IncidentType), archivedAt))
	}
	wrote, err := r.db.Table(r.table).Batch("id").Write().Put(items...).Run(ctx)
	if err != nil {
		return fmt.Errorf("batch write incidents (%d/%d written): %w", wrote, len(items), err)
	}
	return nil
}

func (r *DynamoDBRepository) FindIncident(ctx context.Context, id string) (*entity.Incident, error) {
	record := model.IncidentRecord{}
	err := r.db.Table(r.table).Get("id", id).One(ctx, &record)
	if err != nil {
		if errors.Is(err, dynamo.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	inc := record.Incident()
	return &inc, nil
}
