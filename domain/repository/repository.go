package repository

import (
	"context"

	"github.com/pyama86/dlpwatch/domain/entity"
)

// IncidentSource は上流のインシデントAPI。レスポンスはデコード済みの未型付けJSON
type IncidentSource interface {
	FetchIncidents(context.Context) (any, error)
}

type IncidentArchive interface {
	SaveIncidents(context.Context, []entity.Incident) error
	FindIncident(context.Context, string) (*entity.Incident, error)
}

type Repository interface {
	IncidentSource
	IncidentArchive
}

type RepositoryFacade struct {
	IncidentSource
	IncidentArchive
}

type ReportExporter interface {
	ExportReport(ctx context.Context, title, markdown string) (string, error)
}

type Summarizer interface {
	SummarizeIncidents(ctx context.Context, incidents []entity.Incident) (string, error)
}

func NewRepository(source IncidentSource, archive IncidentArchive) Repository {
	if archive == nil {
		archive = NopArchive{}
	}
	return RepositoryFacade{
		IncidentSource:  source,
		IncidentArchive: archive,
	}
}

// NopArchive はアーカイブが無効な時に使う
type NopArchive struct{}

func (NopArchive) SaveIncidents(context.Context, []entity.Incident) error {
	return nil
}

func (NopArchive) FindIncident(context.Context, string) (*entity.Incident, error) {
	return nil, nil
}
