package incident

import (
	"github.com/pyama86/dlpwatch/domain/entity"
)

// Row は表示用に装飾したインシデント
type Row struct {
	Incident       entity.Incident
	Severity       entity.Severity
	Badge          entity.ActionBadge
	When           string
	InvestigateURL string
	Selected       bool
}

type Presenter struct {
	classifier *Classifier
	formatter  *TimeFormatter
	linker     *Linker
}

func NewPresenter(classifier *Classifier, formatter *TimeFormatter, linker *Linker) *Presenter {
	if classifier == nil {
		classifier = DefaultClassifier()
	}
	if formatter == nil {
		formatter = NewTimeFormatter("und", "UTC")
	}
	return &Presenter{
		classifier: classifier,
		formatter:  formatter,
		linker:     linker,
	}
}

func (p *Presenter) Row(inc entity.Incident, selected bool) Row {
	return Row{
		Incident:       inc,
		Severity:       p.classifier.SeverityOf(inc.IncidentType),
		Badge:          ActionBadgeOf(inc.Action),
		When:           p.formatter.Format(inc.Timestamp),
		InvestigateURL: p.linker.InvestigateURL(inc.ID),
		Selected:       selected,
	}
}

func (p *Presenter) Rows(store *Store) []Row {
	view := store.View()
	rows := make([]Row, 0, len(view))
	for _, inc := range view {
		rows = append(rows, p.Row(inc, store.IsSelected(inc.ID)))
	}
	return rows
}

func (p *Presenter) SeverityOf(incidentType string) entity.Severity {
	return p.classifier.SeverityOf(incidentType)
}
