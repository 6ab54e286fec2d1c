package relational

import (
	"context"

	"groundedtheory.dev/core/internal/model"
)

type ProjectStore interface {
	Create(ctx context.Context, p model.Project) (model.Project, error)
	GetByID(ctx context.Context, id string) (model.Project, error)
	Delete(ctx context.Context, id string) error
}

type InterviewStore interface {
	Create(ctx context.Context, i model.Interview) (model.Interview, error)
	GetByID(ctx context.Context, id string) (model.Interview, error)
	SetStatus(ctx context.Context, id string, status model.InterviewStatus) error
	ListByProject(ctx context.Context, projectID string) ([]model.Interview, error)
}

type FragmentStore interface {
	CreateBatch(ctx context.Context, fragments []model.Fragment) error
	ListByInterview(ctx context.Context, interviewID string) ([]model.Fragment, error)
	ListUnembedded(ctx context.Context, interviewID string) ([]model.Fragment, error)
	MarkEmbeddingSynced(ctx context.Context, fragmentIDs []string) error
}

type CodeStore interface {
	GetOrCreate(ctx context.Context, projectID, label, definition, createdBy string) (model.Code, error)
	GetByID(ctx context.Context, id string) (model.Code, error)
	ListByProject(ctx context.Context, projectID string) ([]model.Code, error)
	SetCategory(ctx context.Context, codeID string, categoryID *string) error
}

type CodeFragmentLinkStore interface {
	CreateBatch(ctx context.Context, links []model.CodeFragmentLink) (int, error)
	ListByFragment(ctx context.Context, fragmentID string) ([]model.CodeFragmentLink, error)
	ListByCode(ctx context.Context, codeID string) ([]model.CodeFragmentLink, error)
}

type CategoryStore interface {
	Create(ctx context.Context, c model.Category) (model.Category, error)
	GetByID(ctx context.Context, id string) (model.Category, error)
	ListByProject(ctx context.Context, projectID string) ([]model.Category, error)
	SetCentral(ctx context.Context, categoryID string, isCentral bool) error
}

type TheoryStore interface {
	Create(ctx context.Context, t model.Theory) (model.Theory, error)
	GetByID(ctx context.Context, id string) (model.Theory, error)
	GetLatestByProject(ctx context.Context, projectID string) (model.Theory, error)
	ListByProject(ctx context.Context, projectID string) ([]model.Theory, error)
}
