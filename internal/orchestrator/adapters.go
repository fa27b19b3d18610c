package orchestrator

import (
	"context"

	"github.com/google/uuid"

	"expertmarket/marketplace-backend/internal/escrow"
	"expertmarket/marketplace-backend/internal/projects"
)

// projectSource adapts the project service to the narrow read interface the
// escrow ledger depends on.
type projectSource struct {
	projects projects.Service
}

// NewProjectSource exposes project ownership data to the escrow ledger.
func NewProjectSource(svc projects.Service) escrow.ProjectSource {
	return &projectSource{projects: svc}
}

func (s *projectSource) ProjectInfo(ctx context.Context, projectID uuid.UUID) (*escrow.ProjectInfo, error) {
	project, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &escrow.ProjectInfo{
		OwnerID:          project.OwnerID,
		SelectedExpertID: project.SelectedExpertID,
		Title:            project.Title,
	}, nil
}
