package service

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/versehub/community-api/internal/models"
	"github.com/versehub/community-api/internal/repository"
)

// directoryService is the concrete implementation of DirectoryService
type directoryService struct {
	repos     *repository.Repositories
	access    AccessService
	refresher *DirectoryRefresher
	log       zerolog.Logger
}

func newDirectoryService(repos *repository.Repositories, access AccessService, refresher *DirectoryRefresher, log zerolog.Logger) *directoryService {
	return &directoryService{
		repos:     repos,
		access:    access,
		refresher: refresher,
		log:       log.With().Str("service", "directory").Logger(),
	}
}

// GetUsers returns the directory projection to admins. Non-admins get
// ErrAccessDenied, never an empty list.
func (s *directoryService) GetUsers(ctx context.Context) ([]*models.UserDirectoryEntry, error) {
	if err := s.access.RequireAdmin(ctx); err != nil {
		return nil, err
	}

	entries, err := s.repos.Directory.List(ctx)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*models.UserDirectoryEntry{}
	}
	return entries, nil
}

// Refresh rebuilds the directory synchronously on admin request
func (s *directoryService) Refresh(ctx context.Context) (int, error) {
	if err := s.access.RequireAdmin(ctx); err != nil {
		return 0, err
	}

	n, err := s.refresher.RefreshNow(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Manual directory rebuild failed")
		return 0, err
	}
	s.log.Info().Int("entries", n).Msg("Directory rebuilt on request")
	return n, nil
}
