package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/versehub/community-api/internal/metrics"
	"github.com/versehub/community-api/internal/models"
	"github.com/versehub/community-api/internal/repository"
)

// verseService is the concrete implementation of VerseService
type verseService struct {
	repos   *repository.Repositories
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewVerseService creates a VerseService. m may be nil.
func NewVerseService(repos *repository.Repositories, m *metrics.Metrics, log zerolog.Logger) VerseService {
	return newVerseService(repos, m, log)
}

func newVerseService(repos *repository.Repositories, m *metrics.Metrics, log zerolog.Logger) *verseService {
	return &verseService{
		repos:   repos,
		metrics: m,
		log:     log.With().Str("service", "verse").Logger(),
	}
}

// GetDailyVerse picks a verse the caller has not seen in the current cycle.
// When every verse has been seen the caller's history is cleared and the
// pick is made from the whole catalogue. A concurrent pick of the same verse
// surfaces as ErrConstraintViolation; it is not retried.
func (s *verseService) GetDailyVerse(ctx context.Context) (*models.DailyVerse, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	identity, err := s.repos.Identity.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, models.ErrUnauthenticated
	}

	var (
		verse      *models.Verse
		cycleReset bool
	)
	err = s.repos.WithTx(ctx, func(tx *repository.Repositories) error {
		count, err := tx.Verse.Count(ctx)
		if err != nil {
			return err
		}
		if count == 0 {
			return models.ErrNoVerses
		}

		verse, err = tx.Verse.PickUnseen(ctx, userID)
		if err != nil {
			return err
		}
		if verse == nil {
			if _, err := tx.Verse.ResetHistory(ctx, userID); err != nil {
				return err
			}
			cycleReset = true

			verse, err = tx.Verse.PickAny(ctx)
			if err != nil {
				return err
			}
			if verse == nil {
				return models.ErrNoVerses
			}
		}

		return tx.Verse.RecordShown(ctx, &models.VerseHistory{
			ID:      uuid.New().String(),
			UserID:  userID,
			VerseID: verse.ID,
			ShownAt: time.Now().UTC(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("daily verse: %w", err)
	}

	if cycleReset {
		s.metrics.VerseCycleReset()
		s.log.Info().Str("user_id", userID).Msg("Verse cycle completed, history reset")
	}

	return models.NewDailyVerse(verse, cycleReset), nil
}

// ListVerses returns the catalogue to any signed-in caller
func (s *verseService) ListVerses(ctx context.Context) ([]*models.Verse, error) {
	if _, err := callerID(ctx); err != nil {
		return nil, err
	}
	verses, err := s.repos.Verse.List(ctx)
	if err != nil {
		return nil, err
	}
	if verses == nil {
		verses = []*models.Verse{}
	}
	return verses, nil
}
