package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/versehub/community-api/internal/models"
	"github.com/versehub/community-api/internal/repository"
)

// Export formats
const (
	FormatNDJSON = "ndjson"
	FormatJSON   = "json"
	FormatCSV    = "csv"
)

// flushEvery is how many records are written between flushes
const flushEvery = 100

// exportService is the concrete implementation of ExportService
type exportService struct {
	repos  *repository.Repositories
	access AccessService
	log    zerolog.Logger
}

func newExportService(repos *repository.Repositories, access AccessService, log zerolog.Logger) *exportService {
	return &exportService{
		repos:  repos,
		access: access,
		log:    log.With().Str("service", "export").Logger(),
	}
}

// StreamDirectory writes the directory projection to w in the given format.
// Admin only.
func (s *exportService) StreamDirectory(ctx context.Context, w io.Writer, format string) (int, error) {
	if err := s.access.RequireAdmin(ctx); err != nil {
		return 0, err
	}

	entries, err := s.repos.Directory.List(ctx)
	if err != nil {
		return 0, err
	}

	s.log.Info().Str("format", format).Int("entries", len(entries)).Msg("Starting directory export")

	switch format {
	case FormatNDJSON:
		return writeNDJSON(w, entries)
	case FormatJSON:
		return writeJSON(w, entries)
	case FormatCSV:
		return writeCSV(w, entries)
	default:
		return 0, fmt.Errorf("%w: unsupported format: %s", models.ErrValidation, format)
	}
}

// GetCount returns the number of rows of a resource
func (s *exportService) GetCount(ctx context.Context, resource string) (int, error) {
	switch resource {
	case "users":
		return s.repos.Identity.Count(ctx)
	case "verses":
		return s.repos.Verse.Count(ctx)
	case "directory":
		return s.repos.Directory.Count(ctx)
	default:
		return 0, fmt.Errorf("%w: unknown resource: %s", models.ErrValidation, resource)
	}
}

func writeNDJSON(w io.Writer, entries []*models.UserDirectoryEntry) (int, error) {
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	for i, e := range entries {
		if err := enc.Encode(e); err != nil {
			return i, err
		}
		// Flush periodically for streaming
		if (i+1)%flushEvery == 0 && flusher != nil {
			flusher.Flush()
		}
	}
	return len(entries), nil
}

func writeJSON(w io.Writer, entries []*models.UserDirectoryEntry) (int, error) {
	if _, err := io.WriteString(w, "["); err != nil {
		return 0, err
	}
	for i, e := range entries {
		if i > 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				return i, err
			}
		}
		data, err := json.Marshal(e)
		if err != nil {
			return i, err
		}
		if _, err := w.Write(data); err != nil {
			return i, err
		}
	}
	_, err := io.WriteString(w, "]")
	return len(entries), err
}

func writeCSV(w io.Writer, entries []*models.UserDirectoryEntry) (int, error) {
	writer := csv.NewWriter(w)

	header := []string{"id", "email", "is_active", "roles", "has_pending_invitation", "created_at", "last_sign_in_at", "confirmed_at"}
	if err := writer.Write(header); err != nil {
		return 0, err
	}

	for i, e := range entries {
		record := []string{
			e.ID,
			e.Email,
			strconv.FormatBool(e.IsActive),
			strings.Join(e.Roles, ";"),
			strconv.FormatBool(e.HasPendingInvitation),
			e.CreatedAt.UTC().Format(time.RFC3339),
			formatOptionalTime(e.LastSignInAt),
			formatOptionalTime(e.ConfirmedAt),
		}
		if err := writer.Write(record); err != nil {
			return i, err
		}
	}

	writer.Flush()
	return len(entries), writer.Error()
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
