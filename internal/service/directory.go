package service

import (
	"sort"
	"strings"

	"github.com/versehub/community-api/internal/models"
)

// BuildDirectory derives the directory projection: one entry per identity
// with the set of its effective role names, most privileged first, and
// whether a pending, unexpired invitation exists for its email.
func BuildDirectory(identities []*models.Identity, grants []models.RoleGrant, pendingEmails []string) []*models.UserDirectoryEntry {
	rolesByUser := make(map[string]map[string]int, len(identities))
	for _, g := range grants {
		set, ok := rolesByUser[g.UserID]
		if !ok {
			set = make(map[string]int)
			rolesByUser[g.UserID] = set
		}
		set[g.RoleName] = g.RoleLevel
	}

	pending := make(map[string]struct{}, len(pendingEmails))
	for _, email := range pendingEmails {
		pending[strings.ToLower(email)] = struct{}{}
	}

	entries := make([]*models.UserDirectoryEntry, 0, len(identities))
	for _, identity := range identities {
		levels := rolesByUser[identity.ID]
		roles := make([]string, 0, len(levels))
		for name := range levels {
			roles = append(roles, name)
		}
		sort.Slice(roles, func(i, j int) bool {
			if levels[roles[i]] != levels[roles[j]] {
				return levels[roles[i]] > levels[roles[j]]
			}
			return roles[i] < roles[j]
		})

		_, hasPending := pending[strings.ToLower(identity.Email)]

		entries = append(entries, &models.UserDirectoryEntry{
			ID:                   identity.ID,
			Email:                identity.Email,
			Metadata:             identity.Metadata,
			CreatedAt:            identity.CreatedAt,
			LastSignInAt:         identity.LastSignInAt,
			ConfirmedAt:          identity.ConfirmedAt,
			IsActive:             isActive(identity.Metadata),
			Roles:                roles,
			HasPendingInvitation: hasPending,
		})
	}
	return entries
}

// isActive is true unless metadata explicitly marks the account inactive
func isActive(metadata map[string]any) bool {
	switch v := metadata[models.MetadataIsActive].(type) {
	case bool:
		return v
	case string:
		return !strings.EqualFold(v, "false")
	default:
		return true
	}
}
