package service_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/versehub/community-api/internal/models"
	"github.com/versehub/community-api/internal/service"
)

func exportFixture(t *testing.T) (*fixture, *service.Services) {
	t.Helper()
	f := newFixture(t)
	svcs := newServices(f)

	member := f.store.AddIdentity("member@example.com", nil)
	f.store.AddAssignment(member.ID, models.RoleUser, nil, true)
	f.store.AddAssignment(member.ID, models.RoleStaff, nil, true)

	_, err := svcs.Refresher.RefreshNow(context.Background())
	require.NoError(t, err)
	return f, svcs
}

func TestStreamDirectory_NDJSON(t *testing.T) {
	f, svcs := exportFixture(t)

	var buf bytes.Buffer
	n, err := svcs.Export.StreamDirectory(f.adminCtx(), &buf, service.FormatNDJSON)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	lines := 0
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var entry models.UserDirectoryEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestStreamDirectory_JSON(t *testing.T) {
	f, svcs := exportFixture(t)

	var buf bytes.Buffer
	_, err := svcs.Export.StreamDirectory(f.adminCtx(), &buf, service.FormatJSON)
	require.NoError(t, err)

	var entries []models.UserDirectoryEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entries))
	assert.Len(t, entries, 2)
}

func TestStreamDirectory_CSV(t *testing.T) {
	f, svcs := exportFixture(t)

	var buf bytes.Buffer
	_, err := svcs.Export.StreamDirectory(f.adminCtx(), &buf, service.FormatCSV)
	require.NoError(t, err)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "email", records[0][1])

	var roles []string
	for _, r := range records[1:] {
		if r[1] == "member@example.com" {
			roles = append(roles, r[3])
		}
	}
	assert.Equal(t, []string{"staff;user"}, roles)
}

func TestStreamDirectory_Errors(t *testing.T) {
	f, svcs := exportFixture(t)
	member := f.store.AddIdentity("viewer@example.com", nil)

	_, err := svcs.Export.StreamDirectory(as(member.ID), &bytes.Buffer{}, service.FormatJSON)
	assert.ErrorIs(t, err, models.ErrAccessDenied)

	_, err = svcs.Export.StreamDirectory(f.adminCtx(), &bytes.Buffer{}, "xml")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestGetCount(t *testing.T) {
	f, svcs := exportFixture(t)
	f.store.SeedVerses(4)
	ctx := context.Background()

	users, err := svcs.Export.GetCount(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, 2, users)

	verses, err := svcs.Export.GetCount(ctx, "verses")
	require.NoError(t, err)
	assert.Equal(t, 4, verses)

	// Counting must not load the projection
	f.store.SetError("Directory.List", errors.New("directory list not expected"))
	directory, err := svcs.Export.GetCount(ctx, "directory")
	require.NoError(t, err)
	assert.Equal(t, 2, directory)

	_, err = svcs.Export.GetCount(ctx, "jobs")
	assert.ErrorIs(t, err, models.ErrValidation)
}
