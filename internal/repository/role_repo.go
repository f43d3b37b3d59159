package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/versehub/community-api/internal/database"
	"github.com/versehub/community-api/internal/models"
)

// roleCache keeps recently read roles keyed by name and by id.
// Roles are seeded and rarely edited, so a short TTL is enough.
type roleCache struct {
	lru *expirable.LRU[string, models.Role]
}

func newRoleCache(size int, ttl time.Duration) *roleCache {
	if size <= 0 {
		return nil
	}
	return &roleCache{lru: expirable.NewLRU[string, models.Role](size, nil, ttl)}
}

func (c *roleCache) get(key string) (*models.Role, bool) {
	if c == nil {
		return nil, false
	}
	role, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return &role, true
}

func (c *roleCache) put(role *models.Role) {
	if c == nil {
		return
	}
	c.lru.Add("id:"+role.ID, *role)
	c.lru.Add("name:"+role.Name, *role)
}

func (c *roleCache) purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}

// roleRepo is the concrete implementation of RoleRepository
type roleRepo struct {
	db    database.Querier
	cache *roleCache

	// set inside a transaction; Update flags it so the cache is purged again
	// once the transaction ends
	dirty *bool
}

const roleColumns = `id, name, COALESCE(description, ''), level, created_at, updated_at`

// List returns all roles, most privileged first
func (r *roleRepo) List(ctx context.Context) ([]*models.Role, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY level DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*models.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetByID retrieves a role by ID
func (r *roleRepo) GetByID(ctx context.Context, id string) (*models.Role, error) {
	if role, ok := r.cache.get("id:" + id); ok {
		return role, nil
	}
	role, err := scanRole(r.db.QueryRowContext(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
	if role != nil {
		r.cache.put(role)
	}
	return role, err
}

// GetByName retrieves a role by name
func (r *roleRepo) GetByName(ctx context.Context, name string) (*models.Role, error) {
	if role, ok := r.cache.get("name:" + name); ok {
		return role, nil
	}
	role, err := scanRole(r.db.QueryRowContext(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name))
	if role != nil {
		r.cache.put(role)
	}
	return role, err
}

// Update changes the description and/or level of a role
func (r *roleRepo) Update(ctx context.Context, id string, upd models.RoleUpdate) (*models.Role, error) {
	query := `
		UPDATE roles SET
			description = COALESCE($2, description),
			level = COALESCE($3, level),
			updated_at = $4
		WHERE id = $1
		RETURNING ` + roleColumns

	var description sql.NullString
	if upd.Description != nil {
		description = sql.NullString{String: *upd.Description, Valid: true}
	}
	var level sql.NullInt64
	if upd.Level != nil {
		level = sql.NullInt64{Int64: int64(*upd.Level), Valid: true}
	}

	role, err := scanRole(r.db.QueryRowContext(ctx, query, id, description, level, time.Now().UTC()))
	if err != nil {
		return nil, err
	}
	r.cache.purge()
	if r.dirty != nil {
		*r.dirty = true
	}
	return role, nil
}

func scanRole(row rowScanner) (*models.Role, error) {
	var role models.Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.Level, &role.CreatedAt, &role.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}
