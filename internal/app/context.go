package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"veritrack/internal/config"
	"veritrack/internal/domain"
	"veritrack/internal/repo"
)

// ResolveTenantAndConfig picks the active tenant and ensures a tenant +
// config exist in DB, seeding defaults if missing. It prefers overrides,
// then single-tenant DB. If the tenant does not exist, it is created on the
// fly.
func ResolveTenantAndConfig(ctx context.Context, workspace, tenantOverride, actorID string, r repo.Repo) (string, *config.Config, error) {
	tenantID := tenantOverride
	if tenantID == "" {
		if t, err := r.SingleTenant(ctx); err == nil {
			tenantID = t.ID
		} else {
			return "", nil, fmt.Errorf("tenant not specified; use --tenant")
		}
	}
	seedCfg := config.Default(tenantID)

	if _, err := r.GetTenant(ctx, tenantID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := createTenant(ctx, r, tenantID, seedCfg); err != nil {
			return "", nil, err
		}
	}
	cfg, err := r.GetTenantConfig(ctx, tenantID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if err := r.UpsertTenantConfig(ctx, tenantID, seedCfg); err != nil {
				return "", nil, fmt.Errorf("seed tenant config: %w", err)
			}
			cfg = seedCfg
		} else {
			return "", nil, err
		}
	}
	cfg.Tenant.ID = tenantID
	return tenantID, cfg, nil
}

// createTenant inserts a minimal tenant footprint with the catalog roles
// from the seed config.
func createTenant(ctx context.Context, r repo.Repo, tenantID string, seedCfg *config.Config) error {
	if seedCfg == nil {
		seedCfg = config.Default(tenantID)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	t := domain.Tenant{
		ID:        tenantID,
		Name:      tenantID,
		Status:    "active",
		CreatedAt: now,
	}
	if err := r.InsertTenant(ctx, tx, t); err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	for roleID, rc := range seedCfg.Roles.Catalog {
		if err := r.InsertRole(ctx, tx, roleID, rc.Description); err != nil {
			return fmt.Errorf("seed role %s: %w", roleID, err)
		}
	}
	if err := r.UpsertTenantConfigTx(ctx, tx, tenantID, seedCfg); err != nil {
		return fmt.Errorf("insert tenant config: %w", err)
	}
	return tx.Commit()
}
