package db

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

//go:embed sql/post_automigrate.sql
var postAutoMigrateSQL string

func (p *Pool) autoMigrate(ctx context.Context) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	if err := p.gdb.WithContext(ctx).AutoMigrate(autoMigrateModels()...); err != nil {
		return fmt.Errorf("gorm auto-migrate models: %w", err)
	}

	if err := executeMigrationSQL(ctx, p, "post-auto-migrate", postAutoMigrateSQL); err != nil {
		return err
	}
	return reserveIDs(ctx, p.gdb)
}

// ReservedID is never given to a real load or vehicle. Memo entries use it
// for texts that produced no record.
const ReservedID int64 = 1

// reserveIDs takes id 1 in an empty loads or vehicles table with a deleted,
// archived row, so the sequence hands real ads id 2 onwards.
func reserveIDs(ctx context.Context, gdb *gorm.DB) error {
	epoch := time.Unix(0, 0).UTC()
	rows := []any{
		&Load{Origin: "-", Destination: "-", PublishedAt: epoch, IsArchived: true, IsDeleted: true, DeletedAt: &epoch},
		&Vehicle{Origin: "-", PublishedAt: epoch, IsArchived: true, IsDeleted: true, DeletedAt: &epoch},
	}
	for _, row := range rows {
		var count int64
		if err := gdb.WithContext(ctx).Model(row).Count(&count).Error; err != nil {
			return fmt.Errorf("count %T rows: %w", row, err)
		}
		if count > 0 {
			continue
		}
		if err := gdb.WithContext(ctx).Create(row).Error; err != nil {
			return fmt.Errorf("reserve %T id: %w", row, err)
		}
	}
	return nil
}

// executeMigrationSQL runs each ';'-terminated statement separately; not every
// driver accepts multi-statement Exec.
func executeMigrationSQL(ctx context.Context, p *Pool, label, sqlText string) error {
	for i, stmt := range splitStatements(sqlText) {
		if err := p.gdb.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("execute %s SQL statement %d: %w", label, i+1, err)
		}
	}
	return nil
}

func splitStatements(sqlText string) []string {
	var out []string
	var current strings.Builder
	for _, line := range strings.Split(sqlText, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSuffix(strings.TrimSpace(current.String()), ";")
			if stmt != "" {
				out = append(out, stmt)
			}
			current.Reset()
		}
	}
	if rest := strings.TrimSpace(current.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}
