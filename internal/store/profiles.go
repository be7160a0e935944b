package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redactd/redactd/internal/profile"
)

// ListProfiles returns every operator-defined compliance profile. The
// entity_types column is JSONB; NULL means "all stage-2 defaults".
func (s *Store) ListProfiles(ctx context.Context) ([]profile.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, stage1_enabled, stage2_enabled, COALESCE(entity_types, 'null'::jsonb)
		FROM compliance_profiles
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("ListProfiles: %w", err)
	}
	defer rows.Close()

	var profiles []profile.Profile
	for rows.Next() {
		var (
			p        profile.Profile
			rawTypes json.RawMessage
		)
		if err := rows.Scan(&p.Name, &p.Stage1, &p.Stage2, &rawTypes); err != nil {
			return nil, fmt.Errorf("ListProfiles: %w", err)
		}
		if string(rawTypes) != "null" {
			if err := json.Unmarshal(rawTypes, &p.EntityTypes); err != nil {
				return nil, fmt.Errorf("ListProfiles: entity_types for %q: %w", p.Name, err)
			}
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListProfiles: %w", err)
	}
	return profiles, nil
}
