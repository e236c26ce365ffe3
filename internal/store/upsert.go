package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/JakeFAU/causas-crawler/internal/crawler"
)

// UpsertLitigant creates the litigant or refreshes it, then adds caseIDs to
// the litigant's links for its role. Existing links are kept; IDs of cases
// that are not stored are skipped.
func (s *Store) UpsertLitigant(ctx context.Context, litigant crawler.Litigant, caseIDs []string) (string, error) {
	nationalID := strings.TrimSpace(litigant.NationalID)
	if nationalID == "" {
		return "", &StorageError{Op: "upsert litigant", Err: errors.New("national id is required")}
	}
	table, err := caseLinkTable(litigant.Role)
	if err != nil {
		return "", &StorageError{Op: "upsert litigant", Err: err}
	}
	upsert := s.db.Rebind(`
		INSERT INTO litigants (national_id, name, last_updated)
		VALUES (?, ?, ?)
		ON CONFLICT (national_id) DO UPDATE SET
			name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE litigants.name END,
			last_updated = excluded.last_updated`)
	link := s.db.Rebind(`
		INSERT INTO ` + table + ` (national_id, case_id)
		SELECT CAST(? AS TEXT), case_id FROM cases WHERE case_id = ?
		ON CONFLICT (national_id, case_id) DO NOTHING`)

	err = s.withTx(ctx, "upsert litigant", func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, upsert, nationalID, strings.TrimSpace(litigant.Name), s.now().UTC()); err != nil {
			return fmt.Errorf("litigant %s: %w", nationalID, err)
		}
		for _, caseID := range caseIDs {
			if _, err := tx.ExecContext(ctx, link, nationalID, caseID); err != nil {
				return fmt.Errorf("link case %s: %w", caseID, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return nationalID, nil
}

// UpsertCase inserts the case or overwrites its offense and filing date.
func (s *Store) UpsertCase(ctx context.Context, c crawler.Case) (string, error) {
	query := s.db.Rebind(`
		INSERT INTO cases (case_id, offense, filed_at)
		VALUES (?, ?, ?)
		ON CONFLICT (case_id) DO UPDATE SET
			offense = excluded.offense,
			filed_at = excluded.filed_at`)
	if _, err := s.db.ExecContext(ctx, query, c.ID, strings.TrimSpace(c.Offense), timestamp(c.FiledAt)); err != nil {
		return "", &StorageError{Op: "upsert case", Err: fmt.Errorf("case %s: %w", c.ID, err)}
	}
	return c.ID, nil
}

// BulkUpsertCourts inserts courts that are not stored yet.
func (s *Store) BulkUpsertCourts(ctx context.Context, courts []crawler.Court) error {
	query := s.db.Rebind(`
		INSERT INTO courts (court_id, name, city)
		VALUES (?, ?, ?)
		ON CONFLICT (court_id) DO NOTHING`)
	return s.bulk(ctx, "bulk upsert courts", query, len(courts), func(i int) []any {
		c := courts[i]
		return []any{c.ID, strings.TrimSpace(c.Name), strings.TrimSpace(c.City)}
	})
}

// BulkUpsertMovements inserts the case's movements that are not stored yet.
func (s *Store) BulkUpsertMovements(ctx context.Context, movements []crawler.Movement, caseID string) error {
	query := s.db.Rebind(`
		INSERT INTO movements (movement_id, case_id, court_id)
		VALUES (?, ?, ?)
		ON CONFLICT (movement_id) DO NOTHING`)
	return s.bulk(ctx, "bulk upsert movements", query, len(movements), func(i int) []any {
		m := movements[i]
		return []any{m.ID, caseID, m.Court.ID}
	})
}

// BulkUpsertIncidents inserts incidents that are not stored yet. Stored
// incidents keep their fields and only get last_updated refreshed.
func (s *Store) BulkUpsertIncidents(ctx context.Context, incidents []IncidentRow) error {
	query := s.db.Rebind(`
		INSERT INTO incidents (incident_id, movement_id, court_id, created_at, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (incident_id) DO UPDATE SET last_updated = excluded.last_updated`)
	now := s.now().UTC()
	return s.bulk(ctx, "bulk upsert incidents", query, len(incidents), func(i int) []any {
		inc := incidents[i]
		return []any{inc.ID, inc.MovementID, inc.CourtID, timestamp(inc.CreatedAt), now}
	})
}

// BulkUpsertActions inserts actions that are not stored yet and returns the
// stored row IDs in input order. Codes are unique per incident only.
func (s *Store) BulkUpsertActions(ctx context.Context, actions []ActionRow) ([]int64, error) {
	if len(actions) == 0 {
		return []int64{}, nil
	}
	insert := s.db.Rebind(`
		INSERT INTO actions (incident_id, code, court_id, uuid, action_date, action_type, activity, filename)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (incident_id, code) DO NOTHING`)
	lookup := s.db.Rebind(`SELECT id FROM actions WHERE incident_id = ? AND code = ?`)

	ids := make([]int64, len(actions))
	err := s.withTx(ctx, "bulk upsert actions", func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, insert)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close() //nolint:errcheck
		for i, a := range actions {
			_, err := stmt.ExecContext(ctx,
				a.IncidentID, a.Code, a.CourtID, a.UUID, timestamp(a.Date),
				strings.TrimSpace(a.Type), a.Activity, optional(a.Filename))
			if err != nil {
				return fmt.Errorf("action %d/%d: %w", a.IncidentID, a.Code, err)
			}
			if err := tx.GetContext(ctx, &ids[i], lookup, a.IncidentID, a.Code); err != nil {
				return fmt.Errorf("action id %d/%d: %w", a.IncidentID, a.Code, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// UpsertParty inserts the party or overwrites its name and representative,
// then links it to incidentID on the role's side.
func (s *Store) UpsertParty(ctx context.Context, party crawler.Party, role crawler.Role, incidentID int64) (int64, error) {
	table, err := partyLinkTable(role)
	if err != nil {
		return 0, &StorageError{Op: "upsert party", Err: err}
	}
	upsert := s.db.Rebind(`
		INSERT INTO parties (party_id, name, representative)
		VALUES (?, ?, ?)
		ON CONFLICT (party_id) DO UPDATE SET
			name = excluded.name,
			representative = excluded.representative`)
	link := s.db.Rebind(`
		INSERT INTO ` + table + ` (incident_id, party_id)
		VALUES (?, ?)
		ON CONFLICT (incident_id, party_id) DO NOTHING`)

	err = s.withTx(ctx, "upsert party", func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, upsert, party.ID, strings.TrimSpace(party.Name), optional(party.Representative)); err != nil {
			return fmt.Errorf("party %d: %w", party.ID, err)
		}
		if _, err := tx.ExecContext(ctx, link, incidentID, party.ID); err != nil {
			return fmt.Errorf("link party %d to incident %d: %w", party.ID, incidentID, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return party.ID, nil
}

// bulk runs query once per row inside one transaction.
func (s *Store) bulk(ctx context.Context, op, query string, n int, args func(i int) []any) error {
	if n == 0 {
		return nil
	}
	return s.withTx(ctx, op, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close() //nolint:errcheck
		for i := 0; i < n; i++ {
			if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
		}
		return nil
	})
}
