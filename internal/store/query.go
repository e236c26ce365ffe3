package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/JakeFAU/causas-crawler/internal/crawler"
)

// Litigant returns the stored litigant.
func (s *Store) Litigant(ctx context.Context, nationalID string) (LitigantRow, error) {
	var row LitigantRow
	query := s.db.Rebind(`SELECT national_id, name, last_updated FROM litigants WHERE national_id = ?`)
	if err := s.db.GetContext(ctx, &row, query, nationalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LitigantRow{}, ErrNotFound
		}
		return LitigantRow{}, &StorageError{Op: "get litigant", Err: err}
	}
	return row, nil
}

// CaseIDs lists the IDs of the cases linked to the litigant under role.
func (s *Store) CaseIDs(ctx context.Context, nationalID string, role crawler.Role) ([]string, error) {
	table, err := caseLinkTable(role)
	if err != nil {
		return nil, err
	}
	ids := []string{}
	query := s.db.Rebind(`SELECT case_id FROM ` + table + ` WHERE national_id = ? ORDER BY case_id`)
	if err := s.db.SelectContext(ctx, &ids, query, nationalID); err != nil {
		return nil, &StorageError{Op: "list case ids", Err: err}
	}
	return ids, nil
}

// Cases lists the cases linked to the litigant under role.
func (s *Store) Cases(ctx context.Context, nationalID string, role crawler.Role) ([]CaseRow, error) {
	table, err := caseLinkTable(role)
	if err != nil {
		return nil, err
	}
	rows := []CaseRow{}
	query := s.db.Rebind(`
		SELECT c.case_id, c.offense, c.filed_at
		FROM ` + table + ` l
		JOIN cases c ON c.case_id = l.case_id
		WHERE l.national_id = ?
		ORDER BY c.filed_at DESC, c.case_id`)
	if err := s.db.SelectContext(ctx, &rows, query, nationalID); err != nil {
		return nil, &StorageError{Op: "list cases", Err: err}
	}
	return rows, nil
}

// MovementsByLitigant lists the movements of every case linked to the
// litigant under role.
func (s *Store) MovementsByLitigant(ctx context.Context, nationalID string, role crawler.Role) ([]MovementRow, error) {
	table, err := caseLinkTable(role)
	if err != nil {
		return nil, err
	}
	rows := []MovementRow{}
	query := s.db.Rebind(`
		SELECT m.movement_id, m.case_id, m.court_id, co.name AS court_name, co.city AS court_city
		FROM ` + table + ` l
		JOIN movements m ON m.case_id = l.case_id
		JOIN courts co ON co.court_id = m.court_id
		WHERE l.national_id = ?
		ORDER BY m.case_id, m.movement_id`)
	if err := s.db.SelectContext(ctx, &rows, query, nationalID); err != nil {
		return nil, &StorageError{Op: "list movements", Err: err}
	}
	return rows, nil
}

const actionColumns = `a.id, a.incident_id, a.code, a.court_id, a.uuid, a.action_date, a.action_type, a.activity, a.filename`

// ActionsByIncident lists an incident's actions, newest first.
func (s *Store) ActionsByIncident(ctx context.Context, incidentID int64) ([]ActionRow, error) {
	rows := []ActionRow{}
	query := s.db.Rebind(`SELECT ` + actionColumns + ` FROM actions a WHERE a.incident_id = ? ORDER BY a.action_date DESC, a.code`)
	if err := s.db.SelectContext(ctx, &rows, query, incidentID); err != nil {
		return nil, &StorageError{Op: "list incident actions", Err: err}
	}
	return rows, nil
}

// ActionsByMovement lists the actions of a movement, provided the movement
// belongs to a case linked to the litigant under role.
func (s *Store) ActionsByMovement(ctx context.Context, nationalID string, role crawler.Role, movementID int64) ([]ActionRow, error) {
	table, err := caseLinkTable(role)
	if err != nil {
		return nil, err
	}
	rows := []ActionRow{}
	query := s.db.Rebind(`
		SELECT ` + actionColumns + `
		FROM actions a
		JOIN incidents i ON i.incident_id = a.incident_id
		JOIN movements m ON m.movement_id = i.movement_id
		JOIN ` + table + ` l ON l.case_id = m.case_id
		WHERE l.national_id = ? AND m.movement_id = ?
		ORDER BY a.action_date DESC, a.incident_id, a.code`)
	if err := s.db.SelectContext(ctx, &rows, query, nationalID, movementID); err != nil {
		return nil, &StorageError{Op: "list movement actions", Err: err}
	}
	return rows, nil
}

type partyLink struct {
	IncidentID int64 `db:"incident_id"`
	Role       string `db:"role"`
	PartyRow
}

// CaseDetail loads a case with its movements, incidents and parties.
func (s *Store) CaseDetail(ctx context.Context, caseID string) (*CaseDetail, error) {
	var detail CaseDetail
	err := s.db.GetContext(ctx, &detail.CaseRow,
		s.db.Rebind(`SELECT case_id, offense, filed_at FROM cases WHERE case_id = ?`), caseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, &StorageError{Op: "get case", Err: err}
	}

	var movements []MovementRow
	err = s.db.SelectContext(ctx, &movements, s.db.Rebind(`
		SELECT m.movement_id, m.case_id, m.court_id, co.name AS court_name, co.city AS court_city
		FROM movements m
		JOIN courts co ON co.court_id = m.court_id
		WHERE m.case_id = ?
		ORDER BY m.movement_id`), caseID)
	if err != nil {
		return nil, &StorageError{Op: "get case movements", Err: err}
	}

	var incidents []IncidentView
	err = s.db.SelectContext(ctx, &incidents, s.db.Rebind(`
		SELECT i.incident_id, i.movement_id, i.court_id, i.created_at, i.last_updated
		FROM incidents i
		JOIN movements m ON m.movement_id = i.movement_id
		WHERE m.case_id = ?
		ORDER BY i.incident_id`), caseID)
	if err != nil {
		return nil, &StorageError{Op: "get case incidents", Err: err}
	}

	var links []partyLink
	err = s.db.SelectContext(ctx, &links, s.db.Rebind(`
		SELECT l.incident_id, 'plaintiff' AS role, p.party_id, p.name, p.representative
		FROM incident_party_plaintiff l
		JOIN parties p ON p.party_id = l.party_id
		JOIN incidents i ON i.incident_id = l.incident_id
		JOIN movements m ON m.movement_id = i.movement_id
		WHERE m.case_id = ?
		UNION ALL
		SELECT l.incident_id, 'defendant' AS role, p.party_id, p.name, p.representative
		FROM incident_party_defendant l
		JOIN parties p ON p.party_id = l.party_id
		JOIN incidents i ON i.incident_id = l.incident_id
		JOIN movements m ON m.movement_id = i.movement_id
		WHERE m.case_id = ?
		ORDER BY 1, 3`), caseID, caseID)
	if err != nil {
		return nil, &StorageError{Op: "get case parties", Err: err}
	}

	byIncident := make(map[int64]*IncidentDetail, len(incidents))
	details := make([]IncidentDetail, len(incidents))
	for i, inc := range incidents {
		details[i] = IncidentDetail{IncidentView: inc, Plaintiffs: []PartyRow{}, Defendants: []PartyRow{}}
		byIncident[inc.ID] = &details[i]
	}
	for _, link := range links {
		inc, ok := byIncident[link.IncidentID]
		if !ok {
			continue
		}
		if link.Role == string(crawler.RolePlaintiff) {
			inc.Plaintiffs = append(inc.Plaintiffs, link.PartyRow)
		} else {
			inc.Defendants = append(inc.Defendants, link.PartyRow)
		}
	}

	detail.Movements = make([]MovementDetail, 0, len(movements))
	for _, m := range movements {
		md := MovementDetail{MovementRow: m, Incidents: []IncidentDetail{}}
		for _, inc := range details {
			if inc.MovementID == m.ID {
				md.Incidents = append(md.Incidents, inc)
			}
		}
		detail.Movements = append(detail.Movements, md)
	}
	return &detail, nil
}

// Stats counts stored rows per entity.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	query := `
		SELECT
			(SELECT COUNT(*) FROM litigants) AS litigants,
			(SELECT COUNT(*) FROM cases) AS cases,
			(SELECT COUNT(*) FROM courts) AS courts,
			(SELECT COUNT(*) FROM movements) AS movements,
			(SELECT COUNT(*) FROM incidents) AS incidents,
			(SELECT COUNT(*) FROM parties) AS parties,
			(SELECT COUNT(*) FROM actions) AS actions,
			(SELECT COUNT(*) FROM litigant_case_plaintiff) AS plaintiff_links,
			(SELECT COUNT(*) FROM litigant_case_defendant) AS defendant_links`
	if err := s.db.GetContext(ctx, &stats, query); err != nil {
		return Stats{}, &StorageError{Op: "stats", Err: fmt.Errorf("count rows: %w", err)}
	}
	return stats, nil
}
