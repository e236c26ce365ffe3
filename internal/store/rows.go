package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/causas-crawler/internal/crawler"
)

// IncidentRow is an incident flattened for bulk insertion.
type IncidentRow struct {
	ID         int64
	MovementID int64
	CourtID    string
	CreatedAt  time.Time
}

// ActionRow is a stored docket entry.
type ActionRow struct {
	ID         int64     `db:"id" json:"id"`
	IncidentID int64     `db:"incident_id" json:"incident_id"`
	Code       int64     `db:"code" json:"code"`
	CourtID    string    `db:"court_id" json:"court_id"`
	UUID       string    `db:"uuid" json:"uuid"`
	Date       time.Time `db:"action_date" json:"date"`
	Type       string    `db:"action_type" json:"type"`
	Activity   string    `db:"activity" json:"activity"`
	Filename   *string   `db:"filename" json:"filename"`
}

// LitigantRow is a stored litigant.
type LitigantRow struct {
	NationalID  string    `db:"national_id" json:"national_id"`
	Name        string    `db:"name" json:"name"`
	LastUpdated time.Time `db:"last_updated" json:"last_updated"`
}

// CaseRow is a stored case.
type CaseRow struct {
	ID      string    `db:"case_id" json:"case_id"`
	Offense string    `db:"offense" json:"offense"`
	FiledAt time.Time `db:"filed_at" json:"filed_at"`
}

// MovementRow is a stored movement with its court.
type MovementRow struct {
	ID        int64  `db:"movement_id" json:"movement_id"`
	CaseID    string `db:"case_id" json:"case_id"`
	CourtID   string `db:"court_id" json:"court_id"`
	CourtName string `db:"court_name" json:"court_name"`
	CourtCity string `db:"court_city" json:"court_city"`
}

// IncidentView is a stored incident.
type IncidentView struct {
	ID          int64      `db:"incident_id" json:"incident_id"`
	MovementID  int64      `db:"movement_id" json:"movement_id"`
	CourtID     string     `db:"court_id" json:"court_id"`
	CreatedAt   *time.Time `db:"created_at" json:"created_at"`
	LastUpdated time.Time  `db:"last_updated" json:"last_updated"`
}

// PartyRow is a stored party.
type PartyRow struct {
	ID             int64   `db:"party_id" json:"party_id"`
	Name           string  `db:"name" json:"name"`
	Representative *string `db:"representative" json:"representative"`
}

// IncidentDetail is an incident with the parties on each side.
type IncidentDetail struct {
	IncidentView
	Plaintiffs []PartyRow `json:"plaintiffs"`
	Defendants []PartyRow `json:"defendants"`
}

// MovementDetail is a movement with its incidents.
type MovementDetail struct {
	MovementRow
	Incidents []IncidentDetail `json:"incidents"`
}

// CaseDetail is a case with everything stored beneath it.
type CaseDetail struct {
	CaseRow
	Movements []MovementDetail `json:"movements"`
}

// Stats counts rows per entity.
type Stats struct {
	Litigants  int64 `db:"litigants" json:"litigants"`
	Cases      int64 `db:"cases" json:"cases"`
	Courts     int64 `db:"courts" json:"courts"`
	Movements  int64 `db:"movements" json:"movements"`
	Incidents  int64 `db:"incidents" json:"incidents"`
	Parties    int64 `db:"parties" json:"parties"`
	Actions    int64 `db:"actions" json:"actions"`
	Plaintiffs int64 `db:"plaintiff_links" json:"plaintiff_links"`
	Defendants int64 `db:"defendant_links" json:"defendant_links"`
}

func caseLinkTable(role crawler.Role) (string, error) {
	return linkTable(role, "litigant_case_plaintiff", "litigant_case_defendant")
}

func partyLinkTable(role crawler.Role) (string, error) {
	return linkTable(role, "incident_party_plaintiff", "incident_party_defendant")
}

// linkTable picks the per-role table. Role names reach SQL text, so unknown
// roles are rejected.
func linkTable(role crawler.Role, plaintiff, defendant string) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", role)
	}
	if role == crawler.RoleDefendant {
		return defendant, nil
	}
	return plaintiff, nil
}

// optional trims p and maps empty values to NULL.
func optional(p *string) any {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return v
}

func timestamp(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
