package crawler

import (
	"fmt"
	"strings"
	"time"
)

// Role is the side a litigant takes in a case.
type Role string

// Supported roles.
const (
	RolePlaintiff Role = "plaintiff"
	RoleDefendant Role = "defendant"
)

// Roles lists every role in a stable order.
var Roles = []Role{RolePlaintiff, RoleDefendant}

// ParseRole accepts the English names and the service's own labels.
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "plaintiff", "actor":
		return RolePlaintiff, nil
	case "defendant", "demandado":
		return RoleDefendant, nil
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RolePlaintiff || r == RoleDefendant
}

func (r Role) String() string {
	return string(r)
}

// Litigant is the person whose cases are crawled.
type Litigant struct {
	NationalID string `json:"cedula"`
	Name       string `json:"nombre"`
	Role       Role   `json:"tipo"`
}

// Court is a judicial office.
type Court struct {
	ID   string `json:"idJudicatura"`
	Name string `json:"nombre"`
	City string `json:"ciudad"`
}

// Party is a participant listed on an incident.
type Party struct {
	ID             int64   `json:"idImplicado"`
	Name           string  `json:"nombre"`
	Representative *string `json:"representante"`
}

// Action is a docket entry.
type Action struct {
	UUID     string    `json:"uuid"`
	Code     int64     `json:"codigo"`
	Date     time.Time `json:"fecha"`
	Type     string    `json:"tipo"`
	Activity string    `json:"actividad"`
	Filename *string   `json:"nombreArchivo"`
}

// Incident is a proceeding inside a movement.
type Incident struct {
	ID         int64     `json:"idIncidente"`
	CreatedAt  time.Time `json:"fechaCrea"`
	Plaintiffs []Party   `json:"actores"`
	Defendants []Party   `json:"demandados"`
	Actions    []Action  `json:"actuaciones"`
}

// Parties returns the incident's parties on the given side.
func (i Incident) Parties(role Role) []Party {
	if role == RoleDefendant {
		return i.Defendants
	}
	return i.Plaintiffs
}

// Movement is a court's handling of a case. It always has at least one incident.
type Movement struct {
	ID        int64      `json:"idMovimiento"`
	Court     Court      `json:"judicatura"`
	Incidents []Incident `json:"incidentes"`
}

// Case is a judicial case with its movements.
type Case struct {
	ID        string     `json:"idJuicio"`
	Offense   string     `json:"nombreDelito"`
	FiledAt   time.Time  `json:"fechaIngreso"`
	Movements []Movement `json:"movimientos"`
}

// LitigantRecord is the result of crawling one litigant.
type LitigantRecord struct {
	Litigant Litigant `json:"litigante"`
	Cases    []Case   `json:"causas"`
}

// CaseIDs lists the record's case IDs in order.
func (r *LitigantRecord) CaseIDs() []string {
	ids := make([]string, 0, len(r.Cases))
	for _, c := range r.Cases {
		ids = append(ids, c.ID)
	}
	return ids
}
