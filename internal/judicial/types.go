package judicial

// Plaintiff is the actor half of the search criteria.
type Plaintiff struct {
	NationalID string `json:"cedulaActor"`
	Name       string `json:"nombreActor"`
}

// Defendant is the defendant half of the search criteria.
type Defendant struct {
	NationalID string `json:"cedulaDemandado"`
	Name       string `json:"nombreDemandado"`
}

// SearchCriteria filters cases on the search endpoints. Empty fields match
// everything.
type SearchCriteria struct {
	CaseNumber       string    `json:"numeroCausa"`
	Plaintiff        Plaintiff `json:"actor"`
	Defendant        Defendant `json:"demandado"`
	Province         string    `json:"provincia"`
	ProsecutorNumber string    `json:"numeroFiscalia"`
	Recaptcha        string    `json:"recaptcha"`
}

type searchRequest struct {
	SearchCriteria
	Page int `json:"page"`
	Size int `json:"size"`
}

// CaseSummary is one row of the case search.
type CaseSummary struct {
	CaseID       string    `json:"idJuicio" payload:"required" validate:"required"`
	Offense      string    `json:"nombreDelito" payload:"required"`
	FiledAt      Timestamp `json:"fechaIngreso" payload:"required" validate:"required"`
	State        *string   `json:"estadoActual,omitempty"`
	MatterID     *int      `json:"idMateria,omitempty"`
	ProvinceID   *int      `json:"idProvincia,omitempty"`
	CantonID     *int      `json:"idCanton,omitempty"`
	CourtID      *string   `json:"idJudicatura,omitempty"`
	CourtName    *string   `json:"nombreJudicatura,omitempty"`
	MatterName   *string   `json:"nombreMateria,omitempty"`
	ProvinceName *string   `json:"nombreProvincia,omitempty"`
	HasDocument  *bool     `json:"iedocumentoAdjunto,omitempty"`
}

// MovementDetail is a court's record of a case, holding its incidents.
type MovementDetail struct {
	CourtID   string           `json:"idJudicatura" payload:"required" validate:"required"`
	CourtName string           `json:"nombreJudicatura" payload:"required"`
	City      string           `json:"ciudad" payload:"required"`
	Incidents []IncidentDetail `json:"lstIncidenteJudicatura" payload:"required" validate:"dive"`
}

// IncidentDetail is a proceeding inside a movement.
type IncidentDetail struct {
	Incident           int64         `json:"incidente" payload:"required"`
	IncidentCourtID    int64         `json:"idIncidenteJudicatura" payload:"required"`
	MovementID         int64         `json:"idMovimientoJuicioIncidente" payload:"required"`
	DestinationCourtID string        `json:"idJudicaturaDestino"`
	CreatedAt          Timestamp     `json:"fechaCrea" payload:"required"`
	Plaintiffs         []PartyDetail `json:"lstLitiganteActor" validate:"dive"`
	Defendants         []PartyDetail `json:"lstLitiganteDemandado" validate:"dive"`
	PlaintiffLabel     *string       `json:"litiganteActor,omitempty"`
	DefendantLabel     *string       `json:"litiganteDemandado,omitempty"`
}

// PartyDetail is a party listed on an incident.
type PartyDetail struct {
	PartyID       int64   `json:"idLitigante" payload:"required"`
	Kind          string  `json:"tipoLitigante" payload:"required"`
	Names         string  `json:"nombresLitigante" payload:"required"`
	RepresentedBy *string `json:"representadoPor"`
}

// ActionRequest identifies the incident whose actions are requested.
type ActionRequest struct {
	Application     string `json:"aplicativo"`
	IncidentCourtID int64  `json:"idIncidenteJudicatura"`
	CourtID         string `json:"idJudicatura"`
	CaseID          string `json:"idJuicio"`
	MovementID      int64  `json:"idMovimientoJuicioIncidente"`
	Incident        int64  `json:"incidente"`
	CourtName       string `json:"nombreJudicatura"`
}

// NewActionRequest builds the actions lookup for one incident of a movement.
func NewActionRequest(caseID string, movement MovementDetail, incident IncidentDetail) ActionRequest {
	return ActionRequest{
		Application:     "web",
		IncidentCourtID: incident.IncidentCourtID,
		CourtID:         movement.CourtID,
		CaseID:          caseID,
		MovementID:      incident.MovementID,
		Incident:        incident.Incident,
		CourtName:       movement.CourtName,
	}
}

// ActionRecord is a docket entry of an incident.
type ActionRecord struct {
	Code           int64     `json:"codigo" payload:"required"`
	CourtID        string    `json:"idJudicatura"`
	CaseID         string    `json:"idJuicio"`
	Date           Timestamp `json:"fecha" payload:"required" validate:"required"`
	Type           string    `json:"tipo" payload:"required"`
	Activity       string    `json:"actividad" payload:"required"`
	Visible        string    `json:"visible"`
	Origin         string    `json:"origen"`
	MovementID     int64     `json:"idMovimientoJuicioIncidente"`
	ReferenceTable *string   `json:"ieTablaReferencia"`
	AttachmentID   *string   `json:"ieDocumentoAdjunto"`
	EscapeOut      *string   `json:"escapeOut"`
	UUID           string    `json:"uuid" payload:"required"`
	Alias          *string   `json:"alias"`
	Filename       *string   `json:"nombreArchivo"`
	EntryType      *string   `json:"tipoIngreso"`
	ReferenceID    *string   `json:"idTablaReferencia"`
}
