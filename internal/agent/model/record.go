package model

// Unknown is the sentinel held by every field that has not been resolved.
const Unknown = "unknown"

// Field names a CallerRecord slot. Values match the oracle JSON keys.
type Field string

const (
	FieldName         Field = "name"
	FieldIdentity     Field = "identity"
	FieldStudentID    Field = "student_id"
	FieldCompanyName  Field = "company_name"
	FieldCompanyPhone Field = "company_phone"
	FieldEmail        Field = "email"
	FieldPurposeType  Field = "purpose_type"
	FieldPurposeText  Field = "purpose_text"
	FieldAction       Field = "action"
)

// AllFields lists every CallerRecord key in schema order.
var AllFields = []Field{
	FieldName,
	FieldIdentity,
	FieldStudentID,
	FieldCompanyName,
	FieldCompanyPhone,
	FieldEmail,
	FieldPurposeType,
	FieldPurposeText,
	FieldAction,
}

// Identity is the caller category.
type Identity string

const (
	IdentityStudent         Identity = "student"
	IdentityExternalCompany Identity = "external_company"
	IdentityUnknown         Identity = Unknown
)

// Action is the outcome of the intake.
type Action string

const (
	ActionInProgress      Action = "in_progress"
	ActionComplete        Action = "complete"
	ActionTransferToHuman Action = "transfer_to_human"
)

// ParseAction maps an oracle suggestion onto an Action, defaulting to in_progress.
func ParseAction(v string) Action {
	switch Action(v) {
	case ActionComplete, ActionTransferToHuman:
		return Action(v)
	default:
		return ActionInProgress
	}
}

// CallerRecord is the structured result of one call. Every field holds either
// a validated value or Unknown; the zero value is not valid, use NewCallerRecord.
type CallerRecord struct {
	Name         string   `json:"name"`
	Identity     Identity `json:"identity"`
	StudentID    string   `json:"student_id"`
	CompanyName  string   `json:"company_name"`
	CompanyPhone string   `json:"company_phone"`
	Email        string   `json:"email"`
	PurposeType  string   `json:"purpose_type"`
	PurposeText  string   `json:"purpose_text"`
	Action       Action   `json:"action"`
}

// NewCallerRecord returns a record with every field set to Unknown and the
// action in progress.
func NewCallerRecord() CallerRecord {
	return CallerRecord{
		Name:         Unknown,
		Identity:     IdentityUnknown,
		StudentID:    Unknown,
		CompanyName:  Unknown,
		CompanyPhone: Unknown,
		Email:        Unknown,
		PurposeType:  Unknown,
		PurposeText:  Unknown,
		Action:       ActionInProgress,
	}
}

// Get returns the value held by f.
func (r CallerRecord) Get(f Field) string {
	switch f {
	case FieldName:
		return r.Name
	case FieldIdentity:
		return string(r.Identity)
	case FieldStudentID:
		return r.StudentID
	case FieldCompanyName:
		return r.CompanyName
	case FieldCompanyPhone:
		return r.CompanyPhone
	case FieldEmail:
		return r.Email
	case FieldPurposeType:
		return r.PurposeType
	case FieldPurposeText:
		return r.PurposeText
	case FieldAction:
		return string(r.Action)
	}
	return Unknown
}

// Set stores v in f. Empty values are stored as Unknown.
func (r *CallerRecord) Set(f Field, v string) {
	if v == "" {
		v = Unknown
	}
	switch f {
	case FieldName:
		r.Name = v
	case FieldIdentity:
		r.Identity = Identity(v)
	case FieldStudentID:
		r.StudentID = v
	case FieldCompanyName:
		r.CompanyName = v
	case FieldCompanyPhone:
		r.CompanyPhone = v
	case FieldEmail:
		r.Email = v
	case FieldPurposeType:
		r.PurposeType = v
	case FieldPurposeText:
		r.PurposeText = v
	case FieldAction:
		r.Action = ParseAction(v)
	}
}

// Applies reports whether f may hold a value for the given identity.
func Applies(f Field, identity Identity) bool {
	switch f {
	case FieldStudentID:
		return identity != IdentityExternalCompany
	case FieldCompanyName, FieldCompanyPhone:
		return identity != IdentityStudent
	}
	return true
}

// ForIdentity returns a copy with the slots of the other identity branch
// cleared, as left behind when a caller corrects their identity.
func (r CallerRecord) ForIdentity() CallerRecord {
	for _, f := range AllFields {
		if !Applies(f, r.Identity) {
			r.Set(f, Unknown)
		}
	}
	return r
}

// Resolved reports whether f holds a value other than Unknown.
func (r CallerRecord) Resolved(f Field) bool {
	v := r.Get(f)
	return v != "" && v != Unknown
}

// RequiredFields returns the slots that must be filled, in asking priority.
// Identity-dependent slots are included only once identity is resolved.
func (r CallerRecord) RequiredFields() []Field {
	fields := []Field{FieldName, FieldIdentity}
	switch r.Identity {
	case IdentityStudent:
		fields = append(fields, FieldStudentID)
	case IdentityExternalCompany:
		fields = append(fields, FieldCompanyName, FieldCompanyPhone)
	}
	return append(fields, FieldEmail, FieldPurposeText)
}

// Missing returns the required slots still Unknown, in asking priority.
func (r CallerRecord) Missing() []Field {
	var missing []Field
	for _, f := range r.RequiredFields() {
		if !r.Resolved(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// Complete reports whether every required slot is resolved.
func (r CallerRecord) Complete() bool {
	return len(r.Missing()) == 0
}
