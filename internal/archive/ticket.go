package archive

import (
	"time"

	"github.com/call-intake-poc-v1/server/internal/agent/model"
)

// Ticket is an archived intake, routed to a department.
type Ticket struct {
	CallID     string              `json:"call_id"`
	Record     model.CallerRecord  `json:"record"`
	Outcome    string              `json:"outcome"`
	Department string              `json:"department"`
	Reason     string              `json:"reason,omitempty"`
	Retries    map[model.Field]int `json:"retries"`
	Turns      int                 `json:"turns"`
	StartedAt  time.Time           `json:"started_at"`
	EndedAt    time.Time           `json:"ended_at"`
	CreatedAt  time.Time           `json:"created_at"`
}

type ticketRow struct {
	CallID       string    `gorm:"primaryKey;size:64"`
	Name         string    `gorm:"size:191;not null"`
	Identity     string    `gorm:"size:32;not null"`
	StudentID    string    `gorm:"size:64;not null"`
	CompanyName  string    `gorm:"size:191;not null"`
	CompanyPhone string    `gorm:"size:64;not null"`
	Email        string    `gorm:"size:191;not null"`
	PurposeType  string    `gorm:"size:64;not null;index:idx_tickets_purpose"`
	PurposeText  string    `gorm:"type:text;not null"`
	Action       string    `gorm:"size:32;not null"`
	Outcome      string    `gorm:"size:32;not null"`
	Department   string    `gorm:"size:191;not null"`
	Reason       string    `gorm:"type:text"`
	RetriesJSON  string    `gorm:"type:text;not null"`
	Turns        int       `gorm:"not null"`
	StartedAt    time.Time `gorm:"not null"`
	EndedAt      time.Time `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;index:idx_tickets_purpose"`
}

func (ticketRow) TableName() string {
	return "intake_tickets"
}

func (r ticketRow) toTicket(retries map[model.Field]int) Ticket {
	return Ticket{
		CallID: r.CallID,
		Record: model.CallerRecord{
			Name:         r.Name,
			Identity:     model.Identity(r.Identity),
			StudentID:    r.StudentID,
			CompanyName:  r.CompanyName,
			CompanyPhone: r.CompanyPhone,
			Email:        r.Email,
			PurposeType:  r.PurposeType,
			PurposeText:  r.PurposeText,
			Action:       model.Action(r.Action),
		},
		Outcome:    r.Outcome,
		Department: r.Department,
		Reason:     r.Reason,
		Retries:    retries,
		Turns:      r.Turns,
		StartedAt:  r.StartedAt,
		EndedAt:    r.EndedAt,
		CreatedAt:  r.CreatedAt,
	}
}
