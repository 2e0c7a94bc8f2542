package model

import "time"

const (
	RoleEmployee = "Employee"
	RoleAdmin    = "Admin"
)

type Account struct {
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// TimeRecord describes one interval of work. StartTime is derived from
// FinishTime and TotalTime and is never set directly; a nil time pointer
// means the field was never supplied.
type TimeRecord struct {
	ID         string
	OwnerEmail string
	StartTime  *time.Time
	FinishTime *time.Time
	TotalTime  int64
	Notes      string
}

// AccountWorkTime is one row of the admin work-time report.
type AccountWorkTime struct {
	Email         string
	Role          string
	SecondsWorked int64
}
