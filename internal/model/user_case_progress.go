package model

import "time"

// UserCaseProgress tracks completed sections per (user, case). A row with a nil
// CaseID marks an initialised account that has not started a case yet.
// swagger:model UserCaseProgress
type UserCaseProgress struct {
	ID                uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID            string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_user_case,priority:1" json:"userId"`
	CaseID            *string   `gorm:"type:varchar(36);uniqueIndex:idx_user_case,priority:2" json:"caseId"`
	CompletedSections int       `gorm:"not null;default:0" json:"completedSections"`
	TotalSections     int       `gorm:"not null;default:0" json:"totalSections"`
	IsCompleted       bool      `gorm:"not null;default:false" json:"isCompleted"`
	LastActivity      time.Time `json:"lastActivity"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func (UserCaseProgress) TableName() string {
	return "user_case_progress"
}

// IsBootstrap reports whether the row is the account initialisation marker.
func (p *UserCaseProgress) IsBootstrap() bool {
	return p.CaseID == nil
}
