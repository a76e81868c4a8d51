package model

import (
	"time"

	"gorm.io/datatypes"
)

// UserResponse is written once per submission and never updated.
// swagger:model UserResponse
type UserResponse struct {
	ID                  uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID              string         `gorm:"type:varchar(36);not null;index:idx_response_user_case,priority:1" json:"userId"`
	CaseID              string         `gorm:"type:varchar(36);not null;index:idx_response_user_case,priority:2" json:"caseId"`
	SectionID           string         `gorm:"type:varchar(36);not null;index" json:"sectionId"`
	ResponseText        string         `gorm:"type:text" json:"responseText"`
	SketchURL           string         `gorm:"size:512" json:"sketchUrl,omitempty"`
	SketchDescription   string         `gorm:"type:text" json:"sketchDescription,omitempty"`
	Feedback            string         `gorm:"type:text" json:"feedback"`
	Passed              bool           `json:"passed"`
	Backend             string         `gorm:"size:32" json:"backend"`
	ConversationHistory datatypes.JSON `json:"conversationHistory"`
	CreatedAt           time.Time      `json:"createdAt"`
}

func (UserResponse) TableName() string {
	return "user_responses"
}
