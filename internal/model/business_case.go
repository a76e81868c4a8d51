package model

import "time"

// BusinessCase is operator-seeded reference data; end users never mutate it.
// swagger:model BusinessCase
type BusinessCase struct {
	ID            string        `gorm:"primaryKey;type:varchar(36)" json:"id" yaml:"id"`
	Title         string        `gorm:"size:255;not null" json:"title" yaml:"title"`
	Company       string        `gorm:"size:255" json:"company" yaml:"company"`
	Industry      string        `gorm:"size:255" json:"industry" yaml:"industry"`
	Difficulty    string        `gorm:"size:50" json:"difficulty" yaml:"difficulty"`
	EstimatedTime string        `gorm:"size:50" json:"estimatedTime" yaml:"estimated_time"`
	Description   string        `gorm:"type:text" json:"description" yaml:"description"`
	Language      string        `gorm:"size:10;default:'sv'" json:"language" yaml:"language"`
	AuthorNote    string        `gorm:"type:text" json:"authorNote" yaml:"author_note"`
	CreatedAt     time.Time     `json:"createdAt" yaml:"-"`
	UpdatedAt     time.Time     `json:"updatedAt" yaml:"-"`
	Sections      []CaseSection `gorm:"foreignKey:CaseID" json:"sections,omitempty" yaml:"sections"`
}

func (BusinessCase) TableName() string {
	return "business_cases"
}

// swagger:model CaseSection
type CaseSection struct {
	ID               string    `gorm:"primaryKey;type:varchar(36)" json:"id" yaml:"id"`
	CaseID           string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_case_section_order,priority:1" json:"caseId" yaml:"-"`
	Title            string    `gorm:"size:255" json:"title" yaml:"title"`
	Type             string    `gorm:"size:50" json:"type" yaml:"type"`
	Prompt           string    `gorm:"type:text;not null" json:"prompt" yaml:"prompt"`
	OrderIndex       int       `gorm:"not null;uniqueIndex:idx_case_section_order,priority:2" json:"orderIndex" yaml:"order_index"`
	AIInstructions   string    `gorm:"type:text" json:"aiInstructions,omitempty" yaml:"ai_instructions"`
	Criteria         string    `gorm:"type:text" json:"criteria,omitempty" yaml:"criteria"`
	CaseData         string    `gorm:"type:text" json:"caseData,omitempty" yaml:"case_data"`
	GraphDescription string    `gorm:"type:text" json:"graphDescription,omitempty" yaml:"graph_description"`
	Hint             string    `gorm:"type:text" json:"hint,omitempty" yaml:"hint"`
	ImageURL         string    `gorm:"size:512" json:"imageUrl,omitempty" yaml:"image_url"`
	CreatedAt        time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt        time.Time `json:"updatedAt" yaml:"-"`
}

func (CaseSection) TableName() string {
	return "case_sections"
}
