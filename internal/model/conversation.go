package model

const (
	RoleInterviewer = "interviewer"
	RoleCandidate   = "candidate"

	AttachmentSketch = "sketch"
)

// ConversationTurn is one message of a section transcript.
type ConversationTurn struct {
	Role        string       `json:"role" binding:"required,oneof=interviewer candidate"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type Attachment struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// SketchURL returns the first sketch attachment, if any.
func (t ConversationTurn) SketchURL() string {
	for _, a := range t.Attachments {
		if a.Type == AttachmentSketch && a.URL != "" {
			return a.URL
		}
	}
	return ""
}
