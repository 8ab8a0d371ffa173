package models

// Role identifies who authored a message in a session log.
type Role string

const (
	RoleInfo      Role = "info"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
	// RoleText marks pasted reference content such as a scraped web page.
	RoleText Role = "text"
)

// Message is one entry of a session's display log.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
