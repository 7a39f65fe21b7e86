package edge

import "encoding/json"

// listEnvelope is the common shape of paginated collection responses. Some
// endpoint families continue via links.next, others via lastRecord; either
// may be absent on the final page.
type listEnvelope struct {
	Items      []json.RawMessage `json:"items"`
	Links      *pageLinks        `json:"links"`
	LastRecord string            `json:"lastRecord"`
}

type pageLinks struct {
	Next string `json:"next"`
}

// entityEnvelope is the common shape of a single entity response.
type entityEnvelope struct {
	ID      string        `json:"id"`
	Details entityDetails `json:"details"`
}

type entityDetails struct {
	AccountName   string        `json:"accountName"`
	WorkspaceName string        `json:"workspaceName"`
	Title         string        `json:"title"`
	TasklistName  string        `json:"tasklistName"`
	FullName      string        `json:"fullName"`
	URLShortName  string        `json:"urlShortName"`
	CustomFields  []CustomField `json:"customFields"`
}

// CustomField is one {fieldApiId, value} pair of an entity's custom
// metadata. Values arrive as JSON strings or numbers depending on the
// field definition.
type CustomField struct {
	FieldAPIID string `json:"fieldApiId"`
	Value      any    `json:"value"`
}

type accountBody struct {
	AccountName  string        `json:"accountName"`
	CustomFields []CustomField `json:"customFields"`
}

type workspaceBody struct {
	WorkspaceName string        `json:"workspaceName"`
	WorkspaceType string        `json:"workspaceType,omitempty"`
	CustomFields  []CustomField `json:"customFields"`
}

type milestoneBody struct {
	Title        string        `json:"title"`
	StartDate    string        `json:"startDate"`
	DueDate      string        `json:"dueDate"`
	Description  string        `json:"description"`
	Reminders    []string      `json:"reminders"`
	CustomFields []CustomField `json:"customFields"`
}

type tasklistBody struct {
	TasklistName     string `json:"tasklistName"`
	StartDate        string `json:"startDate"`
	TasklistTemplate string `json:"tasklistTemplate"`
}

type addUsersBody struct {
	UserIDs       []string `json:"userIds"`
	ClearExisting bool     `json:"clearExisting"`
}
