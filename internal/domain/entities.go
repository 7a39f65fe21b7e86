package domain

import "strings"

// Account is a company-level container in the workspace system. It is
// correlated with a source-system client through ClientID and addressed
// remotely through its opaque Handle.
type Account struct {
	Handle   string
	ClientID int64

	Workspaces map[int64]*Workspace // keyed by order id
}

func NewAccount(handle string, clientID int64) *Account {
	return &Account{Handle: handle, ClientID: clientID, Workspaces: map[int64]*Workspace{}}
}

// Workspace is the per-order project container under an Account.
type Workspace struct {
	Handle        string
	OrderID       int64
	Name          string
	AccountHandle string

	Milestones map[int64]*Milestone // keyed by drop id
}

func NewWorkspace(handle string, orderID int64) *Workspace {
	return &Workspace{Handle: handle, OrderID: orderID, Milestones: map[int64]*Milestone{}}
}

// AddMilestone indexes a milestone under the workspace by drop id,
// replacing any previous entry with the same id. A replaced entry's
// tasklists carry over when the new one has none, so a re-fetch does not
// wipe what was learned earlier in the run.
func (w *Workspace) AddMilestone(m *Milestone) {
	if m == nil {
		return
	}
	if prev, ok := w.Milestones[m.DropID]; ok && len(m.Tasklists) == 0 {
		m.Tasklists = prev.Tasklists
	}
	if m.Tasklists == nil {
		m.Tasklists = map[string]*Tasklist{}
	}
	m.WorkspaceHandle = w.Handle
	w.Milestones[m.DropID] = m
}

// Milestone looks up a milestone by its source-system drop id.
func (w *Workspace) Milestone(dropID int64) *Milestone {
	return w.Milestones[dropID]
}

// MilestoneByName finds a milestone by exact name. Both sides are
// whitespace-trimmed; the comparison is case-sensitive.
func (w *Workspace) MilestoneByName(name string) *Milestone {
	name = strings.TrimSpace(name)
	for _, m := range w.Milestones {
		if strings.TrimSpace(m.Name) == name {
			return m
		}
	}
	return nil
}

// Milestone is the per-drop deliverable under a Workspace.
type Milestone struct {
	Handle          string
	DropID          int64
	Name            string
	WorkspaceHandle string

	Tasklists map[string]*Tasklist // keyed by tasklist name
}

func NewMilestone(handle string, dropID int64) *Milestone {
	return &Milestone{Handle: handle, DropID: dropID, Tasklists: map[string]*Tasklist{}}
}

func (m *Milestone) AddTasklist(t *Tasklist) {
	if t == nil {
		return
	}
	if m.Tasklists == nil {
		m.Tasklists = map[string]*Tasklist{}
	}
	m.Tasklists[t.Name] = t
}

// Tasklist returns the tasklist with the given name, or nil.
func (m *Milestone) Tasklist(name string) *Tasklist {
	return m.Tasklists[name]
}

// Tasklist is a named task container attached to a milestone.
type Tasklist struct {
	Handle string
	Name   string
}

// TasklistTemplate is a reusable tasklist blueprint, looked up by name only.
type TasklistTemplate struct {
	Handle string
	Name   string
}

// MilestoneDetails carries the display fields for a milestone write.
// Dates are kept in the source report's string form; the target API
// accepts them verbatim.
type MilestoneDetails struct {
	Name        string
	Description string
	StartDate   string
	EndDate     string
}
