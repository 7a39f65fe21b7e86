package domain

// Cache is an in-memory index of workspace-system entities keyed by their
// source-system business ids. It is populated from a bulk pre-fetch at run
// start and from creates during the run. The cache is advisory: it is a
// subset of remote state, and a direct remote lookup always wins over a
// stale entry. Not safe for concurrent use; the engine is single-threaded.
type Cache struct {
	accounts   map[int64]*Account   // by client id
	workspaces map[int64]*Workspace // by order id, across all accounts
	templates  map[string]*TasklistTemplate
}

func NewCache() *Cache {
	return &Cache{
		accounts:   map[int64]*Account{},
		workspaces: map[int64]*Workspace{},
		templates:  map[string]*TasklistTemplate{},
	}
}

// Account returns the cached account for a client id, or nil.
func (c *Cache) Account(clientID int64) *Account {
	return c.accounts[clientID]
}

// AddAccount inserts an account, replacing any entry with the same client
// id. A replaced entry's workspaces carry over when the new one has none.
func (c *Cache) AddAccount(a *Account) {
	if a == nil {
		return
	}
	if prev, ok := c.accounts[a.ClientID]; ok && len(a.Workspaces) == 0 {
		a.Workspaces = prev.Workspaces
	}
	if a.Workspaces == nil {
		a.Workspaces = map[int64]*Workspace{}
	}
	c.accounts[a.ClientID] = a
}

// Workspace returns the cached workspace for an order id, or nil.
func (c *Cache) Workspace(orderID int64) *Workspace {
	return c.workspaces[orderID]
}

// AddWorkspace inserts a workspace into the flat order-id index and, when a
// parent account is supplied, links it under that account as well. Replaces
// any entry with the same order id, carrying milestones over when the new
// entry has none.
func (c *Cache) AddWorkspace(parent *Account, w *Workspace) {
	if w == nil {
		return
	}
	if prev, ok := c.workspaces[w.OrderID]; ok && len(w.Milestones) == 0 {
		w.Milestones = prev.Milestones
	}
	if w.Milestones == nil {
		w.Milestones = map[int64]*Milestone{}
	}
	if parent != nil {
		w.AccountHandle = parent.Handle
		parent.Workspaces[w.OrderID] = w
	}
	c.workspaces[w.OrderID] = w
}

// Populate builds the account -> workspace -> milestone tree from flat
// collections fetched from the target system. Entities whose parent cannot
// be determined are skipped.
func (c *Cache) Populate(accounts []*Account, workspaces []*Workspace, milestones []*Milestone) {
	byHandle := make(map[string]*Account, len(accounts))
	for _, a := range accounts {
		c.AddAccount(a)
		byHandle[a.Handle] = a
	}

	wsByHandle := make(map[string]*Workspace, len(workspaces))
	for _, w := range workspaces {
		parent, ok := byHandle[w.AccountHandle]
		if !ok {
			continue
		}
		c.AddWorkspace(parent, w)
		wsByHandle[w.Handle] = w
	}

	for _, m := range milestones {
		parent, ok := wsByHandle[m.WorkspaceHandle]
		if !ok {
			continue
		}
		parent.AddMilestone(m)
	}
}

// SetTemplates replaces the tasklist-template index.
func (c *Cache) SetTemplates(templates map[string]*TasklistTemplate) {
	if templates == nil {
		templates = map[string]*TasklistTemplate{}
	}
	c.templates = templates
}

// Template returns the tasklist template with the given name, or nil.
func (c *Cache) Template(name string) *TasklistTemplate {
	return c.templates[name]
}
