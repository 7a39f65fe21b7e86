// Package application holds the reconciliation engine: it walks the
// report rows and drives the workspace system into agreement with the
// order system, touching only what changed since the last run.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/imeetcentral/fattail-sync/internal/domain"
	"github.com/imeetcentral/fattail-sync/internal/infrastructure/edge"
	"github.com/imeetcentral/fattail-sync/internal/infrastructure/fattail"
	"github.com/imeetcentral/fattail-sync/internal/infrastructure/ledger"
	"github.com/imeetcentral/fattail-sync/internal/infrastructure/report"
)

// Report column names.
const (
	colClientID        = "Client ID"
	colOrderID         = "Campaign ID"
	colCampaignName    = "Campaign Name"
	colIOStatus        = "IO Status"
	colCampaignStart   = "Campaign Start Date"
	colCampaignEnd     = "Campaign End Date"
	colWorkspaceRef    = "(Campaign) CD Workspace ID"
	colSalesRep        = "Sales Rep"
	colProjectManager  = "HDM | Project Manager"
	colDropID          = "Drop ID"
	colPositionPath    = "Position Path"
	colDropDescription = "Drop Description"
	colDropStart       = "Start Date"
	colDropEnd         = "End Date"
	colUnitFeatures    = "(Drop) Custom Unit Features"
	colLineItemKPI     = "(Drop) Line Item KPI"
	colSoldAmount      = "Sold Amount"
	colMilestoneRef    = "(Drop) CD Milestone ID"
	colPackageDropID   = "Package Drop ID"
)

// Dynamic-property names holding the cross-references on the order side.
const (
	orderWorkspaceProperty = "H_CD_Workspace_ID"
	dropMilestoneProperty  = "H_CD_Milestone_ID"
)

var requiredColumns = []string{
	colClientID, colOrderID, colCampaignName, colIOStatus,
	colCampaignStart, colCampaignEnd, colWorkspaceRef, colSalesRep,
	colProjectManager, colDropID, colPositionPath, colDropDescription,
	colDropStart, colDropEnd, colUnitFeatures, colLineItemKPI,
	colSoldAmount, colMilestoneRef, colPackageDropID,
}

// WorkspaceTarget is the slice of the workspace system the engine writes
// to.
type WorkspaceTarget interface {
	Accounts(ctx context.Context) ([]*domain.Account, error)
	AccountByHandle(ctx context.Context, handle string) (*domain.Account, error)
	CreateAccount(ctx context.Context, name string, fields map[string]string) (string, error)
	Workspaces(ctx context.Context, accountHandle string) ([]*domain.Workspace, error)
	WorkspaceByHandle(ctx context.Context, handle string) (*domain.Workspace, error)
	CreateWorkspace(ctx context.Context, accountHandle, name, templateHandle string, fields map[string]string) (string, error)
	UpdateWorkspace(ctx context.Context, handle, name string, fields map[string]string) error
	Milestones(ctx context.Context, workspaceHandle string) ([]*domain.Milestone, error)
	MilestoneByHandle(ctx context.Context, handle string) (*domain.Milestone, error)
	CreateMilestone(ctx context.Context, workspaceHandle string, d domain.MilestoneDetails, fields map[string]string) (string, error)
	UpdateMilestone(ctx context.Context, handle string, d domain.MilestoneDetails, fields map[string]string) error
	CreateTasklist(ctx context.Context, milestoneHandle, name, templateHandle, startDate string) (string, error)
	TasklistTemplates(ctx context.Context) (map[string]*domain.TasklistTemplate, error)
	AssignUserToRole(ctx context.Context, fullName, roleHandle, workspaceHandle, roleName string) error
}

// OrderSource is the slice of the order system the engine reads records
// from and writes cross-references back to.
type OrderSource interface {
	Clients(ctx context.Context) ([]fattail.ClientRecord, error)
	ClientByID(ctx context.Context, clientID int64) (*fattail.ClientRecord, error)
	OrderByID(ctx context.Context, orderID int64) (*fattail.Order, error)
	DropByID(ctx context.Context, dropID int64) (*fattail.Drop, error)
	UpdateClient(ctx context.Context, client *fattail.ClientRecord) error
	UpdateOrder(ctx context.Context, order *fattail.Order) error
	UpdateDrop(ctx context.Context, drop *fattail.Drop) error
	OrderPropertyID(ctx context.Context, name string) (int64, error)
	DropPropertyID(ctx context.Context, name string) (int64, error)
}

// ReportFetcher produces the report table the run is driven by.
type ReportFetcher interface {
	Fetch(ctx context.Context, name string) (*report.Table, error)
	Cleanup()
}

// ChangeLedger remembers content digests across runs.
type ChangeLedger interface {
	Changed(t ledger.Type, id int64, values []string) bool
	Record(t ledger.Type, id int64, values []string)
	Save() error
}

// Options configure a run.
type Options struct {
	WorkspaceTemplate  string
	SalesRepRole       string
	ProjectManagerRole string
	// TasklistTemplates maps a drop type to the template names applied to
	// its milestone.
	TasklistTemplates map[string][]string
	// Overwrite lets the run replace cross-reference values that already
	// look like valid handles.
	Overwrite bool
}

// Engine reconciles one report run. It is not safe for concurrent use.
type Engine struct {
	target  WorkspaceTarget
	orders  OrderSource
	fetcher ReportFetcher
	changes ChangeLedger
	opts    Options
	logger  *slog.Logger

	cache            *domain.Cache
	clients          map[int64]*fattail.ClientRecord
	milestonesLoaded map[string]bool
	orderPropID      int64
	dropPropID       int64
}

func NewEngine(target WorkspaceTarget, orders OrderSource, fetcher ReportFetcher, changes ChangeLedger, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		target:           target,
		orders:           orders,
		fetcher:          fetcher,
		changes:          changes,
		opts:             opts,
		logger:           logger,
		cache:            domain.NewCache(),
		clients:          map[int64]*fattail.ClientRecord{},
		milestonesLoaded: map[string]bool{},
	}
}

// Run fetches the named report and processes every row. Setup failures
// abort the run; a failure inside a row is logged and skips only that
// row. The ledger is written back once, at the end.
func (e *Engine) Run(ctx context.Context, reportName string) error {
	// Every log line of this run, including the stage helpers', carries
	// the run id.
	e.logger = e.logger.With("run_id", uuid.NewString())
	logger := e.logger
	logger.Info("sync run starting", "report", reportName)

	table, err := e.fetcher.Fetch(ctx, reportName)
	if err != nil {
		return fmt.Errorf("failed to fetch report: %w", err)
	}
	defer e.fetcher.Cleanup()

	if err := table.Require(requiredColumns...); err != nil {
		return err
	}

	if e.orderPropID, err = e.orders.OrderPropertyID(ctx, orderWorkspaceProperty); err != nil {
		return err
	}
	if e.dropPropID, err = e.orders.DropPropertyID(ctx, dropMilestoneProperty); err != nil {
		return err
	}
	if e.orderPropID == 0 || e.dropPropID == 0 {
		return fmt.Errorf("order system is missing the cross-reference properties %s/%s", orderWorkspaceProperty, dropMilestoneProperty)
	}

	if err := e.prepare(ctx); err != nil {
		return err
	}

	failed := 0
	for row := 0; row < table.Len(); row++ {
		if err := e.processRow(ctx, table, row); err != nil {
			failed++
			logger.Error("record failed", "row", row, "error", err)
		}
	}

	if err := e.changes.Save(); err != nil {
		return fmt.Errorf("failed to save change ledger: %w", err)
	}
	logger.Info("sync run finished", "rows", table.Len(), "failed", failed)
	return nil
}

// prepare loads the target-side world the run resolves against: the
// client directory, every account with its workspaces, and the tasklist
// template catalog.
func (e *Engine) prepare(ctx context.Context) error {
	clients, err := e.orders.Clients(ctx)
	if err != nil {
		return fmt.Errorf("failed to load client directory: %w", err)
	}
	for i := range clients {
		e.clients[clients[i].ClientID] = &clients[i]
	}

	accounts, err := e.target.Accounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}
	var workspaces []*domain.Workspace
	for _, account := range accounts {
		ws, err := e.target.Workspaces(ctx, account.Handle)
		if err != nil {
			return fmt.Errorf("failed to load workspaces for account %s: %w", account.Handle, err)
		}
		workspaces = append(workspaces, ws...)
	}
	e.cache.Populate(accounts, workspaces, nil)

	templates, err := e.target.TasklistTemplates(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tasklist templates: %w", err)
	}
	e.cache.SetTemplates(templates)

	e.logger.Info("cache primed",
		"clients", len(clients),
		"accounts", len(accounts),
		"workspaces", len(workspaces),
		"templates", len(templates))
	return nil
}

func (e *Engine) processRow(ctx context.Context, t *report.Table, row int) error {
	clientID, err := parseID(t.Get(row, colClientID))
	if err != nil {
		return fmt.Errorf("bad client id %q: %w", t.Get(row, colClientID), err)
	}
	orderID, err := parseID(t.Get(row, colOrderID))
	if err != nil {
		return fmt.Errorf("bad order id %q: %w", t.Get(row, colOrderID), err)
	}
	dropID, err := parseID(t.Get(row, colDropID))
	if err != nil {
		return fmt.Errorf("bad drop id %q: %w", t.Get(row, colDropID), err)
	}

	progress, err := newRecordProgress(clientID, orderID, dropID)
	if err != nil {
		return err
	}
	fail := func(err error) error {
		return fmt.Errorf("%s stage (client %d, order %d, drop %d): %w",
			progress.Stage(), clientID, orderID, dropID, err)
	}

	account, err := e.syncAccount(ctx, clientID)
	if err != nil {
		return fail(err)
	}
	progress.Advance()

	workspace, err := e.syncWorkspace(ctx, t, row, account, orderID)
	if err != nil {
		return fail(err)
	}
	progress.Advance()

	dropValues := []string{
		t.Get(row, colDropID), t.Get(row, colPositionPath),
		t.Get(row, colDropDescription), t.Get(row, colDropStart),
		t.Get(row, colDropEnd), t.Get(row, colUnitFeatures),
		t.Get(row, colLineItemKPI), t.Get(row, colSoldAmount),
		t.Get(row, colPackageDropID),
	}
	if !e.changes.Changed(ledger.Drops, dropID, dropValues) {
		e.changes.Record(ledger.Drops, dropID, dropValues)
		progress.Advance()
		progress.Advance()
		return nil
	}

	milestone, err := e.syncMilestone(ctx, t, row, workspace, dropID)
	if err != nil {
		return fail(err)
	}
	progress.Advance()

	if err := e.syncTasklists(ctx, t, row, milestone); err != nil {
		return fail(err)
	}
	progress.Advance()

	// Recorded only after the whole drop subtree succeeded, so the next
	// run retries a half-finished record.
	e.changes.Record(ledger.Drops, dropID, dropValues)
	return nil
}

// syncAccount resolves the account for a client: cache first, then the
// remote by the client's cross-reference handle, then create.
func (e *Engine) syncAccount(ctx context.Context, clientID int64) (*domain.Account, error) {
	account := e.cache.Account(clientID)
	client := e.clients[clientID]
	if client == nil {
		// Clients created after the directory pre-fetch still resolve.
		remote, err := e.orders.ClientByID(ctx, clientID)
		if err != nil {
			return nil, fmt.Errorf("client %d is not in the order system: %w", clientID, err)
		}
		e.clients[clientID] = remote
		client = remote
	}

	if account == nil {
		if validHandle(client.ExternalID) {
			remote, err := e.target.AccountByHandle(ctx, client.ExternalID)
			if err != nil {
				return nil, err
			}
			if remote != nil {
				if remote.ClientID == 0 {
					remote.ClientID = clientID
				}
				e.cache.AddAccount(remote)
				account = remote
			}
		}
	}
	if account == nil {
		handle, err := e.target.CreateAccount(ctx, client.Name, map[string]string{
			edge.FieldClientID: strconv.FormatInt(clientID, 10),
		})
		if err != nil {
			return nil, err
		}
		account = domain.NewAccount(handle, clientID)
		e.cache.AddAccount(account)
		e.logger.Info("account created", "client_id", clientID, "handle", handle)
	}

	if client.ExternalID != account.Handle &&
		(e.opts.Overwrite || !validHandle(client.ExternalID)) {
		client.ExternalID = account.Handle
		if err := e.orders.UpdateClient(ctx, client); err != nil {
			return nil, err
		}
	}
	return account, nil
}

// syncWorkspace resolves the workspace for an order and, when the order
// row's content digest moved, pushes the row's attributes, the roles and
// the cross-reference.
func (e *Engine) syncWorkspace(ctx context.Context, t *report.Table, row int, account *domain.Account, orderID int64) (*domain.Workspace, error) {
	values := []string{
		t.Get(row, colClientID), t.Get(row, colOrderID),
		t.Get(row, colCampaignName), t.Get(row, colIOStatus),
		t.Get(row, colCampaignStart), t.Get(row, colCampaignEnd),
		t.Get(row, colSalesRep), t.Get(row, colProjectManager),
	}
	changed := e.changes.Changed(ledger.Orders, orderID, values)
	ref := t.Get(row, colWorkspaceRef)
	name := displayName(t.Get(row, colCampaignName))

	workspace := e.cache.Workspace(orderID)
	if workspace == nil && validHandle(ref) {
		remote, err := e.target.WorkspaceByHandle(ctx, ref)
		if err != nil {
			return nil, err
		}
		if remote != nil {
			if remote.OrderID == 0 {
				remote.OrderID = orderID
			}
			e.cache.AddWorkspace(account, remote)
			workspace = remote
		}
	}

	created := false
	fields := map[string]string{
		edge.FieldOrderID:        strconv.FormatInt(orderID, 10),
		edge.FieldCampaignStatus: t.Get(row, colIOStatus),
		edge.FieldCampaignStart:  t.Get(row, colCampaignStart),
		edge.FieldCampaignEnd:    t.Get(row, colCampaignEnd),
	}
	switch {
	case workspace == nil:
		handle, err := e.target.CreateWorkspace(ctx, account.Handle, name, e.opts.WorkspaceTemplate, fields)
		if err != nil {
			return nil, err
		}
		workspace = domain.NewWorkspace(handle, orderID)
		workspace.Name = name
		e.cache.AddWorkspace(account, workspace)
		created = true
		e.logger.Info("workspace created", "order_id", orderID, "handle", handle)
	case changed:
		if err := e.target.UpdateWorkspace(ctx, workspace.Handle, name, fields); err != nil {
			return nil, err
		}
		workspace.Name = name
	}

	if created || changed {
		rep := formatName(t.Get(row, colSalesRep))
		if err := e.target.AssignUserToRole(ctx, rep, e.opts.SalesRepRole, workspace.Handle, "sales rep"); err != nil {
			return nil, err
		}
		manager := formatName(displayName(t.Get(row, colProjectManager)))
		if err := e.target.AssignUserToRole(ctx, manager, e.opts.ProjectManagerRole, workspace.Handle, "project manager"); err != nil {
			return nil, err
		}

		if ref != workspace.Handle && (e.opts.Overwrite || !validHandle(ref)) {
			order, err := e.orders.OrderByID(ctx, orderID)
			if err != nil {
				return nil, err
			}
			order.OrderDynamicProperties.DynamicPropertyValue = fattail.UpdateDynamicProperties(
				order.OrderDynamicProperties.DynamicPropertyValue, e.orderPropID, workspace.Handle)
			if err := e.orders.UpdateOrder(ctx, order); err != nil {
				return nil, err
			}
		}
	}

	e.changes.Record(ledger.Orders, orderID, values)
	return workspace, nil
}

// syncMilestone resolves the milestone for a drop: the workspace's
// milestone index, then the remote by cross-reference handle, then by
// composite name, then create.
func (e *Engine) syncMilestone(ctx context.Context, t *report.Table, row int, workspace *domain.Workspace, dropID int64) (*domain.Milestone, error) {
	if err := e.loadMilestones(ctx, workspace); err != nil {
		return nil, err
	}

	ref := t.Get(row, colMilestoneRef)
	composite := fmt.Sprintf("%s-%d", t.Get(row, colPositionPath), dropID)

	milestone := workspace.Milestone(dropID)
	if milestone == nil && validHandle(ref) {
		remote, err := e.target.MilestoneByHandle(ctx, ref)
		if err != nil {
			return nil, err
		}
		if remote != nil {
			if remote.DropID == 0 {
				remote.DropID = dropID
			}
			workspace.AddMilestone(remote)
			milestone = remote
		}
	}
	if milestone == nil {
		if byName := workspace.MilestoneByName(composite); byName != nil {
			byName.DropID = dropID
			workspace.AddMilestone(byName)
			milestone = byName
		}
	}

	details := domain.MilestoneDetails{
		Name:        composite,
		Description: t.Get(row, colDropDescription),
		StartDate:   t.Get(row, colDropStart),
		EndDate:     t.Get(row, colDropEnd),
	}
	fields := map[string]string{
		edge.FieldDropID:       strconv.FormatInt(dropID, 10),
		edge.FieldUnitFeatures: t.Get(row, colUnitFeatures),
		edge.FieldKPI:          t.Get(row, colLineItemKPI),
		edge.FieldDropCost:     t.Get(row, colSoldAmount),
	}
	if milestone == nil {
		handle, err := e.target.CreateMilestone(ctx, workspace.Handle, details, fields)
		if err != nil {
			return nil, err
		}
		milestone = domain.NewMilestone(handle, dropID)
		milestone.Name = composite
		workspace.AddMilestone(milestone)
		e.logger.Info("milestone created", "drop_id", dropID, "handle", handle)
	} else {
		if err := e.target.UpdateMilestone(ctx, milestone.Handle, details, fields); err != nil {
			return nil, err
		}
		milestone.Name = composite
	}

	if ref != milestone.Handle && (e.opts.Overwrite || !validHandle(ref)) {
		drop, err := e.orders.DropByID(ctx, dropID)
		if err != nil {
			return nil, err
		}
		// A package component updates through its parent drop.
		if pkgID, err := parseID(t.Get(row, colPackageDropID)); err == nil && pkgID > 0 {
			drop.ParentDropID = pkgID
		}
		drop.DropDynamicProperties.DynamicPropertyValue = fattail.UpdateDynamicProperties(
			drop.DropDynamicProperties.DynamicPropertyValue, e.dropPropID, milestone.Handle)
		if err := e.orders.UpdateDrop(ctx, drop); err != nil {
			return nil, err
		}
	}
	return milestone, nil
}

// syncTasklists makes sure the milestone carries every tasklist its drop
// type calls for. Tasklists start 30 days ahead of the drop itself.
func (e *Engine) syncTasklists(ctx context.Context, t *report.Table, row int, milestone *domain.Milestone) error {
	templates := e.opts.TasklistTemplates[dropType(t.Get(row, colPositionPath))]
	for _, templateName := range templates {
		template := e.cache.Template(templateName)
		if template == nil {
			e.logger.Warn("tasklist template not found", "template", templateName)
			continue
		}
		short := shortTasklistName(templateName)
		if milestone.Tasklist(short) != nil {
			continue
		}
		start := offsetDate(t.Get(row, colDropStart), -30)
		handle, err := e.target.CreateTasklist(ctx, milestone.Handle, short, template.Handle, start)
		if err != nil {
			return err
		}
		milestone.AddTasklist(&domain.Tasklist{Handle: handle, Name: short})
	}
	return nil
}

// loadMilestones pulls a workspace's milestones once per run, on first
// need.
func (e *Engine) loadMilestones(ctx context.Context, workspace *domain.Workspace) error {
	if e.milestonesLoaded[workspace.Handle] {
		return nil
	}
	milestones, err := e.target.Milestones(ctx, workspace.Handle)
	if err != nil {
		return fmt.Errorf("failed to load milestones for workspace %s: %w", workspace.Handle, err)
	}
	for _, m := range milestones {
		workspace.AddMilestone(m)
	}
	e.milestonesLoaded[workspace.Handle] = true
	return nil
}
