package edge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/imeetcentral/fattail-sync/internal/domain"
)

// Custom field api ids carrying the source-system business ids.
const (
	FieldClientID = "c_client_id"
	FieldOrderID  = "c_order_id"
	FieldDropID   = "c_drop_id"
)

// Custom field api ids carrying synced record attributes.
const (
	FieldCampaignStatus = "c_campaign_status"
	FieldCampaignStart  = "c_campaign_start_date"
	FieldCampaignEnd    = "c_campaign_end_date"
	FieldUnitFeatures   = "c_custom_unit_features"
	FieldKPI            = "c_kpi"
	FieldDropCost       = "c_drop_cost_new"
)

// Service exposes the workspace-system operations the reconciliation
// engine consumes, decoding the wire shapes into domain entities.
type Service struct {
	client *Client
	logger *slog.Logger

	users map[string]string // lowercased full name -> user handle, fetched lazily
}

func NewService(client *Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{client: client, logger: logger}
}

// Accounts lists every account carrying a client-id custom field, the rest
// are not managed by this integration and are skipped.
func (s *Service) Accounts(ctx context.Context) ([]*domain.Account, error) {
	var accounts []*domain.Account
	err := s.client.eachItem(ctx, "accounts", nil, cursorLinks, func(raw json.RawMessage) error {
		var env entityEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return err
		}
		clientID, ok := fieldInt64(env.Details.CustomFields, FieldClientID)
		if !ok {
			return nil
		}
		accounts = append(accounts, domain.NewAccount(env.ID, clientID))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// AccountByHandle fetches one account directly. A remote miss returns
// (nil, nil): the caller falls through to its next resolution tier.
func (s *Service) AccountByHandle(ctx context.Context, handle string) (*domain.Account, error) {
	resp, err := s.client.Call(ctx, http.MethodGet, "accounts/"+handle, nil, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, nil
	}
	var env entityEnvelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, err
	}
	clientID, _ := fieldInt64(env.Details.CustomFields, FieldClientID)
	return domain.NewAccount(env.ID, clientID), nil
}

func (s *Service) CreateAccount(ctx context.Context, name string, fields map[string]string) (string, error) {
	s.logger.Info("creating account", "name", name)
	body := accountBody{AccountName: name, CustomFields: customFields(fields)}
	return s.create(ctx, "accounts", body)
}

// Workspaces lists the workspaces under an account, skipping deleted ones
// and those without an order-id custom field.
func (s *Service) Workspaces(ctx context.Context, accountHandle string) ([]*domain.Workspace, error) {
	var workspaces []*domain.Workspace
	path := "accounts/" + accountHandle + "/companyWorkspaces"
	err := s.client.eachItem(ctx, path, nil, cursorLinks, func(raw json.RawMessage) error {
		var env entityEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return err
		}
		if strings.HasPrefix(env.Details.URLShortName, "deleted") {
			return nil
		}
		orderID, ok := fieldInt64(env.Details.CustomFields, FieldOrderID)
		if !ok {
			return nil
		}
		ws := domain.NewWorkspace(env.ID, orderID)
		ws.Name = env.Details.WorkspaceName
		ws.AccountHandle = accountHandle
		workspaces = append(workspaces, ws)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces for account %s: %w", accountHandle, err)
	}
	return workspaces, nil
}

func (s *Service) WorkspaceByHandle(ctx context.Context, handle string) (*domain.Workspace, error) {
	resp, err := s.client.Call(ctx, http.MethodGet, "workspaces/"+handle, nil, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, nil
	}
	var env entityEnvelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, err
	}
	orderID, _ := fieldInt64(env.Details.CustomFields, FieldOrderID)
	ws := domain.NewWorkspace(env.ID, orderID)
	ws.Name = env.Details.WorkspaceName
	return ws, nil
}

func (s *Service) CreateWorkspace(ctx context.Context, accountHandle, name, templateHandle string, fields map[string]string) (string, error) {
	s.logger.Info("creating workspace", "name", name, "account", accountHandle)
	body := workspaceBody{WorkspaceName: name, WorkspaceType: templateHandle, CustomFields: customFields(fields)}
	return s.create(ctx, "accounts/"+accountHandle+"/workspaces", body)
}

func (s *Service) UpdateWorkspace(ctx context.Context, handle, name string, fields map[string]string) error {
	s.logger.Info("updating workspace", "name", name, "workspace", handle)
	body := workspaceBody{WorkspaceName: name, CustomFields: customFields(fields)}
	return s.update(ctx, "workspaces/"+handle+"/updateDetails", body)
}

// Milestones lists the milestones under a workspace, including each
// milestone's existing tasklists, skipping milestones without a drop-id
// custom field.
func (s *Service) Milestones(ctx context.Context, workspaceHandle string) ([]*domain.Milestone, error) {
	var milestones []*domain.Milestone
	path := "workspaces/" + workspaceHandle + "/milestones"
	err := s.client.eachItem(ctx, path, nil, cursorLinks, func(raw json.RawMessage) error {
		var env entityEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return err
		}
		dropID, ok := fieldInt64(env.Details.CustomFields, FieldDropID)
		if !ok {
			return nil
		}
		m := domain.NewMilestone(env.ID, dropID)
		m.Name = env.Details.Title
		m.WorkspaceHandle = workspaceHandle
		milestones = append(milestones, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones for workspace %s: %w", workspaceHandle, err)
	}

	for _, m := range milestones {
		tasklists, err := s.Tasklists(ctx, m.Handle)
		if err != nil {
			return nil, err
		}
		m.Tasklists = tasklists
	}
	return milestones, nil
}

func (s *Service) MilestoneByHandle(ctx context.Context, handle string) (*domain.Milestone, error) {
	resp, err := s.client.Call(ctx, http.MethodGet, "milestones/"+handle, nil, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, nil
	}
	var env entityEnvelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, err
	}
	dropID, _ := fieldInt64(env.Details.CustomFields, FieldDropID)
	m := domain.NewMilestone(env.ID, dropID)
	m.Name = env.Details.Title
	return m, nil
}

func (s *Service) CreateMilestone(ctx context.Context, workspaceHandle string, d domain.MilestoneDetails, fields map[string]string) (string, error) {
	s.logger.Info("creating milestone", "name", d.Name, "workspace", workspaceHandle)
	body := milestoneBody{
		Title:        d.Name,
		StartDate:    d.StartDate,
		DueDate:      d.EndDate,
		Description:  d.Description,
		Reminders:    []string{""},
		CustomFields: customFields(fields),
	}
	return s.create(ctx, "workspaces/"+workspaceHandle+"/milestones", body)
}

func (s *Service) UpdateMilestone(ctx context.Context, handle string, d domain.MilestoneDetails, fields map[string]string) error {
	s.logger.Info("updating milestone", "name", d.Name, "milestone", handle)
	body := milestoneBody{
		Title:        d.Name,
		StartDate:    d.StartDate,
		DueDate:      d.EndDate,
		Description:  d.Description,
		Reminders:    []string{""},
		CustomFields: customFields(fields),
	}
	return s.update(ctx, "milestones/"+handle+"/updateDetails", body)
}

// Tasklists returns a milestone's tasklists keyed by name.
func (s *Service) Tasklists(ctx context.Context, milestoneHandle string) (map[string]*domain.Tasklist, error) {
	tasklists := map[string]*domain.Tasklist{}
	path := "milestones/" + milestoneHandle + "/tasklists"
	err := s.client.eachItem(ctx, path, nil, cursorLinks, func(raw json.RawMessage) error {
		var env entityEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return err
		}
		tasklists[env.Details.TasklistName] = &domain.Tasklist{Handle: env.ID, Name: env.Details.TasklistName}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasklists for milestone %s: %w", milestoneHandle, err)
	}
	return tasklists, nil
}

func (s *Service) CreateTasklist(ctx context.Context, milestoneHandle, name, templateHandle, startDate string) (string, error) {
	s.logger.Info("creating tasklist", "name", name, "milestone", milestoneHandle)
	body := tasklistBody{TasklistName: name, StartDate: startDate, TasklistTemplate: templateHandle}
	return s.create(ctx, "milestones/"+milestoneHandle+"/tasklists", body)
}

// TasklistTemplates returns all tasklist templates keyed by name. The
// endpoint paginates with a lastRecord token rather than links.next.
func (s *Service) TasklistTemplates(ctx context.Context) (map[string]*domain.TasklistTemplate, error) {
	templates := map[string]*domain.TasklistTemplate{}
	params := map[string][]string{"templateOnly": {"true"}}
	err := s.client.eachItem(ctx, "tasklists", params, cursorLastRecord, func(raw json.RawMessage) error {
		var env entityEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return err
		}
		templates[env.Details.TasklistName] = &domain.TasklistTemplate{Handle: env.ID, Name: env.Details.TasklistName}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasklist templates: %w", err)
	}
	return templates, nil
}

// AssignUserToRole resolves a user by full name against the cached user
// directory and adds them to the role on the workspace. An unknown user or
// an empty role handle is a warning, not an error; only transport and
// remote failures propagate.
func (s *Service) AssignUserToRole(ctx context.Context, fullName, roleHandle, workspaceHandle, roleName string) error {
	if fullName == "" {
		return nil
	}
	if err := s.ensureUsers(ctx); err != nil {
		return err
	}

	userHandle, ok := s.users[strings.ToLower(fullName)]
	if !ok {
		s.logger.Warn("user not found, skipping role assignment",
			"user", fullName, "role", roleName)
		return nil
	}
	if roleHandle == "" {
		s.logger.Warn("role not configured, skipping role assignment",
			"user", fullName, "role", roleName)
		return nil
	}

	path := fmt.Sprintf("workspaces/%s/roles/%s/addUsers", workspaceHandle, roleHandle)
	body := addUsersBody{UserIDs: []string{userHandle}, ClearExisting: false}
	resp, err := s.client.Call(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &APIError{Method: http.MethodPost, Path: path, Status: resp.StatusCode, Body: string(resp.Body)}
	}
	return nil
}

// ensureUsers fetches the user directory once per process.
func (s *Service) ensureUsers(ctx context.Context) error {
	if s.users != nil {
		return nil
	}
	users := map[string]string{}
	err := s.client.eachItem(ctx, "users", nil, cursorLastRecord, func(raw json.RawMessage) error {
		var env entityEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return err
		}
		users[strings.ToLower(env.Details.FullName)] = env.ID
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}
	s.users = users
	return nil
}

// create POSTs an entity body; the response body is the new entity handle.
func (s *Service) create(ctx context.Context, path string, body any) (string, error) {
	resp, err := s.client.Call(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", &APIError{Method: http.MethodPost, Path: path, Status: resp.StatusCode, Body: string(resp.Body)}
	}
	return parseHandle(resp.Body), nil
}

func (s *Service) update(ctx context.Context, path string, body any) error {
	resp, err := s.client.Call(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &APIError{Method: http.MethodPost, Path: path, Status: resp.StatusCode, Body: string(resp.Body)}
	}
	return nil
}

// customFields expands a flat key-value map into the wire's list form, in
// stable key order.
func customFields(fields map[string]string) []CustomField {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]CustomField, 0, len(keys))
	for _, k := range keys {
		out = append(out, CustomField{FieldAPIID: k, Value: fields[k]})
	}
	return out
}

// fieldInt64 extracts an integer-valued custom field; values arrive as
// JSON strings or numbers.
func fieldInt64(fields []CustomField, api string) (int64, bool) {
	for _, f := range fields {
		if f.FieldAPIID != api {
			continue
		}
		switch v := f.Value.(type) {
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return 0, false
			}
			return n, true
		case float64:
			return int64(v), true
		case json.Number:
			n, err := v.Int64()
			if err != nil {
				return 0, false
			}
			return n, true
		}
	}
	return 0, false
}

// parseHandle normalizes a create response body into a bare handle; the
// API returns either a raw or a JSON-quoted string.
func parseHandle(body []byte) string {
	return strings.Trim(strings.TrimSpace(string(body)), `"`)
}
