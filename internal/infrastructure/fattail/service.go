package fattail

import (
	"context"
	"fmt"
)

// Service exposes the order-system operations the reconciliation engine
// consumes.
type Service struct {
	client *Client
}

func NewService(client *Client) *Service {
	return &Service{client: client}
}

// SavedReports lists the saved-report catalog.
func (s *Service) SavedReports(ctx context.Context) ([]SavedReport, error) {
	var resp getSavedReportListResponse
	if err := s.client.Call(ctx, "GetSavedReportList", getSavedReportListRequest{}, &resp); err != nil {
		return nil, fmt.Errorf("failed to list saved reports: %w", err)
	}
	return resp.Result.SavedReport, nil
}

// SavedReportQuery fetches the query definition of a saved report.
func (s *Service) SavedReportQuery(ctx context.Context, savedReportID int64) (*ReportQuery, error) {
	var resp getSavedReportQueryResponse
	req := getSavedReportQueryRequest{SavedReportID: savedReportID}
	if err := s.client.Call(ctx, "GetSavedReportQuery", req, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch saved report query %d: %w", savedReportID, err)
	}
	return &resp.Result.ReportQuery, nil
}

// RunReportJob submits a report run and returns the job id to poll.
func (s *Service) RunReportJob(ctx context.Context, query *ReportQuery) (int64, error) {
	var resp runReportJobResponse
	req := runReportJobRequest{ReportJob: reportJobBody{ReportQuery: *query}}
	if err := s.client.Call(ctx, "RunReportJob", req, &resp); err != nil {
		return 0, fmt.Errorf("failed to submit report job: %w", err)
	}
	return resp.Result.ReportJobID, nil
}

// ReportJob fetches the current status of a report job.
func (s *Service) ReportJob(ctx context.Context, jobID int64) (*ReportJob, error) {
	var resp getReportJobResponse
	if err := s.client.Call(ctx, "GetReportJob", getReportJobRequest{ReportJobID: jobID}, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch report job %d: %w", jobID, err)
	}
	return &resp.Result, nil
}

// ReportDownloadURL returns the download location of a finished report.
func (s *Service) ReportDownloadURL(ctx context.Context, jobID int64) (string, error) {
	var resp getReportDownloadURLResponse
	if err := s.client.Call(ctx, "GetReportDownloadUrl", getReportDownloadURLRequest{ReportJobID: jobID}, &resp); err != nil {
		return "", fmt.Errorf("failed to fetch report download url for job %d: %w", jobID, err)
	}
	return resp.Result, nil
}

// Clients fetches every client record.
func (s *Service) Clients(ctx context.Context) ([]ClientRecord, error) {
	var resp getClientListResponse
	if err := s.client.Call(ctx, "GetClientList", getClientListRequest{}, &resp); err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	return resp.Result.Client, nil
}

func (s *Service) ClientByID(ctx context.Context, clientID int64) (*ClientRecord, error) {
	var resp getClientResponse
	if err := s.client.Call(ctx, "GetClient", getClientRequest{ClientID: clientID}, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch client %d: %w", clientID, err)
	}
	return &resp.Result, nil
}

func (s *Service) OrderByID(ctx context.Context, orderID int64) (*Order, error) {
	var resp getOrderResponse
	if err := s.client.Call(ctx, "GetOrder", getOrderRequest{OrderID: orderID}, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch order %d: %w", orderID, err)
	}
	return &resp.Result, nil
}

func (s *Service) DropByID(ctx context.Context, dropID int64) (*Drop, error) {
	var resp getDropResponse
	if err := s.client.Call(ctx, "GetDrop", getDropRequest{DropID: dropID}, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch drop %d: %w", dropID, err)
	}
	return &resp.Result, nil
}

func (s *Service) UpdateClient(ctx context.Context, client *ClientRecord) error {
	if err := s.client.Call(ctx, "UpdateClient", updateClientRequest{Client: *client}, nil); err != nil {
		return fmt.Errorf("failed to update client %d: %w", client.ClientID, err)
	}
	return nil
}

func (s *Service) UpdateOrder(ctx context.Context, order *Order) error {
	if err := s.client.Call(ctx, "UpdateOrder", updateOrderRequest{Order: *order}, nil); err != nil {
		return fmt.Errorf("failed to update order %d: %w", order.OrderID, err)
	}
	return nil
}

// UpdateDrop writes a drop back. Package components (non-zero
// ParentDropID) go through the package endpoint instead of the plain one.
func (s *Service) UpdateDrop(ctx context.Context, drop *Drop) error {
	var err error
	if drop.ParentDropID != 0 {
		req := updatePackageComponentDropsRequest{ComponentDrops: []Drop{*drop}}
		err = s.client.Call(ctx, "UpdatePackageComponentDrops", req, nil)
	} else {
		err = s.client.Call(ctx, "UpdateDrop", updateDropRequest{Drop: *drop}, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to update drop %d: %w", drop.DropID, err)
	}
	return nil
}

// OrderPropertyID resolves an order dynamic property id by name; 0 means
// the property does not exist.
func (s *Service) OrderPropertyID(ctx context.Context, name string) (int64, error) {
	var resp getOrderPropertiesResponse
	if err := s.client.Call(ctx, "GetDynamicPropertiesListForOrder", getOrderPropertiesRequest{}, &resp); err != nil {
		return 0, fmt.Errorf("failed to list order dynamic properties: %w", err)
	}
	return propertyID(resp.Result.DynamicProperty, name), nil
}

// DropPropertyID resolves a drop dynamic property id by name; 0 means the
// property does not exist.
func (s *Service) DropPropertyID(ctx context.Context, name string) (int64, error) {
	var resp getDropPropertiesResponse
	if err := s.client.Call(ctx, "GetDynamicPropertiesListForDrop", getDropPropertiesRequest{}, &resp); err != nil {
		return 0, fmt.Errorf("failed to list drop dynamic properties: %w", err)
	}
	return propertyID(resp.Result.DynamicProperty, name), nil
}

func propertyID(properties []DynamicProperty, name string) int64 {
	for _, p := range properties {
		if p.Name == name {
			return p.DynamicPropertyID
		}
	}
	return 0
}
