package fattail

import "encoding/xml"

// SavedReport is one entry of the saved-report catalog.
type SavedReport struct {
	SavedReportID int64  `xml:"SavedReportID"`
	Name          string `xml:"Name"`
}

// ReportQuery is a saved report's query definition, resubmitted as a job
// after the date parameters are rewritten.
type ReportQuery struct {
	ReportID           int64              `xml:"ReportID,omitempty"`
	Name               string             `xml:"Name,omitempty"`
	QueryParameterList QueryParameterList `xml:"QueryParameterList"`
}

type QueryParameterList struct {
	QueryParameter []QueryParameter `xml:"QueryParameter"`
}

type QueryParameter struct {
	ParameterType  string `xml:"ParameterType"`
	ParameterValue string `xml:"ParameterValue"`
}

// ReportJob is the status of a submitted report run.
type ReportJob struct {
	ReportJobID int64  `xml:"ReportJobID"`
	Status      string `xml:"Status"`
}

// ClientRecord is a source-system client. ExternalID is the
// cross-reference field holding the target account handle.
type ClientRecord struct {
	ClientID   int64  `xml:"ClientID"`
	Name       string `xml:"Name"`
	ExternalID string `xml:"ExternalID"`
}

// Order is a source-system order record; the workspace cross-reference
// lives in its dynamic properties.
type Order struct {
	OrderID                int64                 `xml:"OrderID"`
	CampaignName           string                `xml:"CampaignName,omitempty"`
	OrderDynamicProperties DynamicPropertyValues `xml:"OrderDynamicProperties"`
}

// Drop is a source-system drop record. A non-zero ParentDropID marks it as
// a component of a package and routes updates through the package
// endpoint.
type Drop struct {
	DropID                int64                 `xml:"DropID"`
	ParentDropID          int64                 `xml:"ParentDropID,omitempty"`
	DropDynamicProperties DynamicPropertyValues `xml:"DropDynamicProperties"`
}

type DynamicPropertyValues struct {
	DynamicPropertyValue []DynamicPropertyValue `xml:"DynamicPropertyValue"`
}

// DynamicPropertyValue is one property-id/value pair on a record.
type DynamicPropertyValue struct {
	DynamicPropertyID int64  `xml:"DynamicPropertyID"`
	Value             string `xml:"Value"`
}

// DynamicProperty is a property definition, looked up by name to learn its
// id.
type DynamicProperty struct {
	DynamicPropertyID int64  `xml:"DynamicPropertyID"`
	Name              string `xml:"Name"`
}

// UpdateDynamicProperties sets the value for the property id in the list,
// appending a new entry when the id is not present. Find-or-append, never
// duplicate.
func UpdateDynamicProperties(properties []DynamicPropertyValue, id int64, value string) []DynamicPropertyValue {
	for i := range properties {
		if properties[i].DynamicPropertyID == id {
			properties[i].Value = value
			return properties
		}
	}
	return append(properties, DynamicPropertyValue{DynamicPropertyID: id, Value: value})
}

// Request payloads. The XMLName names the SOAP action element.

type getSavedReportListRequest struct {
	XMLName xml.Name `xml:"GetSavedReportList"`
}

type getSavedReportQueryRequest struct {
	XMLName       xml.Name `xml:"GetSavedReportQuery"`
	SavedReportID int64    `xml:"savedReportId"`
}

type runReportJobRequest struct {
	XMLName   xml.Name      `xml:"RunReportJob"`
	ReportJob reportJobBody `xml:"reportJob"`
}

type reportJobBody struct {
	ReportQuery ReportQuery `xml:"ReportQuery"`
}

type getReportJobRequest struct {
	XMLName     xml.Name `xml:"GetReportJob"`
	ReportJobID int64    `xml:"reportJobId"`
}

type getReportDownloadURLRequest struct {
	XMLName     xml.Name `xml:"GetReportDownloadUrl"`
	ReportJobID int64    `xml:"reportJobId"`
}

type getClientListRequest struct {
	XMLName xml.Name `xml:"GetClientList"`
}

type getClientRequest struct {
	XMLName  xml.Name `xml:"GetClient"`
	ClientID int64    `xml:"clientId"`
}

type getOrderRequest struct {
	XMLName xml.Name `xml:"GetOrder"`
	OrderID int64    `xml:"orderId"`
}

type getDropRequest struct {
	XMLName xml.Name `xml:"GetDrop"`
	DropID  int64    `xml:"dropId"`
}

type updateClientRequest struct {
	XMLName xml.Name     `xml:"UpdateClient"`
	Client  ClientRecord `xml:"client"`
}

type updateOrderRequest struct {
	XMLName xml.Name `xml:"UpdateOrder"`
	Order   Order    `xml:"order"`
}

type updateDropRequest struct {
	XMLName xml.Name `xml:"UpdateDrop"`
	Drop    Drop     `xml:"drop"`
}

type updatePackageComponentDropsRequest struct {
	XMLName        xml.Name `xml:"UpdatePackageComponentDrops"`
	ComponentDrops []Drop   `xml:"componentDrops>Drop"`
}

type getOrderPropertiesRequest struct {
	XMLName xml.Name `xml:"GetDynamicPropertiesListForOrder"`
}

type getDropPropertiesRequest struct {
	XMLName xml.Name `xml:"GetDynamicPropertiesListForDrop"`
}

// Response envelopes.

type getSavedReportListResponse struct {
	XMLName xml.Name `xml:"GetSavedReportListResponse"`
	Result  struct {
		SavedReport []SavedReport `xml:"SavedReport"`
	} `xml:"GetSavedReportListResult"`
}

type getSavedReportQueryResponse struct {
	XMLName xml.Name `xml:"GetSavedReportQueryResponse"`
	Result  struct {
		ReportQuery ReportQuery `xml:"ReportQuery"`
	} `xml:"GetSavedReportQueryResult"`
}

type runReportJobResponse struct {
	XMLName xml.Name `xml:"RunReportJobResponse"`
	Result  struct {
		ReportJobID int64 `xml:"ReportJobID"`
	} `xml:"RunReportJobResult"`
}

type getReportJobResponse struct {
	XMLName xml.Name  `xml:"GetReportJobResponse"`
	Result  ReportJob `xml:"GetReportJobResult"`
}

type getReportDownloadURLResponse struct {
	XMLName xml.Name `xml:"GetReportDownloadUrlResponse"`
	Result  string   `xml:"GetReportDownloadURLResult"`
}

type getClientListResponse struct {
	XMLName xml.Name `xml:"GetClientListResponse"`
	Result  struct {
		Client []ClientRecord `xml:"Client"`
	} `xml:"GetClientListResult"`
}

type getClientResponse struct {
	XMLName xml.Name     `xml:"GetClientResponse"`
	Result  ClientRecord `xml:"GetClientResult"`
}

type getOrderResponse struct {
	XMLName xml.Name `xml:"GetOrderResponse"`
	Result  Order    `xml:"GetOrderResult"`
}

type getDropResponse struct {
	XMLName xml.Name `xml:"GetDropResponse"`
	Result  Drop     `xml:"GetDropResult"`
}

type getOrderPropertiesResponse struct {
	XMLName xml.Name `xml:"GetDynamicPropertiesListForOrderResponse"`
	Result  struct {
		DynamicProperty []DynamicProperty `xml:"DynamicProperty"`
	} `xml:"GetDynamicPropertiesListForOrderResult"`
}

type getDropPropertiesResponse struct {
	XMLName xml.Name `xml:"GetDynamicPropertiesListForDropResponse"`
	Result  struct {
		DynamicProperty []DynamicProperty `xml:"DynamicProperty"`
	} `xml:"GetDynamicPropertiesListForDropResult"`
}
