package fattail

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func soapResponse(inner string) string {
	return `<?xml version="1.0" encoding="utf-8"?>` +
		`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">` +
		`<soap:Body>` + inner + `</soap:Body></soap:Envelope>`
}

func TestCallEnvelopeRoundTrip(t *testing.T) {
	// 1. Stand in for the SOAP endpoint and capture the request wire format
	var gotAction, gotBody, gotContentType string
	var gotUser, gotPass string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAction = r.Header.Get("SOAPAction")
		gotContentType = r.Header.Get("Content-Type")
		gotUser, gotPass, _ = r.BasicAuth()
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		io.WriteString(w, soapResponse(
			`<GetClientResponse xmlns="https://ws.fattail.com/services/">`+
				`<GetClientResult><ClientID>7</ClientID><Name>Acme</Name>`+
				`<ExternalID>acme1</ExternalID></GetClientResult></GetClientResponse>`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "svc-user", "svc-pass", testLogger())
	service := NewService(client)

	// 2. Fetch a client record through the typed service
	record, err := service.ClientByID(context.Background(), 7)
	if err != nil {
		t.Fatalf("ClientByID failed: %v", err)
	}

	// 3. The request must name the action and carry the credentials
	if gotAction != "https://ws.fattail.com/services/GetClient" {
		t.Errorf("expected GetClient action header, got %q", gotAction)
	}
	if !strings.HasPrefix(gotContentType, "text/xml") {
		t.Errorf("expected text/xml content type, got %q", gotContentType)
	}
	if gotUser != "svc-user" || gotPass != "svc-pass" {
		t.Errorf("expected basic auth credentials, got %q/%q", gotUser, gotPass)
	}
	if !strings.Contains(gotBody, "<GetClient><clientId>7</clientId></GetClient>") {
		t.Errorf("expected GetClient payload in envelope, got %s", gotBody)
	}

	// 4. The response result element must be decoded into the record
	if record.ClientID != 7 || record.Name != "Acme" || record.ExternalID != "acme1" {
		t.Errorf("unexpected client record: %+v", record)
	}
}

func TestCallFaultIsNotRetried(t *testing.T) {
	// 1. The endpoint rejects every request with a SOAP fault
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, soapResponse(
			`<soap:Fault><faultcode>soap:Server</faultcode>`+
				`<faultstring>no such order</faultstring></soap:Fault>`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "u", "p", testLogger())
	service := NewService(client)

	// 2. The fault surfaces as a typed error
	_, err := service.OrderByID(context.Background(), 99)
	var fault *Fault
	if !errors.As(err, &fault) {
		t.Fatalf("expected a Fault, got %v", err)
	}
	if fault.Message != "no such order" {
		t.Errorf("unexpected fault message %q", fault.Message)
	}

	// 3. A fault is a definitive answer, not a transport problem
	if requests != 1 {
		t.Errorf("expected a single request, got %d", requests)
	}
}

func TestCallRetriesTransportFailures(t *testing.T) {
	// 1. Drop the connection twice before answering properly
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests < 3 {
			conn, _, _ := w.(http.Hijacker).Hijack()
			conn.Close()
			return
		}
		io.WriteString(w, soapResponse(
			`<RunReportJobResponse><RunReportJobResult>`+
				`<ReportJobID>42</ReportJobID></RunReportJobResult></RunReportJobResponse>`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "u", "p", testLogger())
	service := NewService(client)

	// 2. The call succeeds inside the retry budget
	jobID, err := service.RunReportJob(context.Background(), &ReportQuery{ReportID: 5})
	if err != nil {
		t.Fatalf("RunReportJob failed: %v", err)
	}
	if jobID != 42 {
		t.Errorf("expected job id 42, got %d", jobID)
	}
	if requests != 3 {
		t.Errorf("expected 3 attempts, got %d", requests)
	}
}

func TestUpdateDropRouting(t *testing.T) {
	// 1. Record which action each update lands on
	var actions []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		action := strings.TrimPrefix(r.Header.Get("SOAPAction"), "https://ws.fattail.com/services/")
		actions = append(actions, action)
		io.WriteString(w, soapResponse(`<`+action+`Response/>`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "u", "p", testLogger())
	service := NewService(client)

	// 2. A standalone drop goes through the plain update
	if err := service.UpdateDrop(context.Background(), &Drop{DropID: 1}); err != nil {
		t.Fatalf("UpdateDrop failed: %v", err)
	}

	// 3. A package component goes through the package endpoint
	if err := service.UpdateDrop(context.Background(), &Drop{DropID: 2, ParentDropID: 10}); err != nil {
		t.Fatalf("UpdateDrop (component) failed: %v", err)
	}

	want := []string{"UpdateDrop", "UpdatePackageComponentDrops"}
	if len(actions) != len(want) || actions[0] != want[0] || actions[1] != want[1] {
		t.Errorf("expected actions %v, got %v", want, actions)
	}
}

func TestPropertyIDLookup(t *testing.T) {
	// 1. Serve a fixed dynamic-property catalog
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, soapResponse(
			`<GetDynamicPropertiesListForOrderResponse>`+
				`<GetDynamicPropertiesListForOrderResult>`+
				`<DynamicProperty><DynamicPropertyID>31</DynamicPropertyID>`+
				`<Name>H_CD_Workspace_ID</Name></DynamicProperty>`+
				`<DynamicProperty><DynamicPropertyID>32</DynamicPropertyID>`+
				`<Name>Other</Name></DynamicProperty>`+
				`</GetDynamicPropertiesListForOrderResult>`+
				`</GetDynamicPropertiesListForOrderResponse>`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "u", "p", testLogger())
	service := NewService(client)

	// 2. A known name resolves to its id
	id, err := service.OrderPropertyID(context.Background(), "H_CD_Workspace_ID")
	if err != nil {
		t.Fatalf("OrderPropertyID failed: %v", err)
	}
	if id != 31 {
		t.Errorf("expected property id 31, got %d", id)
	}

	// 3. An unknown name resolves to zero, not an error
	id, err = service.OrderPropertyID(context.Background(), "Missing")
	if err != nil {
		t.Fatalf("OrderPropertyID failed: %v", err)
	}
	if id != 0 {
		t.Errorf("expected zero id for unknown property, got %d", id)
	}
}

func TestUpdateDynamicProperties(t *testing.T) {
	properties := []DynamicPropertyValue{{DynamicPropertyID: 1, Value: "a"}}

	// 1. An existing property id is overwritten in place
	properties = UpdateDynamicProperties(properties, 1, "b")
	if len(properties) != 1 || properties[0].Value != "b" {
		t.Errorf("expected in-place overwrite, got %+v", properties)
	}

	// 2. A new property id is appended
	properties = UpdateDynamicProperties(properties, 2, "c")
	if len(properties) != 2 || properties[1].DynamicPropertyID != 2 || properties[1].Value != "c" {
		t.Errorf("expected appended property, got %+v", properties)
	}
}
