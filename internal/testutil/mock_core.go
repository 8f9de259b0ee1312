// Package testutil provides a fake DIRBS core system for tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/Sternrassler/drs-bulk-compliance/pkg/compliance"
)

// MockCore is a configurable fake of the core system imei-batch endpoint.
type MockCore struct {
	server *httptest.Server

	mu          sync.Mutex
	records     map[string]compliance.Record
	failIMEIs   map[string]int
	failNext    int
	failStatus  int
	malformNext int
	delay       time.Duration

	// Tracking
	requestCount      int
	requestedIMEIs    []string
	lastRequestHeader http.Header
}

// NewMockCore starts a fake core system. Unknown IMEIs are answered with
// a registered, not stolen, network-seen record.
func NewMockCore() *MockCore {
	m := &MockCore{
		records:    make(map[string]compliance.Record),
		failIMEIs:  make(map[string]int),
		failStatus: http.StatusInternalServerError,
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the base URL to configure as core base URL.
func (m *MockCore) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCore) Close() {
	m.server.Close()
}

// SetRecord fixes the record returned for rec.IMEINorm.
func (m *MockCore) SetRecord(rec compliance.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.IMEINorm] = rec
}

// FailNext makes the next n requests fail with status.
func (m *MockCore) FailNext(n, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
	m.failStatus = status
}

// FailIMEI fails the next `times` requests containing imei with a 500.
// A negative times fails forever.
func (m *MockCore) FailIMEI(imei string, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failIMEIs[imei] = times
}

// MalformNext makes the next n successful responses return an invalid body.
func (m *MockCore) MalformNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.malformNext = n
}

// SetDelay delays every response.
func (m *MockCore) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// RequestCount returns the number of imei-batch requests received.
func (m *MockCore) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// RequestedIMEIs returns every IMEI received, in arrival order.
func (m *MockCore) RequestedIMEIs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.requestedIMEIs...)
}

// LastRequestHeader returns the headers of the latest request.
func (m *MockCore) LastRequestHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequestHeader
}

func (m *MockCore) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/imei-batch" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req struct {
		IMEIs []string `json:"imeis"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"message": "invalid body"}`, http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.requestCount++
	m.requestedIMEIs = append(m.requestedIMEIs, req.IMEIs...)
	m.lastRequestHeader = r.Header.Clone()
	delay := m.delay

	status := http.StatusOK
	if m.failNext > 0 {
		m.failNext--
		status = m.failStatus
	}
	for _, imei := range req.IMEIs {
		left, ok := m.failIMEIs[imei]
		if !ok || left == 0 {
			continue
		}
		if left > 0 {
			m.failIMEIs[imei] = left - 1
		}
		status = http.StatusInternalServerError
	}

	malformed := false
	if status == http.StatusOK && m.malformNext > 0 {
		m.malformNext--
		malformed = true
	}

	results := make([]compliance.Record, 0, len(req.IMEIs))
	for _, imei := range req.IMEIs {
		rec, ok := m.records[imei]
		if !ok {
			rec = RegisteredRecord(imei, true)
		}
		results = append(results, rec)
	}
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if status != http.StatusOK {
		w.WriteHeader(status)
		w.Write([]byte(`{"message": "core unavailable"}`))
		return
	}

	w.WriteHeader(http.StatusOK)
	if malformed {
		w.Write([]byte(`{"results": [`))
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"results": results})
}

func boolPtr(b bool) *bool { return &b }

// RegisteredRecord returns a registered, not stolen record.
func RegisteredRecord(imei string, seen bool) compliance.Record {
	return NewRecord(imei, compliance.FlagConfirmed, compliance.FlagNull, seen)
}

// NewRecord builds a record with the given registration and stolen flags.
func NewRecord(imei string, registration, stolen compliance.Flag, seen bool) compliance.Record {
	return compliance.Record{
		IMEINorm:            imei,
		StolenStatus:        statusFor(stolen),
		RegistrationStatus:  statusFor(registration),
		ClassificationState: &compliance.ClassificationState{},
		RealtimeChecks:      &compliance.RealtimeChecks{EverObservedOnNetwork: seen},
	}
}

func statusFor(f compliance.Flag) *compliance.ProvisionalStatus {
	switch f {
	case compliance.FlagPending:
		return &compliance.ProvisionalStatus{ProvisionalOnly: boolPtr(true)}
	case compliance.FlagConfirmed:
		return &compliance.ProvisionalStatus{ProvisionalOnly: boolPtr(false)}
	default:
		return &compliance.ProvisionalStatus{}
	}
}
