package tracking

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"backend-fieldforce/internal/store"

	"github.com/gofiber/fiber/v2"
)

func passThrough(c *fiber.Ctx) error { return c.Next() }

func newTestApp(t *testing.T, deps Deps) (*fiber.App, *Controller) {
	t.Helper()
	ctrl := newTestController(t, deps)
	app := fiber.New()
	RegisterRoutes(app.Group("/attendance"), ctrl, passThrough)
	return app, ctrl
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) *http.Response {
	t.Helper()
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	return resp
}

func TestAttendanceHandlers(t *testing.T) {
	st := newMemStore()
	col := &manualCollector{}
	app, ctrl := newTestApp(t, Deps{Store: st, Collector: col})

	resp := postJSON(t, app, "/attendance/start", startRequest{EmployeeID: "E1", EmployeeName: "Alice"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status %d", resp.StatusCode)
	}

	col.fix(Position{Lat: 12.9, Lng: 77.6})
	ctrl.barrier()

	req := httptest.NewRequest(http.MethodGet, "/attendance/status", nil)
	resp, _ = app.Test(req)
	var snap StatusSnapshot
	_ = json.NewDecoder(resp.Body).Decode(&snap)
	if !snap.IsActive || snap.EmployeeID != "E1" {
		t.Fatalf("unexpected status %+v", snap)
	}

	req = httptest.NewRequest(http.MethodGet, "/attendance/pending/E1", nil)
	resp, _ = app.Test(req)
	var pending struct {
		Count int `json:"count"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&pending)
	if pending.Count != 1 {
		t.Fatalf("expected 1 pending, got %d", pending.Count)
	}

	resp = postJSON(t, app, "/attendance/stop", stopRequest{CheckOutData: "visited 3 dealers"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status %d", resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodGet, "/attendance/status", nil)
	resp, _ = app.Test(req)
	snap = StatusSnapshot{}
	_ = json.NewDecoder(resp.Body).Decode(&snap)
	if snap.IsActive {
		t.Fatalf("expected inactive after stop")
	}

	req = httptest.NewRequest(http.MethodDelete, "/attendance/data/E1", nil)
	resp, _ = app.Test(req)
	var cleared struct {
		RowsRemoved int64 `json:"rows_removed"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&cleared)
	if cleared.RowsRemoved != 1 {
		t.Fatalf("expected 1 row removed, got %d", cleared.RowsRemoved)
	}
}

func TestStartHandlerValidation(t *testing.T) {
	app, _ := newTestApp(t, Deps{Collector: &manualCollector{}})

	resp := postJSON(t, app, "/attendance/start", startRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", resp.StatusCode)
	}

	req := httptest.NewRequest(http.MethodPost, "/attendance/start", bytes.NewReader([]byte("{")))
	req.Header.Set("Content-Type", "application/json")
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request for malformed body, got %d", resp.StatusCode)
	}
}

func TestStartHandlerPermissionDenied(t *testing.T) {
	app, _ := newTestApp(t, Deps{Collector: &manualCollector{armErr: ErrPermissionDenied}})

	resp := postJSON(t, app, "/attendance/start", startRequest{EmployeeID: "E1", EmployeeName: "Alice"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected forbidden, got %d", resp.StatusCode)
	}
}

func TestIngestRoute(t *testing.T) {
	st := newMemStore()
	push := NewPushCollector()
	ctrl := newTestController(t, Deps{Store: st, Collector: push})
	app := fiber.New()
	RegisterRoutes(app.Group("/attendance"), ctrl, passThrough)
	RegisterIngest(app.Group("/attendance"), push, passThrough)

	// fix before any shift is dropped
	resp := postJSON(t, app, "/attendance/fix", fixRequest{Lat: 12.9, Lng: 77.6})
	var ack struct {
		Accepted bool `json:"accepted"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&ack)
	if ack.Accepted {
		t.Fatalf("fix without a shift must be dropped")
	}

	if err := ctrl.Start("E1", "Alice"); err != nil {
		t.Fatalf("start: %v", err)
	}
	resp = postJSON(t, app, "/attendance/fix", fixRequest{Lat: 12.9, Lng: 77.6, AccuracyM: 7})
	ack.Accepted = false
	_ = json.NewDecoder(resp.Body).Decode(&ack)
	if !ack.Accepted {
		t.Fatalf("fix during shift must be accepted")
	}
	ctrl.barrier()
	if st.sampleCount() != 1 {
		t.Fatalf("expected 1 sample written, got %d", st.sampleCount())
	}

	// bridge-reported permission loss ends the shift
	resp = postJSON(t, app, "/attendance/fix", fixRequest{PermissionDenied: true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("permission report status %d", resp.StatusCode)
	}
	ctrl.barrier()
	if ctrl.Status().IsActive {
		t.Fatalf("expected shift ended after permission loss")
	}
	checkouts := st.checkoutList()
	if len(checkouts) != 1 || checkouts[0].Reason != store.ReasonPermissionDenied {
		t.Fatalf("expected PERMISSION_DENIED checkout, got %+v", checkouts)
	}
}

func TestStopHandlerWithoutShift(t *testing.T) {
	app, _ := newTestApp(t, Deps{Collector: &manualCollector{}})

	req := httptest.NewRequest(http.MethodPost, "/attendance/stop", nil)
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict, got %d", resp.StatusCode)
	}
}
