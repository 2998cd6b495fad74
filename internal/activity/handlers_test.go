package activity

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pashagolub/pgxmock/v3"
)

func newActivityApp(fix *serviceFixture, userID string) *fiber.App {
	app := fiber.New()
	authStub := func(c *fiber.Ctx) error {
		if userID != "" {
			c.Locals("user_id", userID)
		}
		return c.Next()
	}
	RegisterRoutes(app.Group("/activities"), fix.svc, authStub)
	return app
}

func jsonPost(target, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestStartRoute(t *testing.T) {
	fix := newServiceFixture(t)
	fix.mock.ExpectExec(`INSERT INTO activity_sessions`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	app := newActivityApp(fix, "user-1")

	resp, err := app.Test(jsonPost("/activities", `{"activity_type":"running","tags":["morning"]}`))
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status: %v", err)
	}

	var view SessionView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Status != StatusActive || view.Type != TypeRunning || len(view.Tags) != 1 {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestStartRouteBadBody(t *testing.T) {
	fix := newServiceFixture(t)
	app := newActivityApp(fix, "user-1")

	resp, err := app.Test(jsonPost("/activities", `not json`))
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("start status: %v", err)
	}
}

func TestStartRouteMissingUser(t *testing.T) {
	fix := newServiceFixture(t)
	app := newActivityApp(fix, "")

	resp, err := app.Test(jsonPost("/activities", `{"activity_type":"running"}`))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("start status: %v", err)
	}
}

func TestStartRouteConflict(t *testing.T) {
	fix := newServiceFixture(t)
	fix.mock.ExpectExec(`INSERT INTO activity_sessions`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	app := newActivityApp(fix, "user-1")

	resp, err := app.Test(jsonPost("/activities", `{"activity_type":"running"}`))
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("first start status: %v", err)
	}
	resp, err = app.Test(jsonPost("/activities", `{"activity_type":"cycling"}`))
	if err != nil || resp.StatusCode != http.StatusConflict {
		t.Fatalf("second start status: %v", err)
	}
}

func TestPointsRoute(t *testing.T) {
	fix := newServiceFixture(t)
	fix.mock.ExpectExec(`INSERT INTO activity_sessions`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	app := newActivityApp(fix, "user-1")

	view, err := fix.svc.Start(context.Background(), "user-1", StartRequest{ActivityType: TypeRunning})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	resp, err := app.Test(jsonPost("/activities/"+view.ID+"/points",
		`{"lat":0,"lon":0.001,"recorded_at":"2024-03-01T08:00:10Z"}`))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("points status: %v", err)
	}

	var pr PointResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !pr.Accepted || pr.PointCount != 1 {
		t.Fatalf("unexpected response: %+v", pr)
	}

	resp, err = app.Test(jsonPost("/activities/unknown/points", `{"lat":0,"lon":0}`))
	if err != nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown session status: %v", err)
	}
}

func TestPauseResumeRoutes(t *testing.T) {
	fix := newServiceFixture(t)
	fix.mock.ExpectExec(`INSERT INTO activity_sessions`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	app := newActivityApp(fix, "user-1")

	view, err := fix.svc.Start(context.Background(), "user-1", StartRequest{ActivityType: TypeRunning})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	resp, err := app.Test(jsonPost("/activities/"+view.ID+"/pause", ""))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("pause status: %v", err)
	}
	var tr TransitionResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		t.Fatalf("decode transition: %v", err)
	}
	if tr.Status != StatusPaused {
		t.Fatalf("unexpected transition: %+v", tr)
	}

	resp, err = app.Test(jsonPost("/activities/"+view.ID+"/pause", ""))
	if err != nil || resp.StatusCode != http.StatusConflict {
		t.Fatalf("double pause status: %v", err)
	}

	resp, err = app.Test(jsonPost("/activities/"+view.ID+"/resume", ""))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("resume status: %v", err)
	}
}

func TestCompleteRouteEmptyBody(t *testing.T) {
	fix := newServiceFixture(t)
	fix.rewards.decision.TotalXP = 10
	fix.rewards.decision.XPAfter = 10
	fix.rewards.decision.Level = 1

	fix.mock.ExpectExec(`INSERT INTO activity_sessions`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	app := newActivityApp(fix, "user-1")

	view, err := fix.svc.Start(context.Background(), "user-1", StartRequest{ActivityType: TypeYoga})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	fix.mock.ExpectBegin()
	fix.mock.ExpectExec(`SET status = 'completed'`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	fix.mock.ExpectCommit()

	// No body at all: completion works with every field defaulted.
	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/activities/"+view.ID+"/complete", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("complete status: %v", err)
	}

	var cr CompleteResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if cr.Session.Status != StatusCompleted || cr.Reward == nil || cr.Reward.TotalXP != 10 {
		t.Fatalf("unexpected response: %+v", cr)
	}
}

func TestCancelRoute(t *testing.T) {
	fix := newServiceFixture(t)
	fix.mock.ExpectExec(`INSERT INTO activity_sessions`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	app := newActivityApp(fix, "user-1")

	view, err := fix.svc.Start(context.Background(), "user-1", StartRequest{ActivityType: TypeRunning})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	fix.mock.ExpectBegin()
	fix.mock.ExpectExec(`SET status = 'cancelled'`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	fix.mock.ExpectCommit()

	resp, err := app.Test(jsonPost("/activities/"+view.ID+"/cancel", `{"reason":"rain"}`))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel status: %v", err)
	}

	var cn CancelResponse
	if err := json.NewDecoder(resp.Body).Decode(&cn); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if cn.Session.Status != StatusCancelled || cn.Session.CancelReason != "rain" {
		t.Fatalf("unexpected response: %+v", cn)
	}
}

func TestPlanRoutes(t *testing.T) {
	fix := newServiceFixture(t)
	app := newActivityApp(fix, "user-1")

	fix.mock.ExpectExec(`INSERT INTO activity_sessions`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	resp, err := app.Test(jsonPost("/activities/plans",
		`{"activity_type":"hiking","planned_start":"2024-03-03T08:00:00Z"}`))
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("plan status: %v", err)
	}
	var plan SessionView
	if err := json.NewDecoder(resp.Body).Decode(&plan); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	if plan.Status != StatusPlanned || plan.PlannedStart == nil {
		t.Fatalf("unexpected plan: %+v", plan)
	}

	fix.mock.ExpectQuery(`status = 'planned'`).
		WithArgs("user-1").
		WillReturnRows(storedSessionRow(plan.ID, "user-1", TypeHiking, StatusPlanned, nil))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/activities/plans", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("list plans status: %v", err)
	}
	var listed struct {
		Plans []SessionView `json:"plans"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		t.Fatalf("decode plans: %v", err)
	}
	if len(listed.Plans) != 1 || listed.Plans[0].ID != plan.ID {
		t.Fatalf("unexpected plans: %+v", listed.Plans)
	}

	fix.mock.ExpectExec(`DELETE FROM activity_sessions`).
		WithArgs(plan.ID, "user-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/activities/plans/"+plan.ID, nil))
	if err != nil || resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete plan status: %v", err)
	}

	fix.mock.ExpectExec(`DELETE FROM activity_sessions`).
		WithArgs(plan.ID, "user-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/activities/plans/"+plan.ID, nil))
	if err != nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("re-delete plan status: %v", err)
	}
}

func TestLiveRouteNoSession(t *testing.T) {
	fix := newServiceFixture(t)
	app := newActivityApp(fix, "user-1")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/activities/live", nil))
	if err != nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("live status: %v", err)
	}
}

func TestListSessionsRoute(t *testing.T) {
	fix := newServiceFixture(t)
	app := newActivityApp(fix, "user-1")

	fix.mock.ExpectQuery(`status = 'completed'`).
		WithArgs("user-1", 5).
		WillReturnRows(storedSessionRow("sess-1", "user-1", TypeRunning, StatusCompleted, nil))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/activities?limit=5", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("list status: %v", err)
	}
	var listed struct {
		Sessions []SessionView `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if len(listed.Sessions) != 1 || listed.Sessions[0].ID != "sess-1" {
		t.Fatalf("unexpected sessions: %+v", listed.Sessions)
	}
}

func TestGetRoute(t *testing.T) {
	fix := newServiceFixture(t)
	fix.mock.ExpectExec(`INSERT INTO activity_sessions`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	app := newActivityApp(fix, "user-1")

	view, err := fix.svc.Start(context.Background(), "user-1", StartRequest{ActivityType: TypeRunning})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/activities/"+view.ID, nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("get status: %v", err)
	}
	var got SessionView
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if got.ID != view.ID || got.Status != StatusActive {
		t.Fatalf("unexpected view: %+v", got)
	}
}

func TestExportRoute(t *testing.T) {
	fix := newServiceFixture(t)
	app := newActivityApp(fix, "user-1")
	const id = "abcdef12-3456-7890-abcd-ef1234567890"

	fix.mock.ExpectQuery(`FROM activity_sessions WHERE id`).
		WithArgs(id).
		WillReturnRows(storedSessionRow(id, "user-1", TypeRunning, StatusCompleted, nil))
	fix.mock.ExpectQuery(`SELECT lat, lon, elevation_m`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"lat", "lon", "elevation_m", "speed_kmh", "accuracy_m", "recorded_at"}).
			AddRow(0.0, 0.0, fptr(12), (*float64)(nil), (*float64)(nil), t0).
			AddRow(0.0, 0.001, fptr(15), (*float64)(nil), (*float64)(nil), t0.Add(10*time.Second)))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/activities/"+id+"/export.gpx", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("export status: %v", err)
	}
	if ct := resp.Header.Get(fiber.HeaderContentType); ct != "application/gpx+xml" {
		t.Fatalf("unexpected content type: %s", ct)
	}
	if cd := resp.Header.Get(fiber.HeaderContentDisposition); !strings.Contains(cd, "running-abcdef12.gpx") {
		t.Fatalf("unexpected disposition: %s", cd)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(raw), "<gpx") {
		t.Fatalf("gpx payload missing: %s", raw)
	}
}
