package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencare/practice-orchestrator/internal/calendar"
	"github.com/opencare/practice-orchestrator/internal/clock"
	"github.com/opencare/practice-orchestrator/internal/jobs"
	"github.com/opencare/practice-orchestrator/internal/lock"
	"github.com/opencare/practice-orchestrator/internal/notify"
	"github.com/opencare/practice-orchestrator/internal/orchestrator"
	"github.com/opencare/practice-orchestrator/internal/scheduling"
	"github.com/opencare/practice-orchestrator/internal/telephony"
)

func newTestServer(t *testing.T) (*httptest.Server, *calendar.BusinessCalendar, *clock.Fake) {
	t.Helper()

	cal, err := calendar.Load("")
	if err != nil {
		t.Fatalf("load calendar: %v", err)
	}
	clk := clock.NewFake(time.Date(2026, 3, 2, 10, 0, 0, 0, cal.Location()))
	store := scheduling.NewMemoryStore()
	log := zerolog.Nop()

	alloc := scheduling.NewAllocator(store.Appointments(), lock.NewLocalLocker(), cal, clk, log)
	waitlist := scheduling.NewWaitlist(store.Waitlist(), clk, 2*time.Hour, log)
	dialer := telephony.NewLogDialer(log)
	calls := telephony.NewRegistry(dialer, clk, 25*time.Second, log)
	sched := jobs.New(clk, time.Minute, log)

	facade := orchestrator.New(alloc, waitlist, calls, store.Messages(), cal, notify.NewLogSender(log), dialer, sched, clk, log)
	if err := facade.RegisterJobs(); err != nil {
		t.Fatalf("register jobs: %v", err)
	}

	srv := httptest.NewServer(NewRouter(facade, NewHealthChecker(nil, nil), log))
	t.Cleanup(srv.Close)
	return srv, cal, clk
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestBookingOverHTTP(t *testing.T) {
	t.Parallel()
	srv, cal, _ := newTestServer(t)

	start := time.Date(2026, 3, 3, 10, 0, 0, 0, cal.Location()).Format(time.RFC3339)
	body := fmt.Sprintf(`{"patient_name":"Maria Garcia","provider":"Dr. Johnson","type":"checkup","start":%q}`, start)

	resp := postJSON(t, srv.URL+"/v1/appointments", body)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var appt AppointmentResponse
	if err := json.NewDecoder(resp.Body).Decode(&appt); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if appt.Status != "booked" {
		t.Fatalf("status = %q, want booked", appt.Status)
	}
	// End defaults to start plus the configured slot length.
	if got := appt.End.Sub(appt.Start); got != cal.SlotDuration() {
		t.Fatalf("window length = %s, want %s", got, cal.SlotDuration())
	}

	// The same window again is a conflict.
	resp2 := postJSON(t, srv.URL+"/v1/appointments", body)
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusConflict {
		t.Fatalf("conflict status = %d, want 409", resp2.StatusCode)
	}
	var errResp ErrorResponse
	if err := json.NewDecoder(resp2.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errResp.Error != "slot_conflict" {
		t.Fatalf("error code = %q, want slot_conflict", errResp.Error)
	}

	// Cancel frees it.
	resp3 := postJSON(t, srv.URL+"/v1/appointments/"+appt.ID.String()+"/cancel", `{"reason":"test"}`)
	defer resp3.Body.Close()
	if resp3.StatusCode != http.StatusOK {
		t.Fatalf("cancel status = %d, want 200", resp3.StatusCode)
	}
}

func TestBookingValidationOverHTTP(t *testing.T) {
	t.Parallel()
	srv, cal, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
		want int
		code string
	}{
		{"bad json", `{`, http.StatusBadRequest, "invalid_request_body"},
		{"missing fields", `{"patient_name":"x"}`, http.StatusBadRequest, "missing_fields"},
		{
			"unknown provider",
			fmt.Sprintf(`{"patient_name":"x","provider":"Dr. Nobody","start":%q}`,
				time.Date(2026, 3, 3, 10, 0, 0, 0, cal.Location()).Format(time.RFC3339)),
			http.StatusBadRequest, "unknown_provider",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/v1/appointments", tt.body)
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			var errResp ErrorResponse
			if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if errResp.Error != tt.code {
				t.Fatalf("error code = %q, want %q", errResp.Error, tt.code)
			}
		})
	}
}

func TestAvailabilityOverHTTP(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/availability?provider=Dr.+Patel&days=1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var slots []SlotResponse
	if err := json.NewDecoder(resp.Body).Decode(&slots); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(slots) == 0 {
		t.Fatal("no open slots for an empty calendar")
	}
	for _, s := range slots {
		if s.Provider != "Dr. Patel" {
			t.Fatalf("slot for %q, want Dr. Patel only", s.Provider)
		}
	}
}

func TestTransferValidationOverHTTP(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/calls/transfer", `{"caller":"555-0101","line":"janitor"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUnknownJobOverHTTP(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/jobs/not-a-job/run", ``)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d, want 200", path, resp.StatusCode)
		}
	}
}
