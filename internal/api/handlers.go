package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opencare/practice-orchestrator/internal/calendar"
	"github.com/opencare/practice-orchestrator/internal/jobs"
	"github.com/opencare/practice-orchestrator/internal/orchestrator"
	"github.com/opencare/practice-orchestrator/internal/scheduling"
	"github.com/opencare/practice-orchestrator/internal/telephony"
)

func availabilityHandler(f *orchestrator.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var from time.Time
		if raw := q.Get("from"); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_from", "from must be RFC3339")
				return
			}
			from = parsed
		}

		days := 0
		if raw := q.Get("days"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "invalid_days", "days must be a positive integer")
				return
			}
			days = n
		}

		slots, err := f.CheckAvailability(r.Context(), q.Get("provider"), from, days)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		resp := make([]SlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, SlotResponse{Provider: s.Provider, Start: s.Window.Start, End: s.Window.End})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func bookAppointmentHandler(f *orchestrator.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.PatientName == "" || req.Provider == "" || req.Start.IsZero() {
			writeError(w, http.StatusBadRequest, "missing_fields", "patient_name, provider and start are required")
			return
		}

		end := req.End
		if end.IsZero() {
			end = req.Start.Add(f.DefaultSlotDuration())
		}

		appt, err := f.BookAppointment(r.Context(), scheduling.BookRequest{
			PatientName:  req.PatientName,
			PatientDOB:   req.PatientDOB,
			PatientPhone: req.PatientPhone,
			Provider:     req.Provider,
			Type:         req.Type,
			Window:       scheduling.Window{Start: req.Start, End: end},
			Notes:        req.Notes,
			NewPatient:   req.NewPatient,
		})
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func findAppointmentHandler(f *orchestrator.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "" {
			writeError(w, http.StatusBadRequest, "missing_name", "name query parameter is required")
			return
		}

		appts, err := f.FindAppointment(r.Context(), name, r.URL.Query().Get("dob"))
		if err != nil {
			handleDomainError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func rescheduleAppointmentHandler(f *orchestrator.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Start.IsZero() {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "start is required")
			return
		}
		end := req.End
		if end.IsZero() {
			end = req.Start.Add(f.DefaultSlotDuration())
		}

		appt, err := f.RescheduleAppointment(r.Context(), id, scheduling.Window{Start: req.Start, End: end})
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(f *orchestrator.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}

		var req CancelRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		appt, err := f.CancelAppointment(r.Context(), id, req.Reason)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func completeAppointmentHandler(f *orchestrator.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}

		appt, err := f.CompleteAppointment(r.Context(), id)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func addWaitlistHandler(f *orchestrator.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddWaitlistRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.PatientName == "" {
			writeError(w, http.StatusBadRequest, "missing_fields", "patient_name is required")
			return
		}

		var desired scheduling.Window
		if req.DesiredStart != nil && req.DesiredEnd != nil {
			desired = scheduling.Window{Start: *req.DesiredStart, End: *req.DesiredEnd}
		}

		entry, err := f.AddToWaitlist(r.Context(), scheduling.WaitlistRequest{
			PatientName:  req.PatientName,
			PatientDOB:   req.PatientDOB,
			PatientPhone: req.PatientPhone,
			Provider:     req.Provider,
			Desired:      desired,
			Type:         req.Type,
			Notes:        req.Notes,
		})
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toEntryResponse(entry))
	}
}

func claimWaitlistHandler(f *orchestrator.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}

		appt, err := f.ClaimWaitlistOffer(r.Context(), id)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func removeWaitlistHandler(f *orchestrator.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}

		entry, err := f.RemoveFromWaitlist(r.Context(), id)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toEntryResponse(entry))
	}
}

var lineClasses = map[string]calendar.LineClass{
	"nurse":       calendar.LineNurse,
	"front-desk":  calendar.LineFrontDesk,
	"billing":     calendar.LineBilling,
	"after-hours": calendar.LineAfterHours,
}

func transferHandler(f *orchestrator.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TransferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		line, ok := lineClasses[req.Line]
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_line", "line must be nurse, front-desk, billing or after-hours")
			return
		}

		res, err := f.InitiateTransfer(r.Context(), req.Caller, line, req.Reason)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		resp := TransferResponse{Routed: res.Routed, Note: res.Note}
		if res.Session != nil {
			s := toSessionResponse(*res.Session)
			resp.Session = &s
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

var signals = map[string]telephony.Signal{
	"answered":  telephony.SignalAnswered,
	"no-answer": telephony.SignalNoAnswer,
	"busy":      telephony.SignalBusy,
	"failed":    telephony.SignalFailed,
	"completed": telephony.SignalCompleted,
}

func callStatusHandler(f *orchestrator.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}

		var req CallStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		sig, ok := signals[req.Signal]
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_signal", "unknown status signal")
			return
		}

		sess, err := f.ReportCallStatus(r.Context(), id, sig)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSessionResponse(sess))
	}
}

func recordingCompleteHandler(f *orchestrator.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}

		var req RecordingCompleteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RecordingRef == "" {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "recording_ref is required")
			return
		}

		sess, err := f.ReportRecordingComplete(r.Context(), id, req.RecordingRef)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSessionResponse(sess))
	}
}

func getCallHandler(f *orchestrator.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}

		sess, err := f.GetCallSession(id)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSessionResponse(sess))
	}
}

func takeMessageHandler(f *orchestrator.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TakeMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Body == "" {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "body is required")
			return
		}

		msg, err := f.TakeMessage(r.Context(), req.CallerName, req.CallerPhone, req.Body)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toMessageResponse(*msg))
	}
}

func listMessagesHandler(f *orchestrator.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}

		msgs, err := f.ListMessages(r.Context(), limit)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		resp := make([]MessageResponse, 0, len(msgs))
		for _, m := range msgs {
			resp = append(resp, toMessageResponse(m))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func runJobHandler(f *orchestrator.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if err := f.RunJob(r.Context(), name); err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"job": name, "result": "ok"})
	}
}

func listJobsHandler(f *orchestrator.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		statuses := f.JobStatuses()
		resp := make([]JobStatusResponse, 0, len(statuses))
		for _, s := range statuses {
			js := JobStatusResponse{Name: s.Name, Spec: s.Spec, Running: s.Running, Next: s.Next}
			if !s.LastRun.IsZero() {
				lr := s.LastRun
				js.LastRun = &lr
			}
			resp = append(resp, js)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// Helpers

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, scheduling.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "waitlist_entry_not_found", err.Error())
	case errors.Is(err, telephony.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "call_session_not_found", err.Error())
	case errors.Is(err, jobs.ErrUnknownJob):
		writeError(w, http.StatusNotFound, "unknown_job", err.Error())
	case errors.Is(err, scheduling.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.Is(err, scheduling.ErrProviderBusy):
		writeError(w, http.StatusConflict, "provider_busy", "provider calendar is being modified, please retry shortly")
	case errors.Is(err, scheduling.ErrExpiredOffer):
		writeError(w, http.StatusConflict, "offer_expired", err.Error())
	case errors.Is(err, scheduling.ErrEntryClaimed):
		writeError(w, http.StatusConflict, "entry_claimed", err.Error())
	case errors.Is(err, jobs.ErrJobRunning):
		writeError(w, http.StatusConflict, "job_running", err.Error())
	case errors.Is(err, scheduling.ErrNotBooked):
		writeError(w, http.StatusConflict, "not_booked", err.Error())
	case errors.Is(err, scheduling.ErrProviderUnknown):
		writeError(w, http.StatusBadRequest, "unknown_provider", err.Error())
	case errors.Is(err, scheduling.ErrInvalidWindow):
		writeError(w, http.StatusBadRequest, "invalid_window", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:           a.ID,
		PatientName:  a.PatientName,
		Provider:     a.Provider,
		Type:         a.Type,
		Start:        a.Window.Start,
		End:          a.Window.End,
		Status:       string(a.Status),
		CancelReason: a.CancelReason,
	}
}

func toEntryResponse(e *scheduling.WaitlistEntry) WaitlistEntryResponse {
	resp := WaitlistEntryResponse{
		ID:              e.ID,
		PatientName:     e.PatientName,
		Provider:        e.Provider,
		Status:          string(e.Status),
		OfferedProvider: e.OfferedProvider,
		OfferExpiresAt:  e.OfferExpiresAt,
	}
	if !e.OfferedWindow.IsZero() {
		start := e.OfferedWindow.Start
		resp.OfferedStart = &start
	}
	return resp
}

func toSessionResponse(s telephony.Session) CallSessionResponse {
	return CallSessionResponse{
		ID:           s.ID,
		Caller:       s.Caller,
		Line:         string(s.Line),
		State:        string(s.State),
		RecordingRef: s.RecordingRef,
	}
}

func toMessageResponse(m scheduling.Message) MessageResponse {
	return MessageResponse{
		ID:           m.ID,
		CallerName:   m.CallerName,
		CallerPhone:  m.CallerPhone,
		Body:         m.Body,
		Kind:         m.Kind,
		RecordingRef: m.RecordingRef,
		CreatedAt:    m.CreatedAt,
	}
}
