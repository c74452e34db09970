package api

import (
	"time"

	"github.com/google/uuid"
)

type BookAppointmentRequest struct {
	PatientName  string    `json:"patient_name"`
	PatientDOB   string    `json:"patient_dob"`
	PatientPhone string    `json:"patient_phone"`
	Provider     string    `json:"provider"`
	Type         string    `json:"type"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	NewPatient   bool      `json:"new_patient,omitempty"`
}

type RescheduleRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end,omitempty"`
}

type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

type AppointmentResponse struct {
	ID           uuid.UUID `json:"id"`
	PatientName  string    `json:"patient_name"`
	Provider     string    `json:"provider"`
	Type         string    `json:"type"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Status       string    `json:"status"`
	CancelReason string    `json:"cancel_reason,omitempty"`
}

type SlotResponse struct {
	Provider string    `json:"provider"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

type AddWaitlistRequest struct {
	PatientName  string     `json:"patient_name"`
	PatientDOB   string     `json:"patient_dob"`
	PatientPhone string     `json:"patient_phone"`
	Provider     string     `json:"provider,omitempty"`
	DesiredStart *time.Time `json:"desired_start,omitempty"`
	DesiredEnd   *time.Time `json:"desired_end,omitempty"`
	Type         string     `json:"type"`
	Notes        string     `json:"notes,omitempty"`
}

type WaitlistEntryResponse struct {
	ID              uuid.UUID  `json:"id"`
	PatientName     string     `json:"patient_name"`
	Provider        string     `json:"provider,omitempty"`
	Status          string     `json:"status"`
	OfferedProvider string     `json:"offered_provider,omitempty"`
	OfferedStart    *time.Time `json:"offered_start,omitempty"`
	OfferExpiresAt  *time.Time `json:"offer_expires_at,omitempty"`
}

type TransferRequest struct {
	Caller string `json:"caller"`
	Line   string `json:"line"`
	Reason string `json:"reason,omitempty"`
}

type TransferResponse struct {
	Routed  bool                 `json:"routed"`
	Note    string               `json:"note,omitempty"`
	Session *CallSessionResponse `json:"session,omitempty"`
}

type CallStatusRequest struct {
	Signal string `json:"signal"`
}

type RecordingCompleteRequest struct {
	RecordingRef string `json:"recording_ref"`
}

type CallSessionResponse struct {
	ID           uuid.UUID `json:"id"`
	Caller       string    `json:"caller"`
	Line         string    `json:"line"`
	State        string    `json:"state"`
	RecordingRef string    `json:"recording_ref,omitempty"`
}

type TakeMessageRequest struct {
	CallerName  string `json:"caller_name"`
	CallerPhone string `json:"caller_phone"`
	Body        string `json:"body"`
}

type MessageResponse struct {
	ID           uuid.UUID `json:"id"`
	CallerName   string    `json:"caller_name,omitempty"`
	CallerPhone  string    `json:"caller_phone"`
	Body         string    `json:"body"`
	Kind         string    `json:"kind"`
	RecordingRef string    `json:"recording_ref,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type JobStatusResponse struct {
	Name    string     `json:"name"`
	Spec    string     `json:"spec"`
	Running bool       `json:"running"`
	LastRun *time.Time `json:"last_run,omitempty"`
	Next    time.Time  `json:"next"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
