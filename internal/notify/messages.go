package notify

import (
	"fmt"
	"time"
)

const windowFormat = "Mon Jan 2 at 3:04 PM"

// Body builders for the patient-facing texts. Kept together so wording
// changes don't touch orchestration code.

func ConfirmationBody(business, patient, provider, apptType string, start time.Time) string {
	return fmt.Sprintf(
		"%s\nYour appointment is confirmed!\n  Patient: %s\n  Provider: %s\n  When: %s\n  Type: %s\n\nPlease arrive 15 min early with your insurance card and photo ID.",
		business, patient, provider, start.Format(windowFormat), apptType,
	)
}

func RescheduledBody(business, provider string, start time.Time) string {
	return fmt.Sprintf(
		"%s\nYour appointment with %s has been moved to %s.",
		business, provider, start.Format(windowFormat),
	)
}

func CancelledBody(business, provider string, start time.Time) string {
	return fmt.Sprintf(
		"%s\nYour appointment with %s on %s has been cancelled. Call us to rebook.",
		business, provider, start.Format(windowFormat),
	)
}

func ReminderBody(business, provider, apptType string, start time.Time) string {
	return fmt.Sprintf(
		"Reminder from %s:\nYou have an appointment TOMORROW\n  %s with %s\n  %s",
		business, apptType, provider, start.Format(windowFormat),
	)
}

func FollowupBody(business, patient, provider string) string {
	return fmt.Sprintf(
		"%s\nHi %s, thank you for visiting %s. If you have any questions about your visit, give us a call.",
		business, patient, provider,
	)
}

func WaitlistOfferBody(business, patient, provider string, start time.Time, expires time.Time) string {
	return fmt.Sprintf(
		"%s\nGood news %s! A slot with %s on %s just opened up. Call us before %s to claim it.",
		business, patient, provider, start.Format(windowFormat), expires.Format(windowFormat),
	)
}

func IntakeFormBody(business, patient string) string {
	return fmt.Sprintf(
		"%s\nWelcome %s! Please complete your new patient intake form before your first visit.",
		business, patient,
	)
}
