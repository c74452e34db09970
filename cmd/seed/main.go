package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opencare/practice-orchestrator/internal/calendar"
	"github.com/opencare/practice-orchestrator/internal/db"
	"github.com/opencare/practice-orchestrator/internal/scheduling"
)

// Seeds a Postgres instance with a believable week of bookings plus a
// waitlist backlog, for load-testing the API against real data volumes.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	cal, err := calendar.Load(os.Getenv("CALENDAR_PATH"))
	if err != nil {
		log.Fatalf("load calendar: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedAppointments(context.Background(), pool, cal, 0.6); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}
	if err := seedWaitlist(context.Background(), pool, cal, 40); err != nil {
		log.Fatalf("seed waitlist: %v", err)
	}

	log.Println("seed complete")
}

var visitTypes = []string{"checkup", "follow-up", "sick visit", "physical", "consultation"}

// seedAppointments books roughly fillRate of every provider's slots over the
// next five business days.
func seedAppointments(ctx context.Context, pool *pgxpool.Pool, cal *calendar.BusinessCalendar, fillRate float64) error {
	store := scheduling.NewPgStore(pool)
	repo := store.Appointments()

	days := cal.BusinessDays(time.Now().In(cal.Location()), 5)
	count := 0

	for _, p := range cal.Providers() {
		for _, day := range days {
			for _, start := range cal.SlotStarts(day) {
				if gofakeit.Float64Range(0, 1) > fillRate {
					continue
				}

				now := time.Now()
				appt := scheduling.Appointment{
					ID:           uuid.New(),
					PatientName:  gofakeit.Name(),
					PatientDOB:   gofakeit.DateRange(time.Date(1940, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)).Format("2006-01-02"),
					PatientPhone: gofakeit.Phone(),
					Provider:     p.Name,
					Type:         visitTypes[gofakeit.Number(0, len(visitTypes)-1)],
					Window:       scheduling.NewWindow(start, cal.SlotDuration()),
					Status:       scheduling.StatusBooked,
					NewPatient:   gofakeit.Bool(),
					CreatedAt:    now,
					UpdatedAt:    now,
				}
				if err := repo.Create(ctx, &appt); err != nil {
					return err
				}
				count++
			}
		}
	}

	log.Printf("appointments seeded: %d", count)
	return nil
}

func seedWaitlist(ctx context.Context, pool *pgxpool.Pool, cal *calendar.BusinessCalendar, count int) error {
	store := scheduling.NewPgStore(pool)
	repo := store.Waitlist()

	providers := cal.Providers()
	for i := 0; i < count; i++ {
		now := time.Now()
		entry := scheduling.WaitlistEntry{
			ID:           uuid.New(),
			PatientName:  gofakeit.Name(),
			PatientPhone: gofakeit.Phone(),
			Type:         visitTypes[gofakeit.Number(0, len(visitTypes)-1)],
			Status:       scheduling.WaitlistWaiting,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		// Roughly half the backlog insists on a particular provider.
		if gofakeit.Bool() {
			entry.Provider = providers[gofakeit.Number(0, len(providers)-1)].Name
		}
		if err := repo.Create(ctx, &entry); err != nil {
			return err
		}
	}

	log.Printf("waitlist entries seeded: %d", count)
	return nil
}
