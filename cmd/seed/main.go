package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mindwellhq/counseling-scheduler/internal/db"
)

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

	if err := ensureSchema(context.Background(), pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	psychologists, err := seedPsychologists(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed psychologists: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedAvailability(context.Background(), pool, psychologists, 14); err != nil {
		log.Fatalf("seed availability: %v", err)
	}

	log.Println("seed complete")
}

const schema = `
CREATE TABLE IF NOT EXISTS patients (
	id         uuid PRIMARY KEY,
	name       text NOT NULL,
	email      text,
	phone      text,
	avatar     text,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS psychologists (
	id          uuid PRIMARY KEY,
	name        text NOT NULL,
	email       text,
	phone       text,
	avatar      text,
	specialty   text,
	session_fee bigint NOT NULL DEFAULT 0,
	created_at  timestamptz NOT NULL DEFAULT now(),
	updated_at  timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS availability_slots (
	id              uuid PRIMARY KEY,
	psychologist_id uuid NOT NULL REFERENCES psychologists (id),
	slot_date       date NOT NULL,
	start_time      timestamptz NOT NULL,
	end_time        timestamptz NOT NULL,
	is_booked       boolean NOT NULL DEFAULT false,
	appointment_id  uuid,
	created_at      timestamptz NOT NULL DEFAULT now(),
	updated_at      timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS appointments (
	id                   uuid PRIMARY KEY,
	patient_id           uuid NOT NULL REFERENCES patients (id),
	psychologist_id      uuid NOT NULL REFERENCES psychologists (id),
	availability_id      uuid NOT NULL REFERENCES availability_slots (id),
	scheduled_date       date NOT NULL,
	scheduled_start      timestamptz NOT NULL,
	scheduled_end        timestamptz NOT NULL,
	status               text NOT NULL DEFAULT 'Pending',
	is_rescheduled       boolean NOT NULL DEFAULT false,
	patient_note         text,
	psychologist_note    text,
	staff_note           text,
	last_modified_by     text,
	last_modified_role   text,
	last_modified_at     timestamptz,
	payment_order_code   bigint,
	payment_amount       bigint,
	payment_status       text,
	payment_expired_at   timestamptz,
	payment_checkout_url text,
	created_at           timestamptz NOT NULL DEFAULT now(),
	updated_at           timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS event_logs (
	id             bigserial PRIMARY KEY,
	event_type     text NOT NULL,
	appointment_id uuid,
	payload        jsonb,
	created_at     timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_slots_psychologist ON availability_slots (psychologist_id, slot_date);
CREATE INDEX IF NOT EXISTS idx_slots_appointment ON availability_slots (appointment_id);
CREATE INDEX IF NOT EXISTS idx_appointments_patient_date ON appointments (patient_id, scheduled_date);
CREATE INDEX IF NOT EXISTS idx_appointments_lapsed ON appointments (status, payment_expired_at);
`

func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}

func seedPsychologists(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d psychologists", count)

	specialties := []string{
		"Clinical Psychology",
		"Cognitive Behavioral Therapy",
		"Couples Counseling",
		"Child and Adolescent",
		"Trauma and PTSD",
		"Anxiety and Depression",
		"Addiction Counseling",
		"Family Therapy",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		fee := int64(gofakeit.Number(30, 120)) * 1000

		_, err := tx.Exec(ctx, `
			INSERT INTO psychologists (id, name, email, phone, avatar, specialty, session_fee, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		`, id, gofakeit.Name(), gofakeit.Email(), gofakeit.Phone(), gofakeit.ImageURL(200, 200), spec, fee)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("psychologists seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, phone, avatar, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, now(), now())
			`, uuid.New(), gofakeit.Name(), gofakeit.Email(), gofakeit.Phone(), gofakeit.ImageURL(200, 200))
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}

// seedAvailability creates hourly 09:00-17:00 slots for each psychologist
// for the next `days` days.
func seedAvailability(ctx context.Context, pool *pgxpool.Pool, psychologists []uuid.UUID, days int) error {
	log.Printf("seeding availability for %d psychologists over %d days", len(psychologists), days)

	today := time.Now().Truncate(24 * time.Hour)

	for _, psyID := range psychologists {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for d := 0; d < days; d++ {
			day := today.AddDate(0, 0, d+1)
			for hour := 9; hour < 17; hour++ {
				start := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, time.Local)
				end := start.Add(time.Hour)

				_, err := tx.Exec(ctx, `
					INSERT INTO availability_slots (id, psychologist_id, slot_date, start_time, end_time, is_booked, appointment_id, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, false, NULL, now(), now())
				`, uuid.New(), psyID, day, start, end)
				if err != nil {
					_ = tx.Rollback(ctx)
					return err
				}
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}

	log.Println("availability seeded")
	return nil
}
