package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/opdesk/token-engine/internal/db"
	"github.com/opdesk/token-engine/internal/token"
)

var specializations = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("service", "seed").Logger()
	log.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}
	doctorCount := intEnv("SEED_DOCTORS", 10)
	slotsPerDoctor := intEnv("SEED_SLOTS_PER_DOCTOR", 6)
	slotCapacity := intEnv("SEED_SLOT_CAPACITY", 4)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())
	store := token.NewPgStore(pool)

	for i := 0; i < doctorCount; i++ {
		doctor := &token.Doctor{
			ID:             uuid.NewString(),
			Name:           "Dr. " + gofakeit.Name(),
			Specialization: specializations[gofakeit.Number(0, len(specializations)-1)],
			CreatedAt:      time.Now(),
		}
		if err := store.SaveDoctor(context.Background(), doctor); err != nil {
			log.Fatal().Err(err).Msg("save doctor")
		}

		// Consecutive 30-minute windows starting at 09:00.
		start := 9 * 60
		for j := 0; j < slotsPerDoctor; j++ {
			slot := &token.TimeSlot{
				ID:          uuid.NewString(),
				DoctorID:    doctor.ID,
				StartMinute: start,
				EndMinute:   start + 30,
				MaxCapacity: slotCapacity,
				Status:      token.SlotAvailable,
				CreatedAt:   time.Now(),
			}
			if err := store.SaveSlot(context.Background(), slot); err != nil {
				log.Fatal().Err(err).Msg("save slot")
			}
			doctor.SlotIDs = append(doctor.SlotIDs, slot.ID)
			start += 30
		}
		if err := store.SaveDoctor(context.Background(), doctor); err != nil {
			log.Fatal().Err(err).Msg("save doctor slot list")
		}
		log.Info().Str("doctor", doctor.Name).Int("slots", slotsPerDoctor).Msg("doctor seeded")
	}

	log.Info().Int("doctors", doctorCount).Msg("seed complete")
}

func intEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid %s=%q, using default %d\n", key, v, def)
		return def
	}
	return n
}
