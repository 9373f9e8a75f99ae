package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"syscall"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/psikotes-backend/internal/config"
	"github.com/stemsi/psikotes-backend/internal/database"
	"github.com/stemsi/psikotes-backend/internal/logger"
	"github.com/stemsi/psikotes-backend/internal/repository"
	"github.com/stemsi/psikotes-backend/internal/service"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

func main() {
	var (
		examIDStr string
		clearCode bool
	)
	flag.StringVar(&examIDStr, "exam", "", "Exam ID")
	flag.BoolVar(&clearCode, "clear", false, "Remove the access code instead of setting one")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	examID, err := uuid.Parse(examIDStr)
	if err != nil {
		fmt.Println("Usage: set-access-code -exam <uuid> [-clear]")
		os.Exit(2)
	}

	ctx := context.Background()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	examRepo := repository.NewExamRepository(pool)
	examService := service.NewExamService(examRepo, rdb, cfg.PaperCacheTTL, log)

	// ─── CLI Input ─────────────────────────────────────────────────────
	var hash *string
	if !clearCode {
		fmt.Print("Enter Access Code: ")
		code, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			fmt.Println("Error reading access code")
			return
		}
		if len(code) < 4 {
			fmt.Println("Error: Access code must be at least 4 characters")
			return
		}

		hashed, err := bcrypt.GenerateFromPassword(code, cfg.BcryptCost)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to hash access code")
		}
		h := string(hashed)
		hash = &h
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	if err := examRepo.SetAccessCodeHash(ctx, examID, hash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.Fatal().Str("exam_id", examID.String()).Msg("Exam not found")
		}
		log.Fatal().Err(err).Msg("Failed to update access code")
	}

	// The paper cache never holds the hash, but drop it so the next begin
	// reloads a consistent exam row.
	if err := examService.Invalidate(ctx, examID); err != nil {
		log.Warn().Err(err).Msg("Failed to invalidate paper cache")
	}

	if clearCode {
		fmt.Printf("Access code removed from exam %s\n", examID)
		return
	}
	fmt.Printf("Access code set for exam %s\n", examID)
}
