package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stemsi/psikotes-backend/internal/autosave"
	"github.com/stemsi/psikotes-backend/internal/client"
	"github.com/stemsi/psikotes-backend/internal/model"
	"github.com/stemsi/psikotes-backend/internal/service"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Take an exam as one candidate",
		RunE:  runExam,
	}
	f := cmd.Flags()
	f.String("base-url", "http://localhost:8080", "Server base URL")
	f.String("token", "", "Candidate bearer token")
	f.String("jwt-secret", "", "Sign a candidate token locally when --token is empty")
	f.Int("candidate-id", 0, "Candidate id used when signing a token")
	f.String("exam-id", "", "Exam to take (required)")
	f.String("access-code", "", "Exam access code")
	f.String("strategy", "random", "Answer choice (random, first, last)")
	f.Duration("think", 2*time.Second, "Time spent per question")
	f.Duration("autosave-interval", autosave.DefaultInterval, "Autosave throttle")
	f.Bool("manual-submit", false, "Submit after the last question instead of waiting for the countdown")
	f.Int("finalize-retries", 3, "Automatic submit attempts at countdown zero")
	f.Duration("finalize-backoff", 2*time.Second, "Delay between automatic submit attempts")
	f.String("fallback-dir", os.TempDir(), "Directory for the local answer copy")

	_ = cmd.MarkFlagRequired("exam-id")
	return cmd
}

func runExam(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	log := setupLogging(v)

	examID, err := uuid.Parse(v.GetString("exam-id"))
	if err != nil {
		return fmt.Errorf("exam-id: %w", err)
	}

	token, err := candidateToken(v)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.New(v.GetString("base-url"), token, &http.Client{Timeout: 15 * time.Second})

	state, err := api.BeginOrResume(ctx, examID, v.GetString("access-code"))
	if err != nil {
		if errors.Is(err, client.ErrAttemptFinalized) {
			log.Info().Str("exam_id", examID.String()).Msg("Attempt already finalized")
			return nil
		}
		return fmt.Errorf("begin attempt: %w", err)
	}

	log = log.With().Str("attempt_id", state.AttemptID.String()).Logger()
	log.Info().
		Str("exam", state.Exam.Title).
		Int("questions", len(state.Questions)).
		Int("remaining_seconds", state.RemainingSeconds).
		Msg("Attempt ready")

	fallback, err := autosave.NewFileFallback(v.GetString("fallback-dir"))
	if err != nil {
		return err
	}
	coord := autosave.NewCoordinator(state.AttemptID, api, fallback, v.GetDuration("autosave-interval"), log)
	answers := coord.Restore(state.Answers)

	var result *model.AttemptResult
	countdown := autosave.NewCountdown(state.RemainingSeconds, func(ctx context.Context) error {
		res, err := api.Submit(ctx, state.AttemptID, coord.Answers(), true)
		if err == nil {
			result = res
		}
		return err
	}, v.GetInt("finalize-retries"), v.GetDuration("finalize-backoff"))

	countdown.Start(ctx)
	go coord.Run(ctx)

	if !answerAll(ctx, coord, state.Questions, answers, v, countdown) {
		// Interrupted: teardown beacon, then leave the attempt running.
		coord.Close()
		countdown.Stop()
		time.Sleep(500 * time.Millisecond)
		log.Warn().Msg("Interrupted, attempt left in progress")
		return nil
	}

	if v.GetBool("manual-submit") {
		countdown.Stop()
		res, err := api.Submit(ctx, state.AttemptID, coord.Answers(), false)
		switch {
		case err == nil:
			result = res
		case errors.Is(err, client.ErrIncomplete):
			var apiErr *client.APIError
			errors.As(err, &apiErr)
			return fmt.Errorf("submit rejected: %d question(s) unanswered", apiErr.Unanswered())
		case errors.Is(err, client.ErrAttemptFinalized):
			log.Info().Msg("Attempt was finalized by the server")
		default:
			return fmt.Errorf("submit: %w", err)
		}
	} else {
		log.Info().Dur("remaining", countdown.Remaining()).Msg("All questions answered, waiting for the countdown")
		<-countdown.Done()
		if err := countdown.Err(); err != nil {
			coord.Close()
			return fmt.Errorf("automatic submit: %w", err)
		}
	}

	coord.Finished()
	printResult(log, state.AttemptID, result)
	return nil
}

// answerAll picks an option for every unanswered question. It reports false
// when the run was interrupted.
func answerAll(ctx context.Context, coord *autosave.Coordinator, questions []model.QuestionForStudent, answered model.AnswerMap, v *viper.Viper, countdown *autosave.Countdown) bool {
	think := v.GetDuration("think")
	strategy := v.GetString("strategy")

	for _, q := range questions {
		if _, ok := answered[q.ID.String()]; ok || len(q.Options) == 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return false
		case <-countdown.Done():
			return true
		case <-time.After(think):
		}

		coord.Update(q.ID.String(), pickOption(q.Options, strategy).ID)
	}
	return true
}

func pickOption(opts []model.Option, strategy string) model.Option {
	switch strategy {
	case "first":
		return opts[0]
	case "last":
		return opts[len(opts)-1]
	default:
		return opts[rand.IntN(len(opts))]
	}
}

func candidateToken(v *viper.Viper) (string, error) {
	if t := v.GetString("token"); t != "" {
		return t, nil
	}
	secret := v.GetString("jwt-secret")
	if secret == "" {
		return "", errors.New("either --token or --jwt-secret is required")
	}
	id := v.GetInt("candidate-id")
	if id <= 0 {
		return "", errors.New("--candidate-id is required when signing a token")
	}
	return service.NewAuthService(secret).IssueToken(service.TokenTypeCandidate, id, nil, 4*time.Hour)
}

func printResult(log zerolog.Logger, attemptID uuid.UUID, r *model.AttemptResult) {
	if r == nil {
		log.Info().Msg("Attempt finalized")
		return
	}
	ev := log.Info().Str("status", string(r.Status))
	if r.Score != nil {
		ev = ev.Float64("score", *r.Score)
	}
	if r.Label != nil {
		ev = ev.Str("label", *r.Label)
	}
	if r.ScoringError != nil {
		ev = ev.Str("scoring_error", *r.ScoringError)
	}
	ev.Str("attempt_id", attemptID.String()).Msg("Attempt finalized")
}
