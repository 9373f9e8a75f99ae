package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/stemsi/psikotes-backend/internal/scoring"
)

func scoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score an answer vector offline",
	}
	cmd.AddCommand(scorePSSCmd(), scoreSRQ29Cmd())
	return cmd
}

func scorePSSCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "pss <a1,a2,...,a10>",
		Short:   "Score a PSS-10 vector (values 0-4)",
		Example: "examsim score pss 2,3,1,1,0,2,1,0,3,2 --reverse 4,5,7,8",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reverse, err := cmd.Flags().GetIntSlice("reverse")
			if err != nil {
				return err
			}
			answers, err := parseInts(args[0])
			if err != nil {
				return err
			}
			key, err := scoring.NewPSSKey(reverse...)
			if err != nil {
				return err
			}
			res, err := key.Score(answers)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().IntSlice("reverse", nil, "Reverse-scored item numbers")
	return cmd
}

func scoreSRQ29Cmd() *cobra.Command {
	return &cobra.Command{
		Use:   "srq29 <Y|T x29>",
		Short: "Score an SRQ-29 vector, comma separated or as one string (YTTY...)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := scoring.ScoreSRQ29(splitSRQ(args[0]))
			var unclassified *scoring.UnclassifiedCombinationError
			if errors.As(err, &unclassified) {
				fmt.Fprintf(os.Stderr, "unclassified: total %d, flags %s\n", unclassified.TotalScore, unclassified.Flags)
				return err
			}
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
}

func parseInts(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func splitSRQ(raw string) []string {
	if strings.Contains(raw, ",") {
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return strings.Split(raw, "")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
