package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"example.com/trip-budget-planner/backend/internal/models"
	"example.com/trip-budget-planner/backend/internal/planner"
	"example.com/trip-budget-planner/backend/internal/server"
)

type planOptions struct {
	user        string
	destination string
	style       string
	start       string
	end         string
	prompt      string
	amounts     []string
	save        bool
}

func planCommand() *cobra.Command {
	var opts planOptions

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "generate a trip plan from the terminal",
		Long: `Generates a budget and itinerary with the configured AI provider and prints it.
Breakdown amounts can be overridden with --set Category=Amount before the plan is saved with --save.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.user, "user", "local", "owner id the plan is saved under")
	cmd.Flags().StringVar(&opts.destination, "destination", "", "trip destination")
	cmd.Flags().StringVar(&opts.style, "style", string(models.TravelStyleStandard), "travel style: Budget, Standard or Luxury")
	cmd.Flags().StringVar(&opts.start, "start", "", "trip start date, YYYY-MM-DD")
	cmd.Flags().StringVar(&opts.end, "end", "", "trip end date, YYYY-MM-DD")
	cmd.Flags().StringVar(&opts.prompt, "prompt", "", "extra wishes passed to the model")
	cmd.Flags().StringArrayVar(&opts.amounts, "set", nil, "override a breakdown amount, Category=Amount")
	cmd.Flags().BoolVar(&opts.save, "save", false, "save the plan to the configured store")

	return cmd
}

func runPlan(cmd *cobra.Command, opts planOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	client, err := server.NewAIClient(cfg.AI)
	if err != nil {
		return err
	}

	deps, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	editor := planner.NewEditor(opts.user, server.NewAIService(cfg.AI, client, slog.Default()), deps.Plans)
	if err := editor.Configure(planner.Params{
		Destination:   opts.destination,
		TravelStyle:   models.TravelStyle(opts.style),
		TripStartDate: opts.start,
		TripEndDate:   opts.end,
		CustomPrompt:  opts.prompt,
	}); err != nil {
		return err
	}

	if err := editor.Generate(ctx); err != nil {
		return fmt.Errorf("generate plan: %w", err)
	}

	for _, override := range opts.amounts {
		if err := applyAmount(editor, override); err != nil {
			return err
		}
	}

	if err := printJSON(cmd, editor.Draft()); err != nil {
		return err
	}

	if !opts.save {
		return nil
	}

	plan, err := editor.Commit(ctx)
	if err != nil {
		return fmt.Errorf("save plan: %w", err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "saved plan %s for %s (%s)\n", plan.ID, plan.Destination, editor.State())
	return nil
}

func applyAmount(editor *planner.Editor, override string) error {
	category, rawAmount, ok := strings.Cut(override, "=")
	if !ok {
		return fmt.Errorf("invalid --set value %q, want Category=Amount", override)
	}

	amount, err := strconv.ParseFloat(strings.TrimSpace(rawAmount), 64)
	if err != nil {
		return fmt.Errorf("invalid amount in --set %q: %w", override, err)
	}

	for i, item := range editor.Draft().Breakdown {
		if strings.EqualFold(item.Category, strings.TrimSpace(category)) {
			return editor.UpdateBreakdownAmount(i, amount)
		}
	}

	index, err := editor.AddBreakdown()
	if err != nil {
		return err
	}
	if err := editor.UpdateBreakdownCategory(index, strings.TrimSpace(category)); err != nil {
		return err
	}
	return editor.UpdateBreakdownAmount(index, amount)
}

func printJSON(cmd *cobra.Command, value interface{}) error {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errors.New("failed to encode plan")
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(payload))
	return nil
}
