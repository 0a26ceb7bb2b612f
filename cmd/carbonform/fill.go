package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-carbonform/pkg/tui"
)

var fillCmd = &cobra.Command{
	Use:   "fill [category]",
	Short: "Fill and submit a form interactively",
	Long: `Prompts for every visible field of a category, validating each answer,
then submits the calculation and prints the result. Without an argument the
category is chosen from a list.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFill,
}

func runFill(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.LoadFactors(ctx); err != nil {
		return err
	}

	session, err := tui.NewSession(a.NewOrchestrator(), tui.WithPromptDriver(tui.NewSurveyDriver(cmd.OutOrStdout())))
	if err != nil {
		return err
	}

	category := ""
	if len(args) == 1 {
		category = args[0]
	} else {
		formSchema, err := a.Fetcher.Fetch(ctx)
		if err != nil {
			return err
		}
		category, err = session.ChooseCategory(ctx, formSchema)
		if err != nil {
			if errors.Is(err, tui.ErrAborted) {
				return nil
			}
			return err
		}
	}

	if _, err := session.Run(ctx, category); err != nil {
		if errors.Is(err, tui.ErrAborted) {
			fmt.Fprintln(cmd.ErrOrStderr(), "aborted")
			return nil
		}
		return err
	}
	return nil
}
