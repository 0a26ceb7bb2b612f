package main

import (
	"fmt"
	"io"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-carbonform/pkg/model"
)

var (
	schemaWatch bool
	schemaJSON  bool
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the form schema",
	Long: `Fetches the form schema and prints each category with its fields.
With --watch the command stays attached to the document store and prints
every update.`,
	Args: cobra.NoArgs,
	RunE: runSchema,
}

func init() {
	schemaCmd.Flags().BoolVarP(&schemaWatch, "watch", "w", false, "Print schema updates until interrupted")
	schemaCmd.Flags().BoolVar(&schemaJSON, "json", false, "Print the decoded schema as JSON")
}

func runSchema(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out := cmd.OutOrStdout()
	if !schemaWatch {
		formSchema, err := a.Fetcher.Fetch(ctx)
		if err != nil {
			return err
		}
		return printSchema(out, formSchema, schemaJSON)
	}

	updates := make(chan model.FormSchema, 1)
	unsubscribe, err := a.Fetcher.Subscribe(func(formSchema model.FormSchema) {
		select {
		case updates <- formSchema:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return err
	}
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case formSchema := <-updates:
			if err := printSchema(out, formSchema, schemaJSON); err != nil {
				return err
			}
		}
	}
}

func printSchema(out io.Writer, formSchema model.FormSchema, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(formSchema, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}

	for _, key := range formSchema.Keys() {
		category := formSchema[key]
		if _, err := fmt.Fprintf(out, "%s (%s)\n", category.Title, key); err != nil {
			return err
		}
		for _, field := range category.Fields {
			marker := " "
			if field.Required {
				marker = "*"
			}
			line := fmt.Sprintf("  %s %s", marker, field.Name)
			if label := field.Label(); label != field.Name {
				line += " - " + label
			}
			if _, err := fmt.Fprintln(out, strings.TrimRight(line, " ")); err != nil {
				return err
			}
		}
	}
	return nil
}
