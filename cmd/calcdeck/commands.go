package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/calcdeck/internal/calculator"
	"github.com/kalambet/calcdeck/internal/config"
	"github.com/kalambet/calcdeck/internal/history"
)

// --- calculators ---

var calculatorsCmd = &cobra.Command{
	Use:     "calculators",
	Aliases: []string{"ls"},
	Short:   "List the available calculators and their fields",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		all := calculator.Default().All()
		out := cmd.OutOrStdout()

		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(all)
		}

		var category calculator.Category
		for _, c := range all {
			if c.Category != category {
				category = c.Category
				fmt.Fprintf(out, "\n%s\n", colorize(labelStyle, strings.ToUpper(string(category))))
			}
			fmt.Fprintf(out, "  %-30s %s\n", colorize(stepStyle, c.ID), c.Name)
			fmt.Fprintf(out, "  %-30s %s\n", "", colorize(mutedStyle, fieldSummary(c.Fields)))
		}
		return nil
	},
}

func fieldSummary(fields []calculator.Field) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		p := f.Name
		switch {
		case len(f.Options) > 0:
			p += "=" + strings.Join(f.Options, "|")
		case f.Unit != "":
			p += " (" + f.Unit + ")"
		}
		if f.Default != "" {
			p += " [" + f.Default + "]"
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, ", ")
}

func init() {
	calculatorsCmd.Flags().Bool("json", false, "print the catalog as JSON")
}

// --- calc ---

var calcCmd = &cobra.Command{
	Use:   "calc <calculator-id> [field=value ...]",
	Short: "Run a calculator and record the result",
	Long: `Run a calculator and record the result in its history.

Omitted fields use their defaults. Use "calcdeck calculators" to see fields.

Examples:
  calcdeck calc tip-calculator bill=84.50 tipPercent=18 people=3
  calcdeck calc temperature-converter value=100 from=C to=F
  calcdeck calc bmi-calculator weight=70 height=175 --remote`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		remote, _ := cmd.Flags().GetBool("remote")

		inputs, err := parseAssignments(args[1:])
		if err != nil {
			return err
		}
		id := args[0]

		var result string
		if remote {
			result, err = calculateRemote(cmd, id, inputs)
		} else {
			result, err = calculateLocal(id, inputs)
		}
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), result)
		return nil
	},
}

func calculateLocal(id string, inputs *history.Inputs) (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	local, err := openLocal(cfg, nil)
	if err != nil {
		return "", err
	}
	defer local.Close()

	out, err := local.service.Calculate(id, inputs)
	if err != nil {
		return "", err
	}
	return out.Result, nil
}

// calculateRemote evaluates locally and hands the finished entry to the
// running server, which owns the store.
func calculateRemote(cmd *cobra.Command, id string, inputs *history.Inputs) (string, error) {
	calc, ok := calculator.Default().Lookup(id)
	if !ok {
		return "", fmt.Errorf("%w: %q", calculator.ErrUnknownCalculator, id)
	}
	result, normalized, err := calc.Compute(inputs)
	if err != nil {
		return "", err
	}

	client, err := newAPIClient()
	if err != nil {
		return "", err
	}
	if _, err := client.record(cmd.Context(), id, normalized, result); err != nil {
		return "", err
	}
	return result, nil
}

// parseAssignments turns field=value arguments into Inputs, in argument
// order. Values stay strings; the calculator parses them.
func parseAssignments(args []string) (*history.Inputs, error) {
	inputs := history.NewInputs()
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("expected field=value, got %q", arg)
		}
		if _, dup := inputs.Get(name); dup {
			return nil, fmt.Errorf("field %q given more than once", name)
		}
		inputs.Set(name, history.String(strings.TrimSpace(value)))
	}
	return inputs, nil
}

func init() {
	calcCmd.Flags().Bool("remote", false, "record through the running server")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show or clear recent results",
}

var historyListCmd = &cobra.Command{
	Use:   "list <calculator-id>",
	Short: "List a calculator's recent results, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		remote, _ := cmd.Flags().GetBool("remote")
		limit, _ := cmd.Flags().GetInt("limit")
		id := args[0]

		var entries []history.Entry
		if remote {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			entries, err = client.recent(cmd.Context(), id, limit)
			if err != nil {
				return err
			}
		} else {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			local, err := openLocal(cfg, nil)
			if err != nil {
				return err
			}
			defer local.Close()

			entries, err = local.service.Recent(id)
			if err != nil {
				return err
			}
		}

		if limit > 0 && limit < len(entries) {
			entries = entries[:limit]
		}
		printEntries(cmd.OutOrStdout(), entries)
		return nil
	},
}

func printEntries(w io.Writer, entries []history.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No history yet.")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %s\n", colorize(mutedStyle, fmt.Sprintf("%-16s", ago(e.Time()))), colorize(labelStyle, e.Result))
		if pairs := e.InputPairs(); len(pairs) > 0 {
			fmt.Fprintf(w, "%-16s  %s\n", "", strings.Join(pairs, " "))
		}
	}
}

var historyClearCmd = &cobra.Command{
	Use:   "clear <calculator-id>",
	Short: "Delete a calculator's recorded results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		remote, _ := cmd.Flags().GetBool("remote")
		id := args[0]

		if remote {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			if err := client.clearHistory(cmd.Context(), id); err != nil {
				return err
			}
		} else {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			local, err := openLocal(cfg, nil)
			if err != nil {
				return err
			}
			defer local.Close()

			if err := local.service.Clear(id); err != nil {
				return err
			}
		}

		printSuccess("Cleared history for %s", id)
		return nil
	},
}

type historySummary struct {
	Cap         int                        `json:"cap"`
	Calculators []history.PartitionSummary `json:"calculators"`
}

var historySummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show which calculators have history",
	RunE: func(cmd *cobra.Command, args []string) error {
		remote, _ := cmd.Flags().GetBool("remote")

		var summary historySummary
		if remote {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			summary, err = client.summary(cmd.Context())
			if err != nil {
				return err
			}
		} else {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			local, err := openLocal(cfg, nil)
			if err != nil {
				return err
			}
			defer local.Close()

			summary = historySummary{Cap: local.history.Cap(), Calculators: local.history.Partitions()}
			printStatus("Last saved", "%s", lastSaved(local.kv, cfg.History.Key))
		}

		printSummary(cmd.OutOrStdout(), summary)
		return nil
	},
}

func printSummary(w io.Writer, s historySummary) {
	if len(s.Calculators) == 0 {
		fmt.Fprintln(w, "No history yet.")
		return
	}
	catalog := calculator.Default()
	for _, p := range s.Calculators {
		name := p.CalculatorID
		if c, ok := catalog.Lookup(p.CalculatorID); ok {
			name = c.Name
		}
		fmt.Fprintf(w, "  %-30s %2d/%d  last used %s\n", colorize(labelStyle, name), p.Count, s.Cap, lastUsed(p.NewestAt))
	}
}

func init() {
	historyListCmd.Flags().Int("limit", 0, "maximum number of entries to show (default: all kept)")
	historyListCmd.Flags().Bool("remote", false, "read through the running server")
	historyClearCmd.Flags().Bool("remote", false, "clear through the running server")
	historySummaryCmd.Flags().Bool("remote", false, "read through the running server")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyClearCmd)
	historyCmd.AddCommand(historySummaryCmd)
}

// --- data ---

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Export or purge stored history",
}

var dataExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every recorded result",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		format, _ := cmd.Flags().GetString("format")
		format = strings.ToLower(format)
		if !slices.Contains(exportFormats, format) {
			return fmt.Errorf("unknown format %q (want json or yaml)", format)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		local, err := openLocal(cfg, nil)
		if err != nil {
			return err
		}
		defer local.Close()

		entries := local.history.Snapshot()
		if output == "" {
			return encodeEntries(cmd.OutOrStdout(), format, entries)
		}

		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		if err := encodeEntries(f, format, entries); err != nil {
			f.Close()
			return fmt.Errorf("writing %s: %w", output, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("writing %s: %w", output, err)
		}

		printSuccess("Exported %d entries to %s", len(entries), output)
		return nil
	},
}

var exportFormats = []string{"json", "yaml"}

func encodeEntries(w io.Writer, format string, entries []history.Entry) error {
	switch strings.ToLower(format) {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}

var dataPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all recorded results for every calculator",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete ALL recorded history. Use --confirm to proceed.")
			return nil
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		local, err := openLocal(cfg, nil)
		if err != nil {
			return err
		}
		defer local.Close()

		printStep("Purging history...")
		if err := local.history.Purge(); err != nil {
			return fmt.Errorf("purging history: %w", err)
		}
		printSuccess("All history purged")
		return nil
	},
}

func init() {
	dataExportCmd.Flags().String("output", "", "output file path (default: stdout)")
	dataExportCmd.Flags().String("format", "json", "output format: json or yaml")
	dataPurgeCmd.Flags().Bool("confirm", false, "confirm history purge")
	dataCmd.AddCommand(dataExportCmd)
	dataCmd.AddCommand(dataPurgeCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		keys := config.ShowAll(cfg)
		out := cmd.OutOrStdout()

		switch strings.ToLower(format) {
		case "", "text":
			for _, k := range keys {
				fmt.Fprintf(out, "  %s = %s\n", colorize(labelStyle, k.Key), k.Value)
			}
			fmt.Fprintf(out, "\n  %s\n", colorize(mutedStyle, "file: "+config.ConfigFilePath()))
			return nil
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(keys)
		case "yaml":
			values := make(map[string]string, len(keys))
			for _, k := range keys {
				values[k.Key] = k.Value
			}
			data, err := yaml.Marshal(values)
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		default:
			return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
		}
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value.\n\nValid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configShowCmd.Flags().String("format", "text", "output format: text, json or yaml")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
