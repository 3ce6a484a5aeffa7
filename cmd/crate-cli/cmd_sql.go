package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/crate/crate-go/client"
)

var sqlCmd = &cobra.Command{
	Use:   "sql <statement>",
	Short: "Execute a SQL statement",
	Long: `Execute a SQL statement against the cluster and print the result.

Arguments given with --arg are parsed as JSON literals, so numbers and
booleans keep their type; anything that does not parse as JSON is passed
as a string. Use --bulk with a JSON array of parameter arrays to run the
statement once per parameter set.`,
	Args: cobra.ExactArgs(1),
	RunE: runSQL,
}

func init() {
	sqlCmd.Flags().StringArrayP("arg", "a", nil, "Positional argument for the statement (repeatable)")
	sqlCmd.Flags().String("bulk", "", "JSON array of parameter arrays for bulk execution")
	sqlCmd.Flags().String("format", "table", "Output format: table, json")
}

func runSQL(cmd *cobra.Command, args []string) error {
	stmt := args[0]
	rawArgs, _ := cmd.Flags().GetStringArray("arg")
	bulk, _ := cmd.Flags().GetString("bulk")
	format, _ := cmd.Flags().GetString("format")
	if bulk != "" && len(rawArgs) > 0 {
		return fmt.Errorf("--arg and --bulk cannot be combined")
	}

	c, cleanup, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := runContext(cmd)
	defer stop()

	var result *client.SQLResult
	if bulk != "" {
		var bulkArgs [][]any
		if err := json.Unmarshal([]byte(bulk), &bulkArgs); err != nil {
			return fmt.Errorf("parse --bulk: %w", err)
		}
		result, err = c.BulkSQL(ctx, stmt, bulkArgs)
	} else {
		result, err = c.SQL(ctx, stmt, parseArgs(rawArgs)...)
	}
	if err != nil {
		return describeError(err)
	}

	switch format {
	case "json":
		return printJSON(result)
	case "table":
		printResultTable(result)
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// parseArgs keeps JSON literals typed and falls back to plain strings.
func parseArgs(raw []string) []any {
	args := make([]any, len(raw))
	for i, r := range raw {
		var v any
		if err := json.Unmarshal([]byte(r), &v); err != nil {
			args[i] = r
			continue
		}
		args[i] = v
	}
	return args
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printResultTable(result *client.SQLResult) {
	if len(result.Results) > 0 {
		printBulkTable(result)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	if len(result.Cols) > 0 {
		fmt.Fprintln(w, strings.Join(result.Cols, "\t"))
	}
	for _, row := range result.Rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = formatCell(cell)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	w.Flush()
	fmt.Printf("%d rows (%.3f ms)\n", result.RowCount, result.Duration)
}

func printBulkTable(result *client.SQLResult) {
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "set\trowcount")
	for i, r := range result.Results {
		fmt.Fprintf(w, "%d\t%d\n", i, r.RowCount)
	}
	w.Flush()
	fmt.Printf("%d parameter sets (%.3f ms)\n", len(result.Results), result.Duration)
}

func formatCell(cell any) string {
	switch v := cell.(type) {
	case nil:
		return "NULL"
	case string:
		return v
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", v), "0"), ".")
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

// describeError keeps statement errors readable and surfaces the server
// stack trace when one was requested.
func describeError(err error) error {
	var progErr *client.ProgrammingError
	if errors.As(err, &progErr) && progErr.ErrorTrace != "" {
		return fmt.Errorf("%s\n%s", progErr.Message, progErr.ErrorTrace)
	}
	return err
}
