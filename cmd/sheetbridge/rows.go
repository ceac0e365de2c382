package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/sheetbridge/sheetbridge/internal/config"
	"github.com/sheetbridge/sheetbridge/internal/document"
	"github.com/sheetbridge/sheetbridge/internal/tablestore"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "sync",
	Short:   "Write a config file and create the table in the workbook",
	Long: `Write a starter config file and create the configured sheet, header row
and table in the workbook. An existing table is left as it is.

Examples:
  sheetbridge init
  sheetbridge init --backend sqlite --workbook book.db
  sheetbridge init --table Inventory --sheet Stock --columns "SKU:sku,Count:count"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		force, _ := cmd.Flags().GetBool("force")

		next := *cfg
		if cmd.Flags().Changed("backend") {
			next.Workbook.Backend, _ = cmd.Flags().GetString("backend")
		}
		if cmd.Flags().Changed("table") {
			next.Table.Name, _ = cmd.Flags().GetString("table")
		}
		if cmd.Flags().Changed("sheet") {
			next.Table.Sheet, _ = cmd.Flags().GetString("sheet")
		}
		if cmd.Flags().Changed("columns") {
			list, _ := cmd.Flags().GetString("columns")
			cols, err := parseColumns(list)
			if err != nil {
				return err
			}
			next.Table.Columns = cols
		}
		if next.Workbook.Backend == config.BackendSQLite && !cmd.Flags().Changed("workbook") && next.Workbook.Path == config.Default().Workbook.Path {
			next.Workbook.Path = "workbook.db"
		}
		if err := next.Validate(); err != nil {
			return err
		}

		if err := config.Write(&next, path, force); err != nil {
			return err
		}
		fmt.Printf("%s Wrote %s\n", renderPass("✓"), path)
		cfg = &next

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		origin := s.store.Origin().Ref()
		fmt.Printf("%s Table %s on sheet %s at %s (%d rows)\n",
			renderPass("✓"), s.store.TableName(), s.store.SheetName(), origin, s.store.Len())
		return nil
	},
}

var rowsCmd = &cobra.Command{
	Use:     "rows",
	GroupID: "rows",
	Short:   "List the cached rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return printJSON(os.Stdout, rowsJSON(s.store.Rows()))
		}
		printRows(os.Stdout, s.store.Columns(), s.store.Rows())
		fmt.Println(renderMuted(fmt.Sprintf("%d rows", s.store.Len())))
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:     "add [key=value...]",
	GroupID: "rows",
	Short:   "Append or insert a row",
	Long: `Add a row to the table. Values are given as key=value pairs; numbers and
true/false are stored as such. Unknown keys are ignored and missing keys are
left empty.

Examples:
  sheetbridge add name=ann age=30
  sheetbridge add --at 0 name=bob
  sheetbridge add --interactive`,
	RunE: func(cmd *cobra.Command, args []string) error {
		interactive, _ := cmd.Flags().GetBool("interactive")
		at, _ := cmd.Flags().GetInt("at")

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		var data tablestore.RowData
		if interactive {
			data, err = promptRow(s.store.Columns())
		} else {
			data, err = parseAssignments(args)
		}
		if err != nil {
			return err
		}

		node, err := s.store.InsertRow(cmd.Context(), at, data)
		if err != nil {
			return err
		}
		fmt.Printf("%s Added row %d\n", renderPass("✓"), node.Index)
		return nil
	},
}

// promptRow asks for one value per column.
func promptRow(columns []tablestore.ColumnDef) (tablestore.RowData, error) {
	if !isTerminal() {
		return nil, fmt.Errorf("--interactive needs a terminal")
	}
	values := make([]string, len(columns))
	fields := make([]huh.Field, len(columns))
	for i, c := range columns {
		fields[i] = huh.NewInput().Title(c.Label).Description(c.Key).Value(&values[i])
	}
	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil, fmt.Errorf("cancelled")
		}
		return nil, err
	}

	data := make(tablestore.RowData, len(columns))
	for i, c := range columns {
		data[c.Key] = document.ParseValue(values[i])
	}
	return data, nil
}

var updateCmd = &cobra.Command{
	Use:     "update <row> key=value...",
	GroupID: "rows",
	Short:   "Change values of a row",
	Long: `Change some values of a row. Keys that are not given keep their value.

Example:
  sheetbridge update 2 age=31`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseIndex(args[0], "row")
		if err != nil {
			return err
		}
		changes, err := parseAssignments(args[1:])
		if err != nil {
			return err
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		current, ok := s.store.Row(index)
		if !ok {
			return fmt.Errorf("row %d: %w", index, tablestore.ErrRowNotFound)
		}
		for k, v := range changes {
			current.Data[k] = v
		}
		if _, err := s.store.UpdateRow(cmd.Context(), index, current.Data); err != nil {
			return err
		}
		fmt.Printf("%s Updated row %d\n", renderPass("✓"), index)
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:     "set <row> <column> <value>",
	GroupID: "rows",
	Short:   "Set a single cell of a row",
	Long: `Set one cell. The column is a key, a label or a zero-based index.

Example:
  sheetbridge set 0 age 31`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		row, err := parseIndex(args[0], "row")
		if err != nil {
			return err
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		col, err := resolveColumn(s.store.Columns(), args[1])
		if err != nil {
			return err
		}
		if _, err := s.store.UpdateRowValue(cmd.Context(), row, col, document.ParseValue(args[2])); err != nil {
			return err
		}
		ref := s.store.Origin().ToSheet(row, col)
		fmt.Printf("%s Set %s\n", renderPass("✓"), ref)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <row>",
	GroupID: "rows",
	Short:   "Delete a row",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseIndex(args[0], "row")
		if err != nil {
			return err
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.store.DeleteRow(cmd.Context(), index); err != nil {
			return err
		}
		fmt.Printf("%s Deleted row %d\n", renderPass("✓"), index)
		return nil
	},
}

func init() {
	initCmd.Flags().Bool("force", false, "Overwrite an existing config file")
	initCmd.Flags().String("backend", config.BackendYAML, "Workbook backend: yaml, sqlite or memory")
	initCmd.Flags().String("table", "", "Table name")
	initCmd.Flags().String("sheet", "", "Sheet name")
	initCmd.Flags().String("columns", "", `Columns as "Label:key,Label:key"`)

	rowsCmd.Flags().Bool("json", false, "Output rows as JSON")

	addCmd.Flags().BoolP("interactive", "i", false, "Prompt for each column")
	addCmd.Flags().Int("at", -1, "Insert at this row index instead of appending")

	rootCmd.AddCommand(initCmd, rowsCmd, addCmd, updateCmd, setCmd, deleteCmd)
}
