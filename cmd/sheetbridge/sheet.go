package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sheetbridge/sheetbridge/internal/address"
	"github.com/sheetbridge/sheetbridge/internal/document"
	"github.com/sheetbridge/sheetbridge/internal/rangeref"
)

var cellCmd = &cobra.Command{
	Use:     "cell",
	GroupID: "sheet",
	Short:   "Read or write a single sheet cell",
}

var cellGetCmd = &cobra.Command{
	Use:   "get <A1>",
	Short: "Print a cell value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := address.Parse(args[0])
		if err != nil {
			return err
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		sheet, err := s.book.Sheet(sheetFlag(cmd))
		if err != nil {
			return err
		}
		v, err := sheet.Cell(ref)
		if err != nil {
			return err
		}
		fmt.Println(document.FormatValue(v))
		return nil
	},
}

var cellSetCmd = &cobra.Command{
	Use:   "set <A1> <value>",
	Short: "Write a cell through a named binding",
	Long: `Write a cell. The cell is bound under --binding (default "cell_<A1>") so
that later runs and other tools can follow it by name.

Example:
  sheetbridge cell set B1 "last import" --sheet Summary`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := address.Parse(args[0])
		if err != nil {
			return err
		}
		binding, _ := cmd.Flags().GetString("binding")
		if binding == "" {
			binding = "cell_" + ref.String()
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		sheetName := sheetFlag(cmd)
		cell, err := rangeref.New(cmd.Context(), s.book, rangeref.Params{
			Sheet:   sheetName,
			Binding: binding,
			Row:     ref.Row,
			Column:  ref.Col,
			Rows:    1,
			Columns: 1,
			Logger:  logger,
		})
		if err != nil {
			return err
		}
		defer cell.Close()

		if err := cell.SetValue(cmd.Context(), [][]document.Value{{document.ParseValue(args[1])}}); err != nil {
			return err
		}
		fmt.Printf("%s %s!%s = %s\n", renderPass("✓"), sheetName, ref, document.FormatValue(cell.Value()[0][0]))
		return nil
	},
}

// sheetFlag returns --sheet, defaulting to the table's sheet.
func sheetFlag(cmd *cobra.Command) string {
	if name, _ := cmd.Flags().GetString("sheet"); strings.TrimSpace(name) != "" {
		return name
	}
	return cfg.Table.Sheet
}

var addrCmd = &cobra.Command{
	Use:     "addr <A1> | addr <row> <column>",
	GroupID: "sheet",
	Short:   "Translate between sheet addresses and table coordinates",
	Long: `Translate between A1 addresses and zero-based table coordinates, using the
table's current position in the workbook.

Examples:
  sheetbridge addr C5      # -> row 0, column 1
  sheetbridge addr 0 1     # -> C5`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		origin := s.store.Origin()

		if len(args) == 2 {
			row, err := parseIndex(args[0], "row")
			if err != nil {
				return err
			}
			col, err := resolveColumn(s.store.Columns(), args[1])
			if err != nil {
				// Columns past the configured ones are still addressable.
				col, err = parseIndex(args[1], "column")
				if err != nil {
					return err
				}
			}
			fmt.Println(origin.ToSheet(row, col))
			return nil
		}

		ref, err := address.Parse(args[0])
		if err != nil {
			return err
		}
		row, col, ok := origin.ToTable(ref)
		if !ok {
			return fmt.Errorf("%s is not below the header row at %s", ref, origin.Ref())
		}
		key := ""
		if cols := s.store.Columns(); col < len(cols) {
			key = " (" + cols[col].Key + ")"
		}
		fmt.Printf("row %d, column %d%s\n", row, col, key)
		return nil
	},
}

func init() {
	cellCmd.PersistentFlags().String("sheet", "", "Sheet name (default: the table's sheet)")
	cellSetCmd.Flags().String("binding", "", "Binding name for the cell")
	cellCmd.AddCommand(cellGetCmd, cellSetCmd)

	rootCmd.AddCommand(cellCmd, addrCmd)
}
