package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sheetbridge/sheetbridge/internal/address"
	"github.com/sheetbridge/sheetbridge/internal/dashboard"
	"github.com/sheetbridge/sheetbridge/internal/document"
	"github.com/sheetbridge/sheetbridge/internal/migrate"
	"github.com/sheetbridge/sheetbridge/internal/rangeref"
	"github.com/sheetbridge/sheetbridge/internal/tablestore"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "sync",
	Short:   "Follow the table and print every change",
	Long: `Keep the row cache open and print each change as it happens, whether it
was made by this process or by another writer of the workbook.

With --dashboard the changes are also broadcast over WebSocket:
  ws://localhost:8080/ws      change and stats messages
  http://localhost:8080/api/rows   current rows as JSON
  http://localhost:8080/health     health check

With --cell the given cells of the table's sheet are bound and followed too.

Press Ctrl+C to stop.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		unsubscribe := s.store.Subscribe(printChange)
		defer unsubscribe()

		cells, _ := cmd.Flags().GetStringSlice("cell")
		for _, a1 := range cells {
			closeCell, err := followCell(ctx, s, a1)
			if err != nil {
				return err
			}
			defer closeCell()
		}

		g, gctx := errgroup.WithContext(ctx)

		if withDashboard, _ := cmd.Flags().GetBool("dashboard"); withDashboard {
			port := cfg.Dashboard.Port
			if cmd.Flags().Changed("port") {
				port, _ = cmd.Flags().GetInt("port")
			}
			server := dashboard.NewServer(s.store, &dashboard.Config{
				Port:   port,
				Host:   cfg.Dashboard.Host,
				Logger: logger,
			})
			handler := dashboard.NewHandler(server, s.store, logger)
			detach := handler.Attach()
			if err := server.Start(); err != nil {
				detach()
				return fmt.Errorf("failed to start dashboard: %w", err)
			}
			fmt.Printf("Dashboard on http://%s (WebSocket at /ws)\n", server.Addr())

			g.Go(func() error {
				<-gctx.Done()
				detach()
				return server.Stop()
			})
		}

		fmt.Printf("%s Watching %s on sheet %s (%d rows)\n",
			renderAccent("👀"), s.store.TableName(), s.store.SheetName(), s.store.Len())
		fmt.Println("Press Ctrl+C to stop")

		g.Go(func() error {
			<-gctx.Done()
			return nil
		})
		if err := g.Wait(); err != nil {
			return err
		}
		fmt.Println("\nStopped")
		return nil
	},
}

// printChange writes one line per cache change.
func printChange(c tablestore.Change) {
	stamp := renderMuted(time.Now().Format("15:04:05"))
	source := "local "
	if c.Source == document.SourceRemote {
		source = renderWarn("remote")
	}

	switch c.Kind {
	case tablestore.Reloaded:
		fmt.Printf("%s %s reloaded\n", stamp, source)
	case tablestore.Deleted:
		fmt.Printf("%s %s deleted row %d\n", stamp, source, c.Index)
	case tablestore.Patched:
		fmt.Printf("%s %s row %d %s = %s\n", stamp, source, c.Index, c.Key, document.FormatValue(c.Row.Data[c.Key]))
	default:
		fmt.Printf("%s %s %s row %d %v\n", stamp, source, c.Kind, c.Index, c.Row.Data)
	}
}

// followCell binds a cell of the table's sheet and prints its changes.
func followCell(ctx context.Context, s *session, a1 string) (func(), error) {
	ref, err := address.Parse(a1)
	if err != nil {
		return nil, err
	}
	cell, err := rangeref.New(ctx, s.book, rangeref.Params{
		Sheet:   s.store.SheetName(),
		Binding: "watch_" + ref.String(),
		Row:     ref.Row,
		Column:  ref.Col,
		Rows:    1,
		Columns: 1,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to follow %s: %w", a1, err)
	}
	fmt.Printf("Following %s = %s\n", ref, document.FormatValue(cell.Value()[0][0]))
	stop := cell.OnChange(func(v [][]document.Value) {
		fmt.Printf("%s cell %s = %s\n", renderMuted(time.Now().Format("15:04:05")), ref, document.FormatValue(v[0][0]))
	})
	return func() {
		stop()
		cell.Close()
	}, nil
}

var importCmd = &cobra.Command{
	Use:     "import <file.jsonl>",
	GroupID: "sync",
	Short:   "Append rows from a JSONL file",
	Long: `Append one row per line of a JSONL file. Each line is an object keyed by
column key. Invalid lines are reported and skipped.

Examples:
  sheetbridge import people.jsonl
  sheetbridge import people.jsonl --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		start := time.Now()
		result, err := migrate.ImportJSONL(cmd.Context(), s.store, args[0], migrate.ImportOptions{DryRun: dryRun})
		if err != nil {
			return err
		}

		verb := "Imported"
		if dryRun {
			verb = "Would import"
		}
		fmt.Printf("%s %s %d of %d rows in %v\n", renderPass("✓"), verb, result.RowsImported, result.Lines,
			time.Since(start).Round(time.Millisecond))
		if len(result.UnknownKeys) > 0 {
			fmt.Printf("%s Ignored unknown keys: %v\n", renderWarn("⚠"), result.UnknownKeys)
		}
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "%s %s\n", renderWarn("⚠"), e)
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "sync",
	Short:   "Write the cached rows as JSONL",
	Long: `Write every row as one JSON object per line, to stdout or to --output.

Example:
  sheetbridge export --output people.jsonl`,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if output == "" {
			_, err := migrate.ExportJSONL(s.store, os.Stdout)
			return err
		}
		n, err := migrate.ExportFile(s.store, output)
		if err != nil {
			return err
		}
		fmt.Printf("%s Exported %d rows to %s\n", renderPass("✓"), n, output)
		return nil
	},
}

func init() {
	watchCmd.Flags().Bool("dashboard", false, "Serve the live dashboard")
	watchCmd.Flags().IntP("port", "p", 8080, "Dashboard port (default: dashboard.port)")
	watchCmd.Flags().StringSlice("cell", nil, "Also follow these cells of the table's sheet")

	importCmd.Flags().Bool("dry-run", false, "Validate without writing rows")
	exportCmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")

	rootCmd.AddCommand(watchCmd, importCmd, exportCmd)
}
