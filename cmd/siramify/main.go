package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"siramify-telemetry/internal/api"
	"siramify-telemetry/internal/config"
	"siramify-telemetry/internal/dashboard"
	"siramify-telemetry/internal/db"
	"siramify-telemetry/internal/export"
	"siramify-telemetry/internal/models"
	"siramify-telemetry/internal/normalize"
	"siramify-telemetry/internal/predict"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	cfg      config.Config
	dbPath   string
	database *db.Database
)

func main() {
	cfg = config.Load()

	rootCmd := &cobra.Command{
		Use:   "siramify",
		Short: "Siramify telemetry service - irrigation monitoring pipeline",
		Long: `Normalizes heterogeneous soil sensor rows, classifies soil moisture,
consults an external predictive model with graceful degradation, and serves
the farmer dashboard, watering history, and CSV export.`,
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to SQLite database (defaults to SIRAMIFY_DB)")

	rootCmd.AddCommand(serverCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(deleteCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initDB initializes the database connection.
func initDB() error {
	path := dbPath
	if path == "" {
		path = cfg.DBPath
	}
	var err error
	database, err = db.New(path)
	if err != nil {
		return err
	}
	if cfg.Owner != "" {
		database.SetOwnerFilter(cfg.Owner)
	}
	return nil
}

func dashboardOptions() dashboard.Options {
	return dashboard.Options{
		TodayWindow:   cfg.DashboardTodayWindow,
		WeekWindow:    cfg.DashboardWeekWindow,
		CalendarDates: cfg.DashboardCalendar,
	}
}

// serverCmd starts the REST API server.
func serverCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			gateway := predict.NewGateway(cfg.PredictURL, cfg.PredictTimeout)
			server := api.NewServer(database, gateway, dashboardOptions())

			addr := fmt.Sprintf(":%d", port)
			if port == 0 {
				addr = ":" + cfg.Port
			}

			fmt.Printf("Siramify telemetry API listening on %s\n", addr)
			if cfg.PredictURL == "" {
				fmt.Println("PREDICT_URL not set; status predictions will be unavailable")
			}
			return http.ListenAndServe(addr, server.Handler(cfg.CORSOrigin))
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Server port (defaults to SIRAMIFY_PORT)")
	return cmd
}

// ingestCmd loads raw telemetry rows from files.
func ingestCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Ingest raw telemetry rows from JSON or CSV files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			total := 0
			for _, file := range args {
				rows, err := readRows(file, format)
				if err != nil {
					fmt.Printf("  %s: %v\n", file, err)
					continue
				}
				count, err := database.InsertBatch(context.Background(), rows)
				if err != nil {
					fmt.Printf("  %s: database error: %v\n", file, err)
					continue
				}
				fmt.Printf("  %s: %d rows\n", file, count)
				total += int(count)
			}
			fmt.Printf("Total: %d rows ingested\n", total)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "File format (json, csv)")
	return cmd
}

// readRows parses a file of raw rows. Keys and value encodings are kept as-is;
// the normalizer absorbs the variance at read time.
func readRows(filename, format string) ([]models.RawRow, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(format) {
	case "json":
		var rows []models.RawRow
		if err := json.NewDecoder(f).Decode(&rows); err != nil {
			return nil, fmt.Errorf("decode JSON array: %w", err)
		}
		return rows, nil
	case "csv":
		reader := csv.NewReader(f)
		reader.FieldsPerRecord = -1
		header, err := reader.Read()
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		records, err := reader.ReadAll()
		if err != nil {
			return nil, err
		}
		rows := make([]models.RawRow, 0, len(records))
		for _, record := range records {
			raw := models.RawRow{}
			for i, key := range header {
				if i < len(record) {
					raw[key] = record[i]
				}
			}
			rows = append(rows, raw)
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// exportCmd writes the full normalized record set as CSV.
func exportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all telemetry to CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			rows, err := database.ExportAll(context.Background())
			if err != nil {
				return fmt.Errorf("%w: %v", models.ErrExportFailed, err)
			}

			records := make([]models.TelemetryRecord, 0, len(rows))
			for i, row := range rows {
				rec := normalize.Normalize(row.Raw, i)
				rec.ID = strconv.FormatInt(row.ID, 10)
				records = append(records, rec)
			}

			data, err := export.CSV(records)
			if err != nil {
				return err
			}

			if output == "" {
				output = export.Filename(time.Now())
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Printf("Exported %d records to %s\n", len(records), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (defaults to data_penyiraman_<date>.csv)")
	return cmd
}

// statsCmd prints dashboard rollups.
func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show dashboard statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			ctx := context.Background()
			opts := dashboardOptions()

			rows, err := database.RecentRows(ctx, opts.WeekWindow)
			if err != nil {
				return fmt.Errorf("query recent rows: %w", err)
			}
			records := make([]models.TelemetryRecord, 0, len(rows))
			for i, row := range rows {
				records = append(records, normalize.Normalize(row.Raw, i))
			}

			total, err := database.Count(ctx)
			if err != nil {
				return fmt.Errorf("count: %w", err)
			}

			stats := dashboard.Aggregate(records, opts)
			fmt.Println("Siramify telemetry statistics")
			fmt.Println("=============================")
			fmt.Printf("  Total records:    %d\n", total)
			fmt.Printf("  Watered today:    %d\n", stats.TodayCount)
			fmt.Printf("  Watered this week: %d\n", stats.WeekCount)
			fmt.Printf("  Avg temperature:  %.1f\n", stats.AvgTemperature)
			fmt.Printf("  Avg humidity:     %.1f%%\n", stats.AvgHumidity)
			return nil
		},
	}
}

// generateCmd inserts sample telemetry rows for local development.
func generateCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate sample telemetry rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			deviceID := uuid.NewString()
			base := time.Now().Add(-time.Duration(count) * time.Hour)

			rows := make([]models.RawRow, 0, count)
			for i := 0; i < count; i++ {
				ts := base.Add(time.Duration(i) * time.Hour)
				rows = append(rows, models.RawRow{
					"device_id":  deviceID,
					"Tanggal":    ts.Format("02/01/2006 15:04"),
					"Suhu":       20 + rand.Float64()*15,
					"Kelembapan": 30 + rand.Float64()*60,
				})
			}

			inserted, err := database.InsertBatch(context.Background(), rows)
			if err != nil {
				return fmt.Errorf("insert sample rows: %w", err)
			}
			fmt.Printf("Generated %d rows for device %s\n", inserted, deviceID)
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "c", 50, "Number of rows to generate")
	return cmd
}

// deleteCmd removes one record by id.
func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one telemetry record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("id must be an integer: %w", err)
			}
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			if err := database.Delete(context.Background(), id); err != nil {
				return err
			}
			fmt.Printf("Deleted record %d\n", id)
			return nil
		},
	}
}
