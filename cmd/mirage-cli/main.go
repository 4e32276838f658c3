package main

import (
	"database/sql"
	"fmt"
	"os"
	"text/tabwriter"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
)

var (
	db     *sql.DB
	dbPath = "data/mirage.db"
)

func init() {
	cobra.OnInitialize(initDB)
}

func initDB() {
	var err error
	db, err = sql.Open("sqlite3", dbPath)
	if err != nil {
		fmt.Printf("Error opening database: %v\n", err)
		os.Exit(1)
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "mirage-cli",
		Short: "Mirage CLI - Incident and Event Database Queries",
		Long: `Mirage CLI queries the Mirage pipeline database.
Inspect closed incidents, executed response actions, deception events, and attacker sources.`,
	}
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", dbPath, "path to database file")

	// Incident commands
	incidentCmd := &cobra.Command{
		Use:   "incident",
		Short: "Query closed incidents",
	}
	incidentCmd.AddCommand(
		&cobra.Command{Use: "list", Short: "List recent incidents", Run: listIncidents},
		&cobra.Command{Use: "view [id]", Short: "View incident details", Args: cobra.ExactArgs(1), Run: viewIncident},
		&cobra.Command{Use: "stats", Short: "Show incident statistics", Run: incidentStats},
		&cobra.Command{Use: "by-ip [ip]", Short: "Incidents from IP", Args: cobra.ExactArgs(1), Run: incidentsByIP},
	)

	// Deception event commands
	eventCmd := &cobra.Command{
		Use:   "event",
		Short: "Query deception events",
	}
	eventCmd.AddCommand(
		&cobra.Command{Use: "list", Short: "List recent deception events", Run: listEvents},
		&cobra.Command{Use: "by-ip [ip]", Short: "Events from IP", Args: cobra.ExactArgs(1), Run: eventsByIP},
	)

	// Source commands
	sourceCmd := &cobra.Command{
		Use:   "source",
		Short: "Query attacker sources",
	}
	sourceCmd.AddCommand(
		&cobra.Command{Use: "top", Short: "Most frequent event sources", Run: topSources},
	)

	// Database commands
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database operations",
	}
	dbCmd.AddCommand(
		&cobra.Command{Use: "stats", Short: "Database statistics", Run: dbStats},
	)

	rootCmd.AddCommand(incidentCmd, eventCmd, sourceCmd, dbCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// ============== INCIDENT COMMANDS ==============

func listIncidents(cmd *cobra.Command, args []string) {
	rows, err := db.Query(`
		SELECT id, threat_type, COALESCE(source_ip, ''), score, closed_at
		FROM incidents ORDER BY closed_at DESC LIMIT 50
	`)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTHREAT TYPE\tSOURCE IP\tSCORE\tCLOSED")

	count := 0
	for rows.Next() {
		var id, threatType, sourceIP, closedAt string
		var score float64
		rows.Scan(&id, &threatType, &sourceIP, &score, &closedAt)
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\n", id, threatType, sourceIP, score, closedAt)
		count++
	}
	w.Flush()
	fmt.Printf("\nTotal: %d incidents\n", count)
}

func viewIncident(cmd *cobra.Command, args []string) {
	var id, threatType, sourceIP, openedAt, closedAt string
	var score float64

	err := db.QueryRow(`
		SELECT id, threat_type, COALESCE(source_ip, ''), score, opened_at, closed_at
		FROM incidents WHERE id = ?
	`, args[0]).Scan(&id, &threatType, &sourceIP, &score, &openedAt, &closedAt)

	if err == sql.ErrNoRows {
		fmt.Printf("✗ Incident not found: %s\n", args[0])
		return
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Printf(`
Incident %s
===========
Threat Type:   %s
Source IP:     %s
Score:         %.2f
Opened:        %s
Closed:        %s

Actions:
`, id, threatType, sourceIP, score, openedAt, closedAt)

	rows, err := db.Query(`
		SELECT action, status, COALESCE(detail, '')
		FROM incident_actions WHERE incident_id = ? ORDER BY id
	`, args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ACTION\tSTATUS\tDETAIL")
	for rows.Next() {
		var action, status, detail string
		rows.Scan(&action, &status, &detail)
		fmt.Fprintf(w, "%s\t%s\t%s\n", action, status, detail)
	}
	w.Flush()
}

func incidentStats(cmd *cobra.Command, args []string) {
	var total, uniqueIPs int
	var latest string

	db.QueryRow(`
		SELECT COUNT(*), COUNT(DISTINCT source_ip), COALESCE(MAX(closed_at), 'never')
		FROM incidents
	`).Scan(&total, &uniqueIPs, &latest)

	fmt.Printf(`
Incident Statistics
===================
Total Incidents:   %d
Unique Sources:    %d
Latest Incident:   %s

By Threat Type:
`, total, uniqueIPs, latest)

	rows, err := db.Query(`
		SELECT threat_type, COUNT(*) FROM incidents GROUP BY threat_type ORDER BY COUNT(*) DESC
	`)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for rows.Next() {
		var threatType string
		var count int
		rows.Scan(&threatType, &count)
		fmt.Fprintf(w, "%s\t%d\n", threatType, count)
	}
	w.Flush()
}

func incidentsByIP(cmd *cobra.Command, args []string) {
	rows, err := db.Query(`
		SELECT id, threat_type, score, closed_at
		FROM incidents WHERE source_ip = ? ORDER BY closed_at DESC
	`, args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Incidents from %s\n", args[0])
	fmt.Fprintln(w, "ID\tTHREAT TYPE\tSCORE\tCLOSED")

	count := 0
	for rows.Next() {
		var id, threatType, closedAt string
		var score float64
		rows.Scan(&id, &threatType, &score, &closedAt)
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\n", id, threatType, score, closedAt)
		count++
	}
	w.Flush()
	fmt.Printf("\nTotal: %d\n", count)
}

// ============== EVENT COMMANDS ==============

func listEvents(cmd *cobra.Command, args []string) {
	rows, err := db.Query(`
		SELECT id, honeypot_id, COALESCE(source_ip, ''), bytes_read, occurred_at
		FROM deception_events ORDER BY id DESC LIMIT 50
	`)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tHONEYPOT\tSOURCE IP\tBYTES\tTIMESTAMP")

	count := 0
	for rows.Next() {
		var id, bytesRead int
		var honeypotID, sourceIP, occurredAt string
		rows.Scan(&id, &honeypotID, &sourceIP, &bytesRead, &occurredAt)
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", id, honeypotID, sourceIP, bytesRead, occurredAt)
		count++
	}
	w.Flush()
	fmt.Printf("\nTotal: %d events\n", count)
}

func eventsByIP(cmd *cobra.Command, args []string) {
	rows, err := db.Query(`
		SELECT id, honeypot_id, bytes_read, occurred_at
		FROM deception_events WHERE source_ip = ? ORDER BY id DESC
	`, args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Events from %s\n", args[0])
	fmt.Fprintln(w, "ID\tHONEYPOT\tBYTES\tTIMESTAMP")

	count := 0
	for rows.Next() {
		var id, bytesRead int
		var honeypotID, occurredAt string
		rows.Scan(&id, &honeypotID, &bytesRead, &occurredAt)
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", id, honeypotID, bytesRead, occurredAt)
		count++
	}
	w.Flush()
	fmt.Printf("\nTotal: %d\n", count)
}

// ============== SOURCE COMMANDS ==============

func topSources(cmd *cobra.Command, args []string) {
	rows, err := db.Query(`
		SELECT source_ip, COUNT(*) as hits FROM deception_events
		WHERE source_ip != '' GROUP BY source_ip ORDER BY hits DESC LIMIT 25
	`)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE IP\tEVENTS")

	count := 0
	for rows.Next() {
		var sourceIP string
		var hits int
		rows.Scan(&sourceIP, &hits)
		fmt.Fprintf(w, "%s\t%d\n", sourceIP, hits)
		count++
	}
	w.Flush()
	fmt.Printf("\nTotal: %d sources\n", count)
}

// ============== DATABASE COMMANDS ==============

func dbStats(cmd *cobra.Command, args []string) {
	var incidents, actions, events int

	db.QueryRow("SELECT COUNT(*) FROM incidents").Scan(&incidents)
	db.QueryRow("SELECT COUNT(*) FROM incident_actions").Scan(&actions)
	db.QueryRow("SELECT COUNT(*) FROM deception_events").Scan(&events)

	fileInfo, err := os.Stat(dbPath)
	size := "unknown"
	if err == nil {
		size = fmt.Sprintf("%.2f MB", float64(fileInfo.Size())/(1024*1024))
	}

	fmt.Printf(`
Database Statistics
====================
Incidents:        %d
Incident Actions: %d
Deception Events: %d
Database Size:    %s
`, incidents, actions, events, size)
}
