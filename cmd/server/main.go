/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the ingredient allocation server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite cache
  3. Build the spreadsheet source
  4. Create API handler with dependencies
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port       HTTP server port (default: 8080)
  -db         SQLite cache path (default: stock.db, ":memory:" supported)
  -sheet      Path to the stock workbook (.xlsx) or a CSV export
  -worksheet  Worksheet name inside the workbook (default: CHECK_OUT)
  -cache-ttl  Max age of the cached table before re-fetch (default: 1h)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Serve from the workbook with a file cache
  ./server -sheet="./data/stock-management.xlsx" -db="./data/stock.db"

  # Serve a CSV export with an in-memory cache
  ./server -sheet="./data/checkout.csv" -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Cache implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spp/stock-engine/api"
	"github.com/spp/stock-engine/sheet"
	"github.com/spp/stock-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "stock.db", "SQLite cache path")
	sheetPath := flag.String("sheet", "", "Path to the stock workbook (.xlsx) or CSV export")
	worksheet := flag.String("worksheet", sheet.DefaultWorksheet, "Worksheet name inside the workbook")
	cacheTTL := flag.Duration("cache-ttl", time.Hour, "Max age of the cached table before re-fetch")
	flag.Parse()

	if *sheetPath == "" {
		log.Fatal("-sheet is required")
	}

	// Initialize cache
	cache, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}
	defer cache.Close()

	// Build the source from the file extension
	var source sheet.Source
	if strings.HasSuffix(strings.ToLower(*sheetPath), ".csv") {
		source = sheet.NewCSVSource(*sheetPath)
	} else {
		source = sheet.NewXLSXSource(*sheetPath, *worksheet)
	}

	// Initialize handler and router
	handler := api.NewHandler(cache, source, *cacheTTL)
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
