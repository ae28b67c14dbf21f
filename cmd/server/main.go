/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the payroll engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Load the rule catalog (built-in or from a JSON file)
  4. Build the evaluation engine and payroll service
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port     HTTP server port (default: 8080)
  -db       SQLite database path (default: payroll.db)
            Use ":memory:" for in-memory database
  -catalog  Path to a rule catalog JSON file (default: built-in catalog)
  -extra    CODE=value pair exposed to rule expressions as payroll.CODE
            (repeatable)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database and built-in catalog
  ./server -db="./data/payroll.db"

  # Run with a custom rule catalog
  ./server -catalog="./config/rules.json"

  # Expose a constant to rule expressions as payroll.FUEL_SUBSIDY
  ./server -extra="FUEL_SUBSIDY=150"

SEE ALSO:
  - api/server.go: Router configuration
  - factory/catalog.go: Built-in rule catalog
  - store/sqlite/sqlite.go: Database implementation
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

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "payroll.db", "SQLite database path")
	catalogPath := flag.String("catalog", "", "rule catalog JSON file (empty = built-in)")
	extras := map[string]decimal.Decimal{}
	flag.Func("extra", "CODE=value constant for rule expressions (repeatable)", func(s string) error {
		code, raw, ok := strings.Cut(s, "=")
		if !ok || code == "" {
			return fmt.Errorf("want CODE=value, got %q", s)
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return err
		}
		extras[code] = v
		return nil
	})
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Load the rule catalog
	f := factory.NewRuleFactory()
	var catalog *factory.Catalog
	if *catalogPath != "" {
		catalog, err = f.LoadCatalog(*catalogPath)
	} else {
		catalog, err = f.ParseCatalog(factory.StandardCatalogJSON())
	}
	if err != nil {
		log.Fatalf("Failed to load rule catalog: %v", err)
	}

	// Build the evaluation engine over the store
	eng, err := engine.New(catalog.Rules,
		engine.WithContracts(store),
		engine.WithHistory(store),
		engine.WithSequence(store),
		engine.WithParameters(payroll.NewParameters(catalog.Parameters...)),
		engine.WithExtras(extras),
		engine.WithEmployeeNames(func(id engine.EmployeeID) string {
			emp, err := store.Employee(context.Background(), id)
			if err != nil {
				return ""
			}
			return emp.Name
		}),
	)
	if err != nil {
		log.Fatalf("Failed to build engine: %v", err)
	}

	// Payroll service and HTTP layer
	svc := payroll.NewService(store, eng, payroll.Config{})
	handler := api.NewHandler(store, svc)
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
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
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
