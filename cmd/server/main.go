// Command server runs the rowpage HTTP service: it loads a templates
// directory and a SQL DSN from a YAML config file, then serves rendered
// queries over HTTP and Datastar SSE.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	_ "github.com/marcboeker/go-duckdb"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sqlview/rowpage"
	"github.com/sqlview/rowpage/config"
	"github.com/sqlview/rowpage/internal/server"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "server",
		Short: "Serve SQL query results rendered through rowpage components",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "rowpage.yaml", "path to the server config file")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := server.OpenDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	engine, err := rowpage.New(rowpage.Options{
		TemplatesFS:  os.DirFS(cfg.Templates.Dir),
		TemplatesDir: ".",
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("build render engine: %w", err)
	}

	srv := server.New(*cfg, db, engine, log)
	handler, err := srv.Handler()
	if err != nil {
		return fmt.Errorf("build http handler: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info("listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, handler)
}
