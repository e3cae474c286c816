// Command rendercheck validates a directory of component templates by
// compiling each one against the rowpage registry, the way `goat generate`
// validated a directory of component structs.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/sqlview/rowpage/internal/registry"
)

func main() {
	app := &cli.App{
		Name:  "rendercheck",
		Usage: "validate a rowpage component template directory",
		Commands: []cli.Command{
			{
				Name:    "check",
				Aliases: []string{"c"},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "directory",
						Usage: "the templates directory to validate",
					},
				},
				Action: func(c *cli.Context) error {
					directory := c.String("directory")
					if directory == "" {
						directory = c.Args().First()
					}
					if directory == "" {
						return fmt.Errorf("directory is required")
					}
					return check(directory)
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		defer func() {
			os.Exit(1)
		}()
	}
}

func check(directory string) error {
	log, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	reg := registry.New(log)
	if err := reg.RegisterBuiltins(); err != nil {
		return fmt.Errorf("register builtins: %w", err)
	}
	if err := reg.RegisterDirectory(os.DirFS(directory), "."); err != nil {
		return fmt.Errorf("compile %s: %w", directory, err)
	}

	fmt.Println("OK")
	return nil
}
