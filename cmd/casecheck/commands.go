// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/goccy/go-yaml"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vgmedical/casecheck/internal/casestore"
	"github.com/vgmedical/casecheck/internal/db"
	"github.com/vgmedical/casecheck/internal/document"
	"github.com/vgmedical/casecheck/internal/equivalence"
	"github.com/vgmedical/casecheck/internal/report"
	"github.com/vgmedical/casecheck/internal/tool"
)

// withApp wires the runtime for the duration of one command.
func (c *cli) withApp(ctx context.Context, fn func(a *app) error) error {
	a, err := newApp(ctx, c.cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))
	return fn(a)
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the verification tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				server := mcp.NewServer(&mcp.Implementation{Name: serviceName, Version: version}, nil)
				tool.New(a.service, a.store, a.cases, a.suggester).Register(server)

				log.Info().Str("version", version).Msg("MCP server listening on stdio")
				return server.Run(cmd.Context(), &mcp.StdioTransport{})
			})
		},
	}
}

// caseFiles are the three document paths shared by verify and suggest.
type caseFiles struct {
	internal    string
	hospital    string
	description string
}

func (f *caseFiles) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.internal, "internal", "", "Internal expense record")
	cmd.Flags().StringVar(&f.hospital, "hospital", "", "Hospital record")
	cmd.Flags().StringVar(&f.description, "description", "", "Surgical description")
	for _, name := range []string{"internal", "hospital", "description"} {
		_ = cmd.MarkFlagRequired(name)
	}
}

func (f *caseFiles) documents() ([]document.Document, error) {
	paths := map[document.Type]string{
		document.TypeInternal:    f.internal,
		document.TypeHospital:    f.hospital,
		document.TypeDescription: f.description,
	}
	docs := make([]document.Document, 0, len(paths))
	for _, t := range document.Types {
		content, err := os.ReadFile(paths[t])
		if err != nil {
			return nil, fmt.Errorf("read %s document: %w", t, err)
		}
		docs = append(docs, document.Document{Type: t, Name: filepath.Base(paths[t]), Content: content})
	}
	return docs, nil
}

func (c *cli) verifyCmd() *cobra.Command {
	var files caseFiles
	var format string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a case from its three documents and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := files.documents()
			if err != nil {
				return err
			}
			return c.withApp(cmd.Context(), func(a *app) error {
				cs, r, err := a.service.Run(cmd.Context(), docs...)
				if err != nil {
					return err
				}
				if err := a.cases.Save(cmd.Context(), casestore.Record{Case: cs, Report: r}); err != nil {
					return err
				}
				return writeReport(cmd.OutOrStdout(), r, format)
			})
		},
	}
	files.bind(cmd)
	cmd.Flags().StringVarP(&format, "format", "o", "json", "Output format: json or yaml")
	return cmd
}

func writeReport(w io.Writer, r *report.VerificationReport, format string) error {
	switch format {
	case "yaml":
		data, err := r.YAML()
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case "json":
		return writeJSON(w, r)
	}
	return fmt.Errorf("unsupported format %q", format)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) suggestCmd() *cobra.Command {
	var files caseFiles
	cmd := &cobra.Command{
		Use:   "suggest [case-id]",
		Short: "Suggest equivalences for the unmatched supplies of a case",
		Long: "Suggest equivalences for a stored case (by case id or case number, needs REDIS_URL) " +
			"or for a case given as --internal/--hospital/--description files.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				var r *report.VerificationReport
				if len(args) == 1 {
					rec, err := a.cases.Get(cmd.Context(), args[0])
					if err != nil {
						return fmt.Errorf("case %s: %w", args[0], err)
					}
					if r, err = a.service.VerifyCase(cmd.Context(), rec.Case); err != nil {
						return err
					}
				} else {
					docs, err := files.documents()
					if err != nil {
						return err
					}
					if _, r, err = a.service.Run(cmd.Context(), docs...); err != nil {
						return err
					}
				}
				return writeJSON(cmd.OutOrStdout(), a.suggester.Suggest(r, a.store.Snapshot()))
			})
		},
	}
	cmd.Flags().StringVar(&files.internal, "internal", "", "Internal expense record")
	cmd.Flags().StringVar(&files.hospital, "hospital", "", "Hospital record")
	cmd.Flags().StringVar(&files.description, "description", "", "Surgical description")
	cmd.MarkFlagsRequiredTogether("internal", "hospital", "description")
	return cmd
}

func (c *cli) equivalenceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "equivalence",
		Aliases: []string{"eq"},
		Short:   "Manage supply name equivalences",
	}

	var aliases []string
	var override bool
	addCmd := &cobra.Command{
		Use:   "add <canonical-name>",
		Short: "Create or extend an equivalence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				e, err := a.store.CreateOrUpdate(cmd.Context(), args[0], aliases, override)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), e)
			})
		},
	}
	addCmd.Flags().StringArrayVarP(&aliases, "alias", "a", nil, "Alias of the canonical name (repeatable)")
	addCmd.Flags().BoolVar(&override, "override", false, "Move aliases owned by another canonical name")
	_ = addCmd.MarkFlagRequired("alias")
	cmd.AddCommand(addCmd)

	var format string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all equivalences",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				entries := a.store.List()
				switch format {
				case "yaml":
					data, err := yaml.Marshal(entries)
					if err != nil {
						return err
					}
					_, err = cmd.OutOrStdout().Write(data)
					return err
				case "json":
					return writeJSON(cmd.OutOrStdout(), entries)
				case "table":
					tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "CANONICAL\tALIASES\tTIMES USED")
					for _, e := range entries {
						fmt.Fprintf(tw, "%s\t%d\t%d\n", e.CanonicalName, len(e.Aliases), e.TimesUsed)
					}
					return tw.Flush()
				}
				return fmt.Errorf("unsupported format %q", format)
			})
		},
	}
	listCmd.Flags().StringVarP(&format, "format", "o", "table", "Output format: table, json or yaml")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "import <seed-file>",
		Short: "Import equivalences from a YAML seed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := equivalence.LoadSeedFile(args[0])
			if err != nil {
				return err
			}
			return c.withApp(cmd.Context(), func(a *app) error {
				n, err := a.store.Import(cmd.Context(), entries)
				if err != nil {
					return fmt.Errorf("imported %d of %d entries: %w", n, len(entries), err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d equivalence(s).\n", n)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <canonical-name>",
		Short: "Delete an equivalence and its aliases",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				return a.store.Delete(cmd.Context(), args[0])
			})
		},
	})

	return cmd
}

func (c *cli) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	open := func(ctx context.Context) (*db.Migrator, func(), error) {
		if c.cfg.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("DATABASE_URL is required")
		}
		pool, err := db.NewPool(ctx, c.cfg.DatabaseURL, c.cfg.DBMaxConns, c.cfg.DBMinConns)
		if err != nil {
			return nil, nil, err
		}
		return db.NewMigrator(pool, db.Migrations()), pool.Close, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closePool, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closePool()

			count, err := migrator.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closePool, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closePool()

			statuses, err := migrator.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}
