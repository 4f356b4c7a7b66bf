package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/launchmate/config"
	"github.com/c360studio/launchmate/insight"
	"github.com/c360studio/launchmate/phase"
	"github.com/c360studio/launchmate/project"
)

func projectsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List, add and delete projects",
	}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List the projects visible to the identity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withApp(cmd, func(ctx context.Context, app *App) error {
				if err := app.Load(ctx); err != nil {
					return err
				}
				projects := app.service.Projects()
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), projects)
				}
				return printProjects(cmd.OutOrStdout(), app.service.Registry(), projects)
			})
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	var f project.Fields
	add := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a project at the first phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(ctx context.Context, app *App) error {
				if err := app.Load(ctx); err != nil {
					return err
				}
				f.Title = args[0]
				f.OwnerID = app.cfg.Identity
				created, err := app.service.AddProject(ctx, f)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s) at %s\n", created.Title, created.ID, created.Stage)
				return nil
			})
		},
	}
	add.Flags().StringVarP(&f.Description, "description", "d", "", "Description (required)")
	add.Flags().StringVar(&f.Problem, "problem", "", "Problem statement")
	add.Flags().StringVar(&f.TargetAudience, "audience", "", "Target audience")
	add.Flags().StringSliceVar(&f.Tags, "tag", nil, "Tag (repeatable)")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(ctx context.Context, app *App) error {
				if err := app.Load(ctx); err != nil {
					return err
				}
				if err := app.service.DeleteProject(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(list, add, del)
	return cmd
}

func toggleCmd(g *globals) *cobra.Command {
	var milestone string
	var index int
	cmd := &cobra.Command{
		Use:   "toggle <project-id> <phase-id>",
		Short: "Flip one task and advance the project when its phase completes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(ctx context.Context, app *App) error {
				if err := app.Load(ctx); err != nil {
					return err
				}
				commit, err := app.service.ToggleTask(ctx, args[0], args[1], milestone, index)
				if err != nil {
					return err
				}
				out := commit.Outcome
				state := "open"
				if out.TaskCompleted {
					state = "done"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %d of %s is %s\n", index, out.MilestoneID, state)
				if out.Advanced {
					fmt.Fprintf(cmd.OutOrStdout(), "Advanced from %s to %s\n", out.From, out.To)
				}
				if err := commit.Wait(ctx); err != nil {
					return fmt.Errorf("remote write: %w", err)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&milestone, "milestone", "m", "", "Milestone id or unique title")
	cmd.Flags().IntVarP(&index, "task", "t", 0, "Task index within the milestone")
	_ = cmd.MarkFlagRequired("milestone")
	return cmd
}

func backfillCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "backfill <project-id>",
		Short: "Generate insights until the project has the minimum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(ctx context.Context, app *App) error {
				if err := app.Load(ctx); err != nil {
					return err
				}
				out := app.backfill.Ensure(ctx, args[0])
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d -> %d insights (%d appended, %d failed generations)\n",
					out.Final, out.Initial, out.Count, out.Appended, out.GenerationFailures)
				if out.Err != nil {
					return out.Err
				}
				p, ok := app.service.Project(args[0])
				if !ok {
					return nil
				}
				for _, in := range insight.Visible(p.Insights) {
					fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", in.Content)
				}
				return nil
			})
		},
	}
}

func phasesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "phases",
		Short: "Print the phase order and milestone templates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			reg := phase.Default()
			if cfg.Phases.File != "" {
				if reg, err = phase.LoadFile(cfg.Phases.File); err != nil {
					return err
				}
			}
			w := cmd.OutOrStdout()
			for i, d := range reg.Definitions() {
				fmt.Fprintf(w, "%d. %s (%s)\n", i+1, d.Title, d.ID)
				for _, m := range d.Milestones {
					fmt.Fprintf(w, "   - %s: %d tasks\n", m.Title, len(m.Tasks))
				}
			}
			return nil
		},
	}
}

func configCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "init",
			Short: "Write the default user config if none exists",
			RunE: func(cmd *cobra.Command, _ []string) error {
				path, err := config.NewLoader(slog.Default()).EnsureUserConfig()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Config: %s\n", path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the resolved configuration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := g.loadConfig()
				if err != nil {
					return err
				}
				redacted := *cfg
				if redacted.Mongo.URI != "" {
					redacted.Mongo.URI = redactURI(redacted.Mongo.URI)
				}
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(&redacted)
			},
		},
	)
	return cmd
}

func printProjects(w io.Writer, reg *phase.Registry, projects []*project.Project) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSTAGE\tPROGRESS\tINSIGHTS")
	for _, p := range projects {
		done, total := 0, 0
		for _, m := range p.Milestones[p.Stage] {
			d, t := m.Progress()
			done += d
			total += t
		}
		stage := p.Stage
		if d, ok := reg.Definition(p.Stage); ok {
			stage = d.Title
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%d\n", p.ID, p.Title, stage, done, total, len(insight.Visible(p.Insights)))
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// redactURI hides the userinfo of a connection string.
func redactURI(uri string) string {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return uri
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		return scheme + "://***@" + rest[at+1:]
	}
	return uri
}
