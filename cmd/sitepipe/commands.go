package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/msageha/sitepipe/internal/livereload"
	"github.com/msageha/sitepipe/internal/model"
	"github.com/msageha/sitepipe/internal/setup"
	"github.com/msageha/sitepipe/internal/task"
	"github.com/msageha/sitepipe/internal/workflow"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "sitepipe",
		Short:         "Static site build pipeline",
		Long:          "sitepipe compiles, checks, previews and publishes a static website.\nWithout a command it starts the development server.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runDev(cmd.Context())
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().StringVar(&a.dir, "dir", ".", "project root")
	root.PersistentFlags().StringVar(&a.configPath, "config", model.DefaultConfigName, "configuration file, relative to the project root")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL and logging.level)")

	root.AddCommand(
		newServeCmd(a),
		newWorkflowCmd(a, "build", "Produce the output directory", workflow.NameBuild),
		newWorkflowCmd(a, "test", "Lint the style sources", workflow.NameTest),
		newWorkflowCmd(a, "deploy", "Build and publish the output to the hosting branch", workflow.NameDeploy),
		newGraphCmd(a),
		newInitCmd(a),
		newVersionCmd(a),
	)
	return root
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Build for development, serve with live reload and rebuild on change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runDev(cmd.Context())
		},
	}
}

func newWorkflowCmd(a *app, use, short, name string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runWorkflow(cmd.Context(), name)
		},
	}
}

// graph accepts the command names as well as the workflow names.
var graphAliases = map[string]string{
	"build":  workflow.NameBuild,
	"test":   workflow.NameTest,
	"deploy": workflow.NameDeploy,
	"serve":  workflow.NameDev,
	"dev":    workflow.NameDev,
}

func newGraphCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "graph [workflow]",
		Short: "Print a workflow's task tree with each task's outputs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := workflow.NameBuild
			if len(args) == 1 {
				name = args[0]
				if alias, ok := graphAliases[name]; ok {
					name = alias
				}
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			opts := a.options(nil)
			opts.Server = livereload.NewServer(livereload.Options{})
			root, err := workflow.ByName(name, cfg, opts)
			if err != nil {
				return err
			}
			if err := task.Validate(root); err != nil {
				return err
			}
			return task.Describe(cmd.OutOrStdout(), root)
		},
	}
}

func newInitCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a default sitepipe.yaml and starter sources",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.dir
			if len(args) == 1 {
				dir = args[0]
			}
			if err := setup.Run(dir, name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized %s\n", dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name (defaults to the directory name)")
	return cmd
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sitepipe %s\n", version)
		},
	}
}
