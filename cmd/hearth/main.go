// hearth is a personal agent that lives on your machine: it chats, runs
// tools under a safety classifier, remembers things about you, and executes
// scheduled prompts.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"hearth/internal/config"
)

var (
	configPath string
	userID     string
)

var rootCmd = &cobra.Command{
	Use:   "hearth",
	Short: "hearth - a personal agent with memory and scheduled tasks",
	Long: `hearth is a personal assistant agent. It runs shell commands, manages
files in a sandbox, fetches web pages, remembers facts about you across
sessions, and runs scheduled prompts.

Every tool call is classified before it runs: read-only operations execute
immediately, mutating ones ask you first, destructive ones are refused.

Run without arguments to start the interactive terminal session.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(configPath)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := app.StartScheduler(); err != nil {
			return err
		}
		return app.RunTerminal(ctx, userID)
	},
}

var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Ask a single question and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(configPath)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		answer, err := app.Ask(ctx, userID, strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Println(answer)
		return nil
	},
}

var maintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Run retention cleanup and profile confidence decay now",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(configPath)
		if err != nil {
			return err
		}
		defer app.Close()
		return app.RunMaintenance()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "local", "user identity for session mapping")
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(maintenanceCmd)
}

func main() {
	// Guard constants are load-bearing safety limits; refuse to start if a
	// build ever changes them.
	if err := config.VerifyGuards(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
