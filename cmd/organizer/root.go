package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yungbote/organizer-backend/internal/pkg/errkind"
)

// Exit codes, stable for scripting.
const (
	exitOK                 = 0
	exitValidation         = 2
	exitPlanningIncomplete = 3
	exitExecution          = 4
	exitStore              = 5
)

func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	switch errkind.KindOf(err) {
	case errkind.Validation, errkind.Unsupported, errkind.Conflict:
		return exitValidation
	case errkind.PlanningIncomplete:
		return exitPlanningIncomplete
	case errkind.Store:
		return exitStore
	default:
		return exitExecution
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "organizer",
		Short:         "Document organization pipeline",
		Long:          "Ingests a ZIP of documents, removes duplicates, resolves versions and produces an organized tree.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newWorkerCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newRollbackCmd())
	return root
}

func Execute() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitCodeFor(err)
	}
	return exitOK
}
