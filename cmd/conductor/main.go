// Command conductor runs the task orchestration service: a role-based
// task manager, workflow engine, and HTTP admin API backed by an
// LLM worker per role.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/crewlab/conductor/internal/log"
)

var version = "dev"

func main() {
	// Missing .env is the normal case.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "conductor",
		Short: "Role-based task and workflow orchestrator",
		Long: "conductor schedules tasks across digital worker roles, runs\n" +
			"workflow DAGs, and records outcomes in a knowledge base.",
		SilenceUsage: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newTemplatesCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("conductor", version)
		},
	})

	if err := root.Execute(); err != nil {
		log.Get().Error(err)
		os.Exit(1)
	}
}
