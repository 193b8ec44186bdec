package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/mcculloh213/digestwatch/internal/log"
	"github.com/mcculloh213/digestwatch/pkg/client"
	"github.com/mcculloh213/digestwatch/pkg/poller"
	"github.com/mcculloh213/digestwatch/pkg/ui"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func SetupCLI(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().String("base-url", "", "Digest API base URL (defaults to DIGEST_BASE_URL, then http://localhost:8080)")
	rootCmd.PersistentFlags().Duration("interval", poller.DefaultInterval, "Delay between two status checks")

	sleeperCmd := &cobra.Command{
		Use:   "sleeper",
		Short: "Queue a sleeper task and watch it to completion",
		Run: func(cmd *cobra.Command, args []string) {
			delay, err := cmd.Flags().GetInt("delay")
			if err != nil {
				log.GetLogger().Errorf("Error retrieving delay flag: %v", err)
				os.Exit(1)
			}
			noWatch, err := cmd.Flags().GetBool("no-watch")
			if err != nil {
				log.GetLogger().Errorf("Error retrieving no-watch flag: %v", err)
				os.Exit(1)
			}
			cl := newClient(cmd)
			handle, err := cl.LaunchSleeper(cmd.Context(), delay)
			if err != nil {
				log.GetLogger().Errorf("Failed to queue sleeper task: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to queue sleeper task: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Queued sleeper task %s (delay %d)\n", handle, delay)
			if noWatch {
				return
			}
			watchHandles(cmd, cl, []string{handle})
		},
	}
	sleeperCmd.Flags().Int("delay", client.DefaultSleeperDelay, "Sleeper delay argument")
	sleeperCmd.Flags().Bool("no-watch", false, "Queue only, do not watch the task")

	watchCmd := &cobra.Command{
		Use:   "watch [handle...]",
		Short: "Watch tasks until they reach a terminal status",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			watchHandles(cmd, newClient(cmd), args)
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status [handle]",
		Short: "Read a task's status once",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cl := newClient(cmd)
			rec, err := cl.TaskStatus(cmd.Context(), args[0])
			if err != nil {
				log.GetLogger().Errorf("Failed to read task status: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to read task status: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "- Task: %s, Name: %s, Status: %s, Result: %s\n",
				rec.TaskID, rec.TaskName, rec.Status, rec.Result)
		},
	}

	registerCmd := &cobra.Command{
		Use:   "register [handle]",
		Short: "Register a finished task's transformation with the content provider",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				log.GetLogger().Errorf("Wrong number of arguments, expected 1 got %v", len(args))
				fmt.Printf("Wrong number of arguments, expected 1 got %v", len(args))
				os.Exit(1)
			}
			handle := args[0]
			cl := newClient(cmd)
			reg, err := cl.RegisterTransformation(cmd.Context(), handle)
			if errors.Is(err, client.ErrAlreadyRegistered) {
				// The conflict is not an error: fall back to the status.
				fmt.Fprintf(os.Stdout, "Task %s already registered\n", handle)
				rec, err := cl.TaskStatus(cmd.Context(), handle)
				if err != nil {
					log.GetLogger().Errorf("Failed to read task status: %v", err)
					fmt.Fprintf(os.Stderr, "Error: failed to read task status: %v\n", err)
					os.Exit(1)
				}
				fmt.Fprintf(os.Stdout, "- Task: %s, Name: %s, Status: %s, Result: %s\n",
					rec.TaskID, rec.TaskName, rec.Status, rec.Result)
				return
			}
			if err != nil {
				log.GetLogger().Errorf("Failed to register task: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to register task: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Registered task %s as file %s\n", handle, reg.File)
		},
	}

	rootCmd.AddCommand(sleeperCmd, watchCmd, statusCmd, registerCmd)
}

func watchHandles(cmd *cobra.Command, cl *client.Client, handles []string) {
	interval, err := cmd.Flags().GetDuration("interval")
	if err != nil {
		log.GetLogger().Errorf("Error retrieving interval flag: %v", err)
		os.Exit(1)
	}

	table := ui.NewMemoryTable()
	for _, handle := range handles {
		table.AddRow(handle, "")
	}

	p := poller.NewPoller(cl, table,
		poller.WithInterval(interval),
		poller.WithLogger(log.GetLogger()))

	watches := make([]*poller.Watch, 0, len(handles))
	for _, handle := range handles {
		w, err := p.Watch(cmd.Context(), handle)
		if err != nil {
			log.GetLogger().Errorf("Failed to watch task %s: %v", handle, err)
			continue
		}
		watches = append(watches, w)
	}

	failed := false
	for _, w := range watches {
		<-w.Done()
		if snap := w.Snapshot(); snap.State == poller.ErroredState {
			failed = true
		}
	}

	printTable(table)
	if failed {
		os.Exit(1)
	}
}

func printTable(table *ui.MemoryTable) {
	fmt.Fprintf(os.Stdout, "Tasks:\n")
	for _, row := range table.Snapshot() {
		fmt.Fprintf(os.Stdout, "- Task: %s, Status: %s, Result: %s\n",
			row.Handle, row.Cells[ui.StatusCell], row.Cells[ui.ResultCell])
	}
}

func newClient(cmd *cobra.Command) *client.Client {
	return client.NewClient(resolveBaseURL(cmd), client.WithLogger(log.GetLogger()))
}

func resolveBaseURL(cmd *cobra.Command) string {
	baseURL, err := cmd.Flags().GetString("base-url")
	if err != nil {
		log.GetLogger().Errorf("Error retrieving base-url flag: %v", err)
		os.Exit(1)
	}
	if baseURL != "" {
		return baseURL
	}
	// Load .env if present
	if err := godotenv.Load(); err != nil {
		log.GetLogger().Debugf("No .env file found: %v", err)
	}
	if env := os.Getenv("DIGEST_BASE_URL"); env != "" {
		return env
	}
	return "http://localhost:8080"
}
