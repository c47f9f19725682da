package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/replyd/internal/bandit"
)

var (
	// stateBackend selects the persistence backend to read from
	stateBackend string
	// stateJSON switches output to raw JSON
	stateJSON bool
)

func init() {
	stateCmd.Flags().StringVar(&stateBackend, "backend", "file", "state backend: file or sqlite")
	stateCmd.Flags().BoolVar(&stateJSON, "json", false, "print the raw state as JSON")
	rootCmd.AddCommand(stateCmd)
}

// stateCmd inspects persisted bandit state
var stateCmd = &cobra.Command{
	Use:   "state <path>",
	Short: "Inspect persisted bandit state",
	Long: `Inspect the bandit state persisted by a replyd daemon. Reads the
file or sqlite store directly, so the daemon does not need to be running.

Examples:
  # Summarize the default file store
  replyctl state data/bandit_state.json

  # Dump a sqlite store as JSON
  replyctl state data/bandit_state.db --backend sqlite --json`,
	Args: cobra.ExactArgs(1),
	RunE: runState,
}

// runState handles the state command
func runState(cmd *cobra.Command, args []string) error {
	state, err := loadState(args[0])
	if err != nil {
		return err
	}
	if state == nil {
		fmt.Println("No persisted state (the policy has not been updated yet).")
		return nil
	}
	if err := state.Validate(); err != nil {
		return fmt.Errorf("persisted state is invalid: %w", err)
	}

	if stateJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(state)
	}

	diag := make([]float64, state.Dim)
	trace := 0.0
	for i := 0; i < state.Dim; i++ {
		diag[i] = state.A[i][i]
		trace += state.A[i][i]
	}
	sort.Float64s(diag)

	fmt.Printf("Dimension:   %d\n", state.Dim)
	fmt.Printf("Trace(A):    %.4f\n", trace)
	fmt.Printf("Diag(A) min: %.4f\n", diag[0])
	fmt.Printf("Diag(A) max: %.4f\n", diag[state.Dim-1])
	fmt.Printf("b:           %v\n", state.B)
	return nil
}

// loadState opens the configured backend and reads the snapshot
func loadState(path string) (*bandit.State, error) {
	switch stateBackend {
	case "file":
		store, err := bandit.NewFileStore(path)
		if err != nil {
			return nil, err
		}
		return store.Load()
	case "sqlite":
		store, err := bandit.NewSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return store.Load()
	default:
		return nil, fmt.Errorf("unknown state backend %q (use file or sqlite)", stateBackend)
	}
}
