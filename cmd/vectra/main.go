// Command vectra is a thin driver around a namespace's snapshot file: it
// opens (or creates) a state file on disk and exposes add/query/init/stat
// subcommands reading JSON from stdin.
//
// Logging:
//   - Base logger is created here with a ComponentFilterHandler for
//     dynamic per-component level control
//   - The logger is passed to the namespace via dependency injection
//   - No package-level global logger
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"vectra/internal/apijson"
	"vectra/internal/config"
	"vectra/internal/filter"
	"vectra/internal/logging"
	"vectra/internal/namespace"
)

func main() {
	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	filterHandler := logging.NewComponentFilterHandler(baseHandler, slog.LevelInfo)
	logger := slog.New(filterHandler)

	rootCmd := &cobra.Command{
		Use:   "vectra",
		Short: "Embeddable binary-quantized vector-search engine",
	}
	rootCmd.PersistentFlags().String("state", "", "path to the namespace snapshot file")
	rootCmd.PersistentFlags().String("namespace-id", "default", "namespace identifier")
	_ = rootCmd.MarkPersistentFlagRequired("state")

	rootCmd.AddCommand(
		newInitCmd(logger),
		newAddCmd(logger),
		newQueryCmd(logger),
		newStatCmd(logger),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newInitCmd(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an empty namespace snapshot file for a given vector dimensionality",
		RunE: func(cmd *cobra.Command, args []string) error {
			statePath, _ := cmd.Flags().GetString("state")
			nsID, _ := cmd.Flags().GetString("namespace-id")
			dim, _ := cmd.Flags().GetInt("dim")
			if dim <= 0 {
				return fmt.Errorf("--dim must be positive")
			}
			ns := namespace.New(nsID, config.DefaultConfig(dim), logger)
			return saveNamespace(ns, statePath)
		},
	}
	cmd.Flags().Int("dim", 0, "float32 vector dimensionality")
	return cmd
}

type addInput struct {
	Vector   []float32       `json:"vector"`
	Metadata json.RawMessage `json:"metadata"`
}

func newAddCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "add",
		Short: "Add a vector, reading {\"vector\":[...],\"metadata\":[...]} from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			statePath, _ := cmd.Flags().GetString("state")

			var in addInput
			if err := json.NewDecoder(os.Stdin).Decode(&in); err != nil {
				return fmt.Errorf("decode stdin: %w", err)
			}
			metadata, err := apijson.UnmarshalMetadata(in.Metadata)
			if err != nil {
				return err
			}

			ns, err := loadNamespace(logger, statePath, len(in.Vector))
			if err != nil {
				return err
			}
			if err := ns.AddVector(in.Vector, metadata); err != nil {
				return err
			}
			return saveNamespace(ns, statePath)
		},
	}
}

type queryInput struct {
	Vector []float32       `json:"vector"`
	Filter json.RawMessage `json:"filter"`
	K      int             `json:"k"`
}

func newQueryCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "query",
		Short: "Query for nearest neighbors, reading {\"vector\":[...],\"filter\":...,\"k\":N} from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			statePath, _ := cmd.Flags().GetString("state")

			var in queryInput
			if err := json.NewDecoder(os.Stdin).Decode(&in); err != nil {
				return fmt.Errorf("decode stdin: %w", err)
			}

			var expr filter.Expr
			if len(in.Filter) > 0 && string(in.Filter) != "null" {
				parsed, err := apijson.UnmarshalFilter(in.Filter)
				if err != nil {
					return err
				}
				expr = parsed
			}

			ns, err := loadNamespace(logger, statePath, len(in.Vector))
			if err != nil {
				return err
			}
			hits, err := ns.Query(in.Vector, expr, in.K)
			if err != nil {
				return err
			}

			out := make([][]byte, len(hits))
			for i, h := range hits {
				b, err := apijson.MarshalMetadata(h)
				if err != nil {
					return err
				}
				out[i] = b
			}
			return printMetadataLists(out)
		},
	}
}

func newStatCmd(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stat",
		Short: "Load a snapshot and print its size in bytes as a sanity check",
		RunE: func(cmd *cobra.Command, args []string) error {
			statePath, _ := cmd.Flags().GetString("state")
			dim, _ := cmd.Flags().GetInt("dim")
			if dim <= 0 {
				return fmt.Errorf("--dim must be positive and match the dimensionality the snapshot was built with")
			}
			data, err := os.ReadFile(statePath)
			if err != nil {
				return err
			}
			ns := namespace.New("stat", config.DefaultConfig(dim), logger)
			if err := ns.LoadState(data); err != nil {
				return err
			}
			fmt.Printf("%d bytes, namespace loads cleanly\n", len(data))
			return nil
		},
	}
	cmd.Flags().Int("dim", 0, "float32 vector dimensionality the snapshot was built with")
	return cmd
}

func loadNamespace(logger *slog.Logger, statePath string, dim int) (*namespace.Namespace, error) {
	data, err := os.ReadFile(statePath)
	if os.IsNotExist(err) {
		if dim <= 0 {
			return nil, fmt.Errorf("no existing state at %q and no vector given to infer dimensionality", statePath)
		}
		return namespace.New("default", config.DefaultConfig(dim), logger), nil
	}
	if err != nil {
		return nil, err
	}
	ns := namespace.New("default", config.DefaultConfig(dim), logger)
	if err := ns.LoadState(data); err != nil {
		return nil, err
	}
	return ns, nil
}

func saveNamespace(ns *namespace.Namespace, statePath string) error {
	data, err := ns.SaveState()
	if err != nil {
		return err
	}
	return os.WriteFile(statePath, data, 0o644)
}

func printMetadataLists(lists [][]byte) error {
	fmt.Print("[")
	for i, l := range lists {
		if i > 0 {
			fmt.Print(",")
		}
		fmt.Print(string(l))
	}
	fmt.Println("]")
	return nil
}
