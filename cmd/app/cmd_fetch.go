package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"SentinelX/internal/di"
	"SentinelX/internal/domain/models"
	"SentinelX/internal/domain/repository"
	"SentinelX/pkg/metrics"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <operation> [key=value...]",
	Short: "Issue one backend call and print the decoded result",
	Long: `Issues exactly one backend call and prints the decoded snapshot as JSON.
Failures are printed as the classified error and exit non-zero.

Operations:
  health, metrics, blocks, block, transactions, ai-query,
  contract-analyze, contract-explain, security-audit, price-predict,
  price-current

Example:
  sentinelx fetch blocks limit=5
  sentinelx fetch ai-query prompt="what is celo" task_type=GeneralQuery`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFetch,
}

func runFetch(cmd *cobra.Command, args []string) error {
	kind, ok := models.ParseKind(args[0])
	if !ok {
		return fmt.Errorf("unknown operation %q", args[0])
	}
	params, err := parseParams(args[1:])
	if err != nil {
		return err
	}

	backend := di.ProvideBackend(cfg, metrics.Nop{}, cliLogger())
	v, err := backend.Execute(cmd.Context(), kind, params)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err != nil {
		_ = enc.Encode(models.AsFetchError(kind, err))
		return fmt.Errorf("%s failed", kind)
	}
	return enc.Encode(v)
}

// parseParams reads key=value pairs.
func parseParams(args []string) (repository.Params, error) {
	p := make(repository.Params, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("parameter %q is not key=value", a)
		}
		p[k] = v
	}
	return p, nil
}
