package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Show edge-cache diagnostics",
	Long: `Report whether the gateway's edge cache is enabled and how many
entries it currently holds.

Examples:
  gatewayctl cache`,
	RunE: runCache,
}

type cacheStatsPayload struct {
	Enabled bool `json:"enabled"`
	Entries int  `json:"entries"`
}

func runCache(cmd *cobra.Command, args []string) error {
	resp, err := httpClient.Get(serverURL + "/debug/cache/stats")
	if err != nil {
		return fmt.Errorf("reaching gateway: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var stats cacheStatsPayload
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	rows := [][]string{
		{"enabled", fmt.Sprintf("%t", stats.Enabled)},
	}
	if stats.Enabled {
		rows = append(rows, []string{"entries", fmt.Sprintf("%d", stats.Entries)})
	}

	printTable(os.Stdout, []string{"METRIC", "VALUE"}, rows)
	return nil
}
