package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check gateway liveness and readiness",
	Long: `Check the gateway's liveness and readiness probes.

Examples:
  gatewayctl health
  gatewayctl health --server http://gateway.internal:8080`,
	RunE: runHealth,
}

type probeResult struct {
	name   string
	status string
	err    error
}

func runHealth(cmd *cobra.Command, args []string) error {
	probes := []struct {
		name string
		path string
	}{
		{"liveness", "/healthz"},
		{"readiness", "/readyz"},
	}

	results := make([]probeResult, 0, len(probes))
	for _, p := range probes {
		results = append(results, checkProbe(p.name, p.path))
	}

	rows := make([][]string, 0, len(results))
	failed := false
	for _, r := range results {
		status := r.status
		if r.err != nil {
			status = fmt.Sprintf("error: %v", r.err)
			failed = true
		}
		rows = append(rows, []string{r.name, status})
	}

	printTable(os.Stdout, []string{"PROBE", "STATUS"}, rows)

	if failed {
		return fmt.Errorf("one or more health probes failed")
	}
	return nil
}

func checkProbe(name, path string) probeResult {
	resp, err := httpClient.Get(serverURL + path)
	if err != nil {
		return probeResult{name: name, err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	var body map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&body)

	if resp.StatusCode != http.StatusOK {
		return probeResult{name: name, err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	return probeResult{name: name, status: body["status"]}
}
