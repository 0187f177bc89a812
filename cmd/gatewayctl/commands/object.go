package commands

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var objectCmd = &cobra.Command{
	Use:   "object",
	Short: "Inspect objects stored behind the gateway",
}

var objectHeadCmd = &cobra.Command{
	Use:   "head <key>",
	Short: "Fetch object metadata via HTTP HEAD",
	Long: `Issue a HEAD request against the gateway for the given object key and
print its Content-Length, Content-Type, ETag and Last-Modified headers.

Examples:
  gatewayctl object head path/to/object`,
	Args: cobra.ExactArgs(1),
	RunE: runObjectHead,
}

func init() {
	objectCmd.AddCommand(objectHeadCmd)
}

func runObjectHead(cmd *cobra.Command, args []string) error {
	key := strings.TrimPrefix(args[0], "/")

	req, err := http.NewRequest(http.MethodHead, serverURL+"/"+key, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reaching gateway: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("object %q not found", key)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	size := "-"
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := humanize.ParseBytes(cl); err == nil {
			size = humanize.Bytes(n)
		} else {
			size = cl
		}
	}

	rows := [][]string{
		{"key", key},
		{"content-type", resp.Header.Get("Content-Type")},
		{"content-length", size},
		{"etag", resp.Header.Get("ETag")},
		{"last-modified", resp.Header.Get("Last-Modified")},
	}

	printTable(os.Stdout, []string{"FIELD", "VALUE"}, rows)
	return nil
}
