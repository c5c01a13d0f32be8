package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/posagent/posagentd/internal/classify"
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify one or more raw printer lines from stdin",
	Long: `Read raw printer lines from stdin, one per line, and print the
result of cleaning and classifying each one as JSON.

This is a debug aid for inspecting how a captured line or packet would be
interpreted without wiring up a serial port, e.g.:

  echo 'MILK 2% GAL       1 4.29' | posagentd classify
  posagentd classify < capture.txt`,
	RunE: runClassify,
}

func runClassify(cmd *cobra.Command, args []string) error {
	scanner := bufio.NewScanner(os.Stdin)
	enc := json.NewEncoder(cmd.OutOrStdout())

	for scanner.Scan() {
		raw := scanner.Text()
		for _, cl := range classify.ClassifyRaw(raw) {
			if err := enc.Encode(cl); err != nil {
				return fmt.Errorf("classify: failed to encode result: %w", err)
			}
		}
	}

	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("classify: failed to read stdin: %w", err)
	}
	return nil
}
