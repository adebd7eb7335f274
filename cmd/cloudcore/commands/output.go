package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fivetwenty-io/cloudcore/internal/constants"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const timeLayout = time.RFC3339

// writeOutput encodes value in the --output format, calling fill to build
// the table for the table format.
func writeOutput(w io.Writer, value interface{}, fill func(table *tablewriter.Table)) error {
	switch output := strings.ToLower(viper.GetString("output")); output {
	case constants.FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", strings.Repeat(" ", constants.JSONIndentSize))

		err := encoder.Encode(value)
		if err != nil {
			return fmt.Errorf("encoding output to JSON: %w", err)
		}

		return nil
	case constants.FormatYAML:
		encoder := yaml.NewEncoder(w)

		err := encoder.Encode(value)
		if err != nil {
			return fmt.Errorf("encoding output to YAML: %w", err)
		}

		return encoder.Close()
	case "", constants.FormatTable:
		table := tablewriter.NewWriter(w)
		fill(table)

		err := table.Render()
		if err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}

		return nil
	default:
		return fmt.Errorf("%w: %s", constants.ErrInvalidOutput, output)
	}
}

// maskToken keeps a short prefix of a token id.
func maskToken(token string) string {
	if token == "" {
		return ""
	}

	if len(token) <= constants.TokenDisplayLength {
		return constants.MaskedSecret
	}

	return token[:constants.TokenDisplayLength] + constants.MaskedSecret
}

// expiryStatus describes how long a token remains usable.
func expiryStatus(expires time.Time, now time.Time) (string, string) {
	if expires.IsZero() {
		return "unknown", constants.NotAvailable
	}

	remaining := expires.Sub(now)

	switch {
	case remaining <= 0:
		return "expired", "0s"
	case remaining <= constants.TokenExpirationBuffer:
		return "expiring", remaining.Round(time.Second).String()
	default:
		return "valid", remaining.Round(time.Second).String()
	}
}
