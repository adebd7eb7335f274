package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fivetwenty-io/cloudcore/internal/constants"
	"github.com/fivetwenty-io/cloudcore/pkg/cloudclient"
	"github.com/spf13/cobra"
)

type requestFlags struct {
	serviceType  string
	serviceName  string
	internal     bool
	data         string
	headers      []string
	acceptStatus []int
	include      bool
}

// NewRequestCommand creates the request command.
func NewRequestCommand() *cobra.Command {
	var flags requestFlags

	cmd := &cobra.Command{
		Use:   "request METHOD PATH",
		Short: "Send an authenticated request to a catalog service",
		Long: `Send METHOD PATH to the endpoint of the --type service, attaching the selected
profile's token. A rejected token is refreshed and the request sent once more.

--data takes a JSON document, or @FILE to read it from a file.`,
		Example: `  cloudcore request GET /volumes --type volume
  cloudcore request POST /volumes --type volume --data @volume.json`,
		Args: cobra.ExactArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.serviceType == "" {
				return constants.ErrServiceTypeMissing
			}

			req, err := flags.build(strings.ToUpper(args[0]), args[1])
			if err != nil {
				return err
			}

			s, err := newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			service := cloudclient.Service{
				Type:     flags.serviceType,
				Name:     flags.serviceName,
				Region:   s.region,
				Internal: flags.internal,
			}

			resp, err := s.provider.Do(cmd.Context(), s.identity, service, req)
			if err != nil {
				return err
			}

			return writeResponse(cmd.OutOrStdout(), resp, flags.include)
		},
	}

	cmd.Flags().StringVarP(&flags.serviceType, "type", "t", "", "service type, e.g. volume")
	cmd.Flags().StringVarP(&flags.serviceName, "name", "n", "", "service name when several share a type")
	cmd.Flags().BoolVar(&flags.internal, "internal", false, "use the internal URL when available")
	cmd.Flags().StringVarP(&flags.data, "data", "d", "", "JSON request body, or @FILE")
	cmd.Flags().StringArrayVarP(&flags.headers, "header", "H", nil, "extra header as key=value (repeatable)")
	cmd.Flags().IntSliceVar(&flags.acceptStatus, "accept-status", nil, "non-2xx status codes that are not errors")
	cmd.Flags().BoolVar(&flags.include, "include", false, "print the status line and headers")

	return cmd
}

func (f *requestFlags) build(method, path string) (*cloudclient.Request, error) {
	headers, err := parseHeaders(f.headers)
	if err != nil {
		return nil, err
	}

	req := &cloudclient.Request{
		Method:       method,
		Path:         path,
		Headers:      headers,
		AcceptStatus: f.acceptStatus,
	}

	if f.data == "" {
		return req, nil
	}

	body := []byte(f.data)

	if file, ok := strings.CutPrefix(f.data, "@"); ok {
		body, err = readDataFile(file)
		if err != nil {
			return nil, err
		}
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("request body: %w", constants.ErrInvalidJSONBody)
	}

	req.Body = json.RawMessage(body)

	return req, nil
}

func parseHeaders(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil //nolint:nilnil
	}

	headers := make(map[string]string, len(values))

	for _, value := range values {
		parts := strings.SplitN(value, "=", constants.KeyValueSplitParts)
		if len(parts) != constants.KeyValueSplitParts || strings.TrimSpace(parts[0]) == "" {
			return nil, fmt.Errorf("%w: %q", constants.ErrInvalidHeader, value)
		}

		headers[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}

	return headers, nil
}

func validateFilePath(filePath string) error {
	cleanPath := filepath.Clean(filePath)

	if filepath.IsAbs(filePath) {
		if cleanPath != filePath {
			return constants.ErrDirectoryTraversalDetected
		}
	} else if strings.HasPrefix(cleanPath, "..") {
		return constants.ErrDirectoryTraversalDetected
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return fmt.Errorf("file not accessible: %w", err)
	}

	if !info.Mode().IsRegular() {
		return constants.ErrNotRegularFile
	}

	return nil
}

func readDataFile(filePath string) ([]byte, error) {
	err := validateFilePath(filePath)
	if err != nil {
		return nil, err
	}

	// The path was validated above.
	// #nosec G304
	data, err := os.ReadFile(filepath.Clean(filePath))
	if err != nil {
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}

	return data, nil
}

func writeResponse(w io.Writer, resp *cloudclient.Response, include bool) error {
	if include {
		_, _ = fmt.Fprintf(w, "HTTP %d\n", resp.StatusCode)

		names := make([]string, 0, len(resp.Headers))
		for name := range resp.Headers {
			names = append(names, name)
		}

		sort.Strings(names)

		for _, name := range names {
			_, _ = fmt.Fprintf(w, "%s: %s\n", name, strings.Join(resp.Headers[name], ", "))
		}

		_, _ = fmt.Fprintln(w)
	}

	body := resp.Body

	var pretty bytes.Buffer

	if json.Indent(&pretty, body, "", strings.Repeat(" ", constants.JSONIndentSize)) == nil {
		body = pretty.Bytes()
	}

	if len(body) == 0 {
		return nil
	}

	_, err := w.Write(body)
	if err != nil {
		return fmt.Errorf("writing response: %w", err)
	}

	_, _ = fmt.Fprintln(w)

	return nil
}
