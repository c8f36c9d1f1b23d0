package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/linkpulse/am"
	"github.com/teranos/linkpulse/errors"
	"github.com/teranos/linkpulse/pulse"
	"github.com/teranos/linkpulse/server/client"
)

// PrintError prints err with its hints and error code.
func PrintError(err error) {
	if err == nil {
		return
	}
	code := errors.Code(err)
	if code != "" && code != errors.CodeInternal {
		pterm.Error.Printf("%v (%s)\n", err, code)
	} else {
		pterm.Error.Println(err)
	}
	for _, hint := range errors.GetAllHints(err) {
		pterm.Info.Println(hint)
	}
}

// connect builds a command client for --server or the configured port.
func connect(cmd *cobra.Command) *client.Client {
	url, _ := cmd.Flags().GetString("server")
	if url == "" {
		port := am.DefaultServerPort
		if cfg, err := am.Load(); err == nil {
			port = cfg.GetServerPort()
		}
		url = fmt.Sprintf("http://localhost:%d", port)
	}
	return client.New(url, client.DefaultTimeout)
}

// commandContext bounds one CLI round trip.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), client.DefaultTimeout)
}

func kindArg(args []string) (pulse.Kind, error) {
	if len(args) == 0 {
		return "", errors.NewValidationError("automation kind required (one of %s)", kindList())
	}
	return pulse.ParseKind(args[0])
}

func kindList() string {
	names := make([]string, 0, len(pulse.Kinds))
	for _, k := range pulse.Kinds {
		names = append(names, string(k))
	}
	return strings.Join(names, ", ")
}

func addJSONFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolP("json", "j", false, "Output as JSON")
}

func wantJSON(cmd *cobra.Command) bool {
	j, _ := cmd.Flags().GetBool("json")
	return j
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// optionsFlag reads --options as inline JSON or @file.
func optionsFlag(cmd *cobra.Command) (json.RawMessage, error) {
	raw, _ := cmd.Flags().GetString("options")
	if raw == "" {
		return nil, nil
	}
	if path, ok := strings.CutPrefix(raw, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read options file %s", path)
		}
		raw = string(data)
	}
	if !json.Valid([]byte(raw)) {
		return nil, errors.NewValidationError("--options is not valid JSON")
	}
	return json.RawMessage(raw), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
