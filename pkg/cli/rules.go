package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/getmoxy/moxy/pkg/admin"
	"github.com/getmoxy/moxy/pkg/cli/internal/output"
	"github.com/getmoxy/moxy/pkg/config"
	"github.com/getmoxy/moxy/pkg/rule"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage per-client rewrite rules",
	Long: `Manage the rule lists a running moxy server holds for each client.

Rules decide what happens to intercepted requests: answer with a mock body,
add latency, or forward to the real upstream. Every subcommand talks to the
admin API of the server addressed by --admin-url.`,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List clients and their rule counts",
	Args:  cobra.NoArgs,
	RunE:  runRulesList,
}

var rulesGetCmd = &cobra.Command{
	Use:   "get <clientId>",
	Short: "Show the rules stored for a client",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesGet,
}

var rulesSetCmd = &cobra.Command{
	Use:   "set <clientId> <file>",
	Short: "Replace a client's rules from a JSON or YAML file",
	Long: `Replace a client's rule list wholesale from a file.

The file may contain either a bare rule array or a {client, rules} document
as produced by 'moxy rules new --output'. The list is validated locally and
again by the server; on any error the stored rules are left untouched.`,
	Example: `  # Replace rules from a YAML file
  moxy rules set my-client rules.yaml

  # Replace rules from JSON
  moxy rules set my-client rules.json`,
	Args: cobra.ExactArgs(2),
	RunE: runRulesSet,
}

var rulesClearCmd = &cobra.Command{
	Use:   "clear <clientId>",
	Short: "Remove all rules stored for a client",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesClear,
}

var rulesNewFlags struct {
	path         string
	pathType     string
	host         string
	prePath      string
	params       string
	status       int
	delay        int
	responseType string
	response     string
	outputFile   string
}

var rulesNewCmd = &cobra.Command{
	Use:   "new <clientId>",
	Short: "Create a rule interactively or from flags",
	Long: `Create a single rule and append it to a client's list.

Without --path the command asks for the rule interactively. With --output
the rule is written to a file instead of sent to the server.`,
	Example: `  # Interactive
  moxy rules new my-client

  # Scripted
  moxy rules new my-client --path /api/users --status 404

  # Write to a file instead of the server
  moxy rules new my-client --path /api/users --response '{"ok":true}' -o rules.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runRulesNew,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesGetCmd)
	rulesCmd.AddCommand(rulesSetCmd)
	rulesCmd.AddCommand(rulesClearCmd)
	rulesCmd.AddCommand(rulesNewCmd)

	rulesNewCmd.Flags().StringVar(&rulesNewFlags.path, "path", "", "URL path to match")
	rulesNewCmd.Flags().StringVar(&rulesNewFlags.pathType, "pathtype", "", "Path comparison: literal or regexp (default literal)")
	rulesNewCmd.Flags().StringVar(&rulesNewFlags.host, "host", "", "Restrict the rule to one host")
	rulesNewCmd.Flags().StringVar(&rulesNewFlags.prePath, "prepath", "", "Prefix prepended to the path before comparing")
	rulesNewCmd.Flags().StringVar(&rulesNewFlags.params, "params", "", "Required parameters in k=v&k=v form")
	rulesNewCmd.Flags().IntVar(&rulesNewFlags.status, "status", 200, "Response status code")
	rulesNewCmd.Flags().IntVar(&rulesNewFlags.delay, "delay", 0, "Delay in milliseconds before responding")
	rulesNewCmd.Flags().StringVar(&rulesNewFlags.responseType, "responsetype", "", "Response body production: raw or mockjs (default raw)")
	rulesNewCmd.Flags().StringVar(&rulesNewFlags.response, "response", "", "Response body (JSON value or plain text, empty = pass-through)")
	rulesNewCmd.Flags().StringVarP(&rulesNewFlags.outputFile, "output", "o", "", "Write a rules file instead of updating the server")
}

func runRulesList(cmd *cobra.Command, args []string) error {
	client := NewAdminClient(adminURL)
	clients, err := client.ListClients()
	if err != nil {
		return errors.New(FormatConnectionError(err))
	}

	return printResult(clients, func() {
		if len(clients) == 0 {
			fmt.Println("No rules stored on the server")
			return
		}

		w := output.Table()
		_, _ = fmt.Fprintln(w, "CLIENT\tRULES")
		for _, c := range clients {
			_, _ = fmt.Fprintf(w, "%s\t%d\n", c.ClientID, c.RuleCount)
		}
		_ = w.Flush()
	})
}

func runRulesGet(cmd *cobra.Command, args []string) error {
	clientID := args[0]

	client := NewAdminClient(adminURL)
	rules, err := client.GetRules(clientID)
	if err != nil {
		return errors.New(FormatConnectionError(err))
	}

	return printResult(rules, func() {
		if len(rules) == 0 {
			fmt.Printf("No rules stored for client %s\n", clientID)
			return
		}

		printRulesTable(rules)
	})
}

// printRulesTable renders a rule list as an aligned table.
func printRulesTable(rules rule.List) {
	caser := cases.Title(language.English)

	w := output.Table()
	_, _ = fmt.Fprintln(w, "#\tPATH\tTYPE\tHOST\tSTATUS\tDELAY\tRESPONSE")
	for i, r := range rules {
		path := r.EffectivePath()
		if len(path) > 30 {
			path = path[:27] + "..."
		}

		pathType := string(r.PathType)
		if pathType == "" {
			pathType = string(rule.PathTypeLiteral)
		}

		host := r.Host
		if host == "" {
			host = "-"
		}

		delay := "-"
		if r.DelayMs > 0 {
			delay = fmt.Sprintf("%dms", r.DelayMs)
		}

		response := "pass-through"
		if r.HasResponse() {
			responseType := string(r.ResponseType)
			if responseType == "" {
				responseType = string(rule.ResponseTypeRaw)
			}
			response = caser.String(responseType)
		}

		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
			i, path, caser.String(pathType), host, r.EffectiveStatus(), delay, response)
	}
	_ = w.Flush()
}

func runRulesSet(cmd *cobra.Command, args []string) error {
	clientID, file := args[0], args[1]

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read rules file: %w", err)
	}

	rules, err := parseRulesPayload(data, config.FormatForPath(file))
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}

	client := NewAdminClient(adminURL)
	result, err := client.SetRules(clientID, rules)
	if err != nil {
		return formatRulesError(err)
	}

	return printResult(result, func() {
		fmt.Printf("Updated %d rule(s) for client %s\n", result.Count, result.Client)
	})
}

// parseRulesPayload decodes a rules file, which holds either a bare rule
// array or a {client, rules} document. The payload is schema-validated
// before the typed decode so positions in error messages match the file.
func parseRulesPayload(data []byte, format config.Format) (rule.List, error) {
	var doc any
	if format == config.FormatYAML {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid YAML: %v", err)
		}
	} else {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid JSON: %v", err)
		}
	}

	switch doc.(type) {
	case map[string]any:
		if issues := config.ValidateRulesDocument(doc); issues != nil {
			return nil, errors.New("schema validation failed: " + joinIssues(issues))
		}
		var rf config.RulesFile
		if err := unmarshalAs(data, format, &rf); err != nil {
			return nil, err
		}
		return validateRules(rf.Rules)
	case []any:
		if issues := config.ValidateRuleList(doc); issues != nil {
			return nil, errors.New("schema validation failed: " + joinIssues(issues))
		}
		var rules rule.List
		if err := unmarshalAs(data, format, &rules); err != nil {
			return nil, err
		}
		return validateRules(rules)
	default:
		return nil, errors.New("rules file must contain a rule array or a {client, rules} document")
	}
}

func unmarshalAs(data []byte, format config.Format, v any) error {
	if format == config.FormatYAML {
		return yaml.Unmarshal(data, v)
	}
	return json.Unmarshal(data, v)
}

func validateRules(rules rule.List) (rule.List, error) {
	if errs := rules.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid rules: %w", errors.Join(errs...))
	}
	return rules, nil
}

func joinIssues(issues []config.SchemaIssue) string {
	parts := make([]string, len(issues))
	for i, issue := range issues {
		parts[i] = issue.String()
	}
	return strings.Join(parts, "; ")
}

// formatRulesError surfaces per-rule validation details from the admin API.
func formatRulesError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && len(apiErr.Details) > 0 {
		lines := make([]string, 0, len(apiErr.Details)+1)
		lines = append(lines, apiErr.Message)
		for _, d := range apiErr.Details {
			lines = append(lines, "  - "+d)
		}
		return errors.New(strings.Join(lines, "\n"))
	}
	return errors.New(FormatConnectionError(err))
}

func runRulesClear(cmd *cobra.Command, args []string) error {
	clientID := args[0]

	client := NewAdminClient(adminURL)
	deleted, err := client.ClearRules(clientID)
	if err != nil {
		return errors.New(FormatConnectionError(err))
	}

	return printResult(admin.RulesDeletedResponse{Client: clientID, Deleted: deleted}, func() {
		if deleted {
			fmt.Printf("Cleared rules for client %s\n", clientID)
		} else {
			fmt.Printf("No rules stored for client %s\n", clientID)
		}
	})
}

func runRulesNew(cmd *cobra.Command, args []string) error {
	clientID := args[0]

	// Ask interactively unless the rule came in through flags
	if !cmd.Flags().Changed("path") {
		if err := runRulesNewForm(cmd); err != nil {
			return err
		}
	}

	r, err := buildNewRule()
	if err != nil {
		return err
	}

	if rulesNewFlags.outputFile != "" {
		return writeRulesFile(rulesNewFlags.outputFile, clientID, rule.List{r})
	}

	client := NewAdminClient(adminURL)
	existing, err := client.GetRules(clientID)
	if err != nil {
		return errors.New(FormatConnectionError(err))
	}

	updated := append(existing, r)
	result, err := client.SetRules(clientID, updated)
	if err != nil {
		return formatRulesError(err)
	}

	return printResult(result, func() {
		fmt.Printf("Added rule to client %s (%d rules total)\n", result.Client, result.Count)
	})
}

// runRulesNewForm collects rule fields interactively and stores them in the
// command flags, so the rest of the flow is identical to the scripted path.
func runRulesNewForm(cmd *cobra.Command) error {
	var formPath, formPathType, formHost, formResponseType, formResponse string
	formStatus := "200"
	formDelay := "0"

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("What URL path should the rule match?").
				Placeholder("/api/v1/users").
				Value(&formPath).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("path is required")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("How should the path be compared?").
				Options(
					huh.NewOption("Literal (exact match)", string(rule.PathTypeLiteral)),
					huh.NewOption("Regexp (match anywhere)", string(rule.PathTypeRegexp)),
				).
				Value(&formPathType),
			huh.NewInput().
				Title("Restrict to a host? (leave empty for any)").
				Placeholder("api.example.com").
				Value(&formHost),
			huh.NewInput().
				Title("What status code should the mock return?").
				Value(&formStatus).
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n < 100 || n > 599 {
						return errors.New("status must be a number between 100 and 599")
					}
					return nil
				}),
			huh.NewInput().
				Title("Delay in milliseconds before responding").
				Value(&formDelay).
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n < 0 {
						return errors.New("delay must be a non-negative number")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("How should the response body be produced?").
				Options(
					huh.NewOption("Raw (use the body verbatim)", string(rule.ResponseTypeRaw)),
					huh.NewOption("Mockjs (expand data templates)", string(rule.ResponseTypeMockJS)),
				).
				Value(&formResponseType),
			huh.NewText().
				Title("Response body (JSON value or plain text, empty = pass-through)").
				Placeholder(`{"status": "ok"}`).
				Value(&formResponse),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}

	_ = cmd.Flags().Set("path", formPath)
	_ = cmd.Flags().Set("pathtype", formPathType)
	_ = cmd.Flags().Set("host", formHost)
	_ = cmd.Flags().Set("status", formStatus)
	_ = cmd.Flags().Set("delay", formDelay)
	_ = cmd.Flags().Set("responsetype", formResponseType)
	_ = cmd.Flags().Set("response", formResponse)
	return nil
}

// buildNewRule assembles and validates a rule from the new-command flags.
func buildNewRule() (rule.Rule, error) {
	r := rule.Rule{
		Host:         rulesNewFlags.host,
		Path:         rulesNewFlags.path,
		PathType:     rule.PathType(rulesNewFlags.pathType),
		PrePath:      rulesNewFlags.prePath,
		Params:       rulesNewFlags.params,
		DelayMs:      rulesNewFlags.delay,
		Status:       rulesNewFlags.status,
		ResponseType: rule.ResponseType(rulesNewFlags.responseType),
	}

	if rulesNewFlags.response != "" {
		if json.Valid([]byte(rulesNewFlags.response)) {
			r.Response = json.RawMessage(rulesNewFlags.response)
		} else {
			// Not JSON: treat the input as a plain text body
			encoded, err := json.Marshal(rulesNewFlags.response)
			if err != nil {
				return rule.Rule{}, fmt.Errorf("failed to encode response body: %w", err)
			}
			r.Response = encoded
		}
	}

	if err := r.Validate(); err != nil {
		return rule.Rule{}, fmt.Errorf("invalid rule: %w", err)
	}
	return r, nil
}

// writeRulesFile writes a {client, rules} document, YAML or JSON by extension.
func writeRulesFile(path, clientID string, rules rule.List) error {
	doc := map[string]any{
		"client": clientID,
		"rules":  rules,
	}

	// Rules define their wire shape in JSON, so YAML output goes through a
	// JSON round-trip rather than the yaml struct tags.
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal rules: %w", err)
	}
	if config.FormatForPath(path) == config.FormatYAML {
		var tree any
		if err := json.Unmarshal(data, &tree); err != nil {
			return fmt.Errorf("failed to marshal rules: %w", err)
		}
		data, err = yaml.Marshal(tree)
		if err != nil {
			return fmt.Errorf("failed to marshal rules: %w", err)
		}
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	fmt.Printf("Created %s with %d rule(s) for client %s\n", path, len(rules), clientID)
	return nil
}
