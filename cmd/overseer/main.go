// Command overseer is the Overseer CLI client.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/GoCodeAlone/overseer/internal/version"
)

const defaultServer = "http://localhost:9090"

func main() {
	var (
		serverURL = flag.String("server", defaultServer, "overseer server URL")
		token     = flag.String("token", os.Getenv("OVERSEER_TOKEN"), "JWT auth token")
		asAgent   = flag.String("as", "", "agent ID to act as for transitions and approvals")
	)
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cli := &Client{
		BaseURL:    strings.TrimRight(*serverURL, "/"),
		Token:      *token,
		Agent:      *asAgent,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}

	cmd := args[0]
	rest := args[1:]

	var err error
	switch cmd {
	case "version":
		err = cmdVersion(rest)
	case "status":
		err = cli.cmdStatus(rest)
	case "agents":
		err = cli.cmdAgents(rest)
	case "tasks":
		err = cli.cmdTasks(rest)
	case "task":
		err = cli.cmdTask(rest)
	case "deps":
		err = cli.cmdDeps(rest)
	case "order":
		err = cli.cmdOrder(rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `overseer — Overseer CLI

Usage:
  overseer [flags] <command> [args]

Flags:
  --server  <url>    server URL (default: http://localhost:9090)
  --token   <token>  JWT auth token (or $OVERSEER_TOKEN)
  --as      <id>     agent ID to act as

Commands:
  version                    print version
  status                     show server status
  agents                     list agents
  tasks [status]             list tasks, optionally by status
  task create <title>        create a task
  task show <id>             show one task with its dependencies
  task move <id> <status>    request a status transition
  task assign <id> [agent]   assign a task; omit agent to auto-pick
  deps add <task> <prereq>   make task wait on prereq
  deps rm <task> <prereq>    remove a dependency
  order                      print tasks in dependency order
`)
}

// --- version ---

func cmdVersion(_ []string) error {
	fmt.Printf("overseer %s\n", version.String())
	return nil
}

// Client holds HTTP client state for CLI commands.
type Client struct {
	BaseURL    string
	Token      string
	Agent      string
	HTTPClient *http.Client
}

// do performs a request with an optional JSON body and decodes the
// JSON response into v (may be nil).
func (c *Client) do(method, path string, body io.Reader, v any) error {
	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if v != nil && resp.ContentLength != 0 {
		return json.NewDecoder(resp.Body).Decode(v)
	}
	return nil
}

func (c *Client) get(path string, v any) error {
	return c.do(http.MethodGet, path, nil, v)
}

func (c *Client) postJSON(path string, payload, v any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.do(http.MethodPost, path, strings.NewReader(string(data)), v)
}

func (c *Client) patchJSON(path string, payload, v any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.do(http.MethodPatch, path, strings.NewReader(string(data)), v)
}

// --- status ---

func (c *Client) cmdStatus(_ []string) error {
	var result map[string]string
	if err := c.get("/api/status", &result); err != nil {
		return err
	}
	fmt.Printf("status:  %s\n", result["status"])
	fmt.Printf("version: %s\n", result["version"])
	return nil
}

// --- agents ---

func (c *Client) cmdAgents(_ []string) error {
	var agents []map[string]any
	if err := c.get("/api/agents", &agents); err != nil {
		return err
	}
	if len(agents) == 0 {
		fmt.Println("no agents")
		return nil
	}
	fmt.Printf("%-20s %-20s %-12s %-10s %-8s\n", "ID", "NAME", "ROLE", "STATUS", "APPROVER")
	fmt.Println(strings.Repeat("-", 75))
	for _, a := range agents {
		fmt.Printf("%-20s %-20s %-12s %-10s %-8s\n",
			strVal(a["id"]),
			truncate(strVal(a["name"]), 19),
			strVal(a["role"]),
			strVal(a["status"]),
			fmt.Sprint(a["approver"]),
		)
	}
	return nil
}

// --- tasks ---

func (c *Client) cmdTasks(args []string) error {
	path := "/api/tasks"
	if len(args) > 0 {
		path += "?status=" + args[0]
	}
	var tasks []map[string]any
	if err := c.get(path, &tasks); err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("no tasks")
		return nil
	}
	fmt.Printf("%-36s %-30s %-12s %-12s %-7s\n", "ID", "TITLE", "STATUS", "ASSIGNED", "BLOCKED")
	fmt.Println(strings.Repeat("-", 102))
	for _, t := range tasks {
		fmt.Printf("%-36s %-30s %-12s %-12s %-7s\n",
			strVal(t["id"]),
			truncate(strVal(t["title"]), 29),
			strVal(t["status"]),
			truncate(strVal(t["assigned_to"]), 11),
			fmt.Sprint(t["blocked"]),
		)
	}
	return nil
}

// --- task subcommands ---

func (c *Client) cmdTask(args []string) error {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: overseer task <create|show|move|assign> ...")
		os.Exit(1)
	}
	sub := args[0]
	switch sub {
	case "create":
		if len(args) < 2 {
			return fmt.Errorf("usage: overseer task create <title>")
		}
		title := strings.Join(args[1:], " ")
		var result map[string]any
		if err := c.postJSON("/api/tasks", map[string]string{"title": title}, &result); err != nil {
			return err
		}
		fmt.Printf("created task %s\n", strVal(result["id"]))
	case "show":
		if len(args) < 2 {
			return fmt.Errorf("usage: overseer task show <id>")
		}
		var result map[string]any
		if err := c.get("/api/tasks/"+args[1], &result); err != nil {
			return err
		}
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	case "move":
		if len(args) < 3 {
			return fmt.Errorf("usage: overseer task move <id> <status>")
		}
		payload := map[string]string{"status": args[2]}
		if c.Agent != "" {
			payload["requesting_agent"] = c.Agent
		}
		var result map[string]any
		if err := c.patchJSON("/api/tasks/"+args[1], payload, &result); err != nil {
			return err
		}
		fmt.Printf("task %s moved to %s\n", args[1], args[2])
		if warn := strVal(result["dispatch_warning"]); warn != "" {
			fmt.Printf("warning: %s\n", warn)
		}
	case "assign":
		if len(args) < 2 {
			return fmt.Errorf("usage: overseer task assign <id> [agent]")
		}
		payload := map[string]string{}
		if len(args) > 2 {
			payload["agent_id"] = args[2]
		}
		if c.Agent != "" {
			payload["requesting_agent"] = c.Agent
		}
		var result struct {
			Task struct {
				AssignedTo string `json:"assigned_to"`
			} `json:"task"`
			DispatchWarning string `json:"dispatch_warning"`
		}
		if err := c.postJSON("/api/tasks/"+args[1]+"/assign", payload, &result); err != nil {
			return err
		}
		fmt.Printf("task %s assigned to %s\n", args[1], result.Task.AssignedTo)
		if result.DispatchWarning != "" {
			fmt.Printf("warning: %s\n", result.DispatchWarning)
		}
	default:
		return fmt.Errorf("unknown task subcommand: %s", sub)
	}
	return nil
}

// --- dependency subcommands ---

func (c *Client) cmdDeps(args []string) error {
	if len(args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: overseer deps <add|rm> <task> <prereq>")
		os.Exit(1)
	}
	sub, taskID, prereq := args[0], args[1], args[2]
	switch sub {
	case "add":
		payload := map[string]string{"prerequisite_id": prereq}
		if c.Agent != "" {
			payload["requesting_agent"] = c.Agent
		}
		if err := c.postJSON("/api/tasks/"+taskID+"/dependencies", payload, nil); err != nil {
			return err
		}
		fmt.Printf("task %s now waits on %s\n", taskID, prereq)
	case "rm":
		if err := c.do(http.MethodDelete, "/api/tasks/"+taskID+"/dependencies/"+prereq, nil, nil); err != nil {
			return err
		}
		fmt.Printf("task %s no longer waits on %s\n", taskID, prereq)
	default:
		return fmt.Errorf("unknown deps subcommand: %s", sub)
	}
	return nil
}

func (c *Client) cmdOrder(_ []string) error {
	var result struct {
		Order []string `json:"order"`
	}
	if err := c.get("/api/tasks/order", &result); err != nil {
		return err
	}
	if len(result.Order) == 0 {
		fmt.Println("no tasks")
		return nil
	}
	for i, id := range result.Order {
		fmt.Printf("%3d. %s\n", i+1, id)
	}
	return nil
}

// --- helpers ---

func strVal(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
