// Command aura is the A.U.R.A CLI client.
package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/aura/agent"
	"github.com/GoCodeAlone/aura/comms"
	"github.com/GoCodeAlone/aura/conversation"
	"github.com/GoCodeAlone/aura/internal/version"
	"github.com/GoCodeAlone/aura/task"
)

const defaultServer = "http://localhost:9090"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		serverURL string
		token     string
	)
	cli := &Client{HTTPClient: &http.Client{Timeout: 60 * time.Second}}

	root := &cobra.Command{
		Use:           "aura",
		Short:         "A.U.R.A CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			cli.BaseURL = strings.TrimRight(serverURL, "/")
			cli.Token = token
		},
	}
	root.PersistentFlags().StringVar(&serverURL, "server", defaultServer, "server URL")
	root.PersistentFlags().StringVar(&token, "token", os.Getenv("AURA_TOKEN"), "JWT auth token (or $AURA_TOKEN)")

	root.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print version",
			Run: func(*cobra.Command, []string) {
				fmt.Printf("aura %s\n", version.String())
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show server status",
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return cli.cmdStatus() },
		},
		&cobra.Command{
			Use:   "login <username> <password>",
			Short: "Obtain a token",
			Args:  cobra.ExactArgs(2),
			RunE:  func(_ *cobra.Command, args []string) error { return cli.cmdLogin(args[0], args[1]) },
		},
		conversationsCmd(cli),
		&cobra.Command{
			Use:   "send <conversation-id> <message...>",
			Short: "Send a message and print the assistant's reply",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(_ *cobra.Command, args []string) error {
				return cli.cmdSend(args[0], strings.Join(args[1:], " "))
			},
		},
		tasksCmd(cli),
		&cobra.Command{
			Use:   "task <id>",
			Short: "Show one task",
			Args:  cobra.ExactArgs(1),
			RunE:  func(_ *cobra.Command, args []string) error { return cli.cmdTask(args[0]) },
		},
		messagesCmd(cli),
	)
	return root
}

// --- status ---

func (c *Client) cmdStatus() error {
	var result map[string]any
	if err := c.get("/api/status", &result); err != nil {
		return err
	}
	fmt.Printf("status:  %v\n", result["status"])
	fmt.Printf("version: %v\n", result["version"])
	if up, ok := result["uptime_seconds"].(float64); ok {
		fmt.Printf("uptime:  %s\n", (time.Duration(up) * time.Second).String())
	}
	return nil
}

func (c *Client) cmdLogin(user, pass string) error {
	var result struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	body := map[string]string{"username": user, "password": pass}
	if err := c.post("/api/auth/login", body, &result); err != nil {
		return err
	}
	fmt.Println(result.Token)
	fmt.Fprintf(os.Stderr, "expires %s; export AURA_TOKEN to reuse it\n", result.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}

// --- conversations ---

func conversationsCmd(c *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "List conversations",
		Args:    cobra.NoArgs,
		RunE:    func(*cobra.Command, []string) error { return c.cmdConversations() },
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "new [title...]",
			Short: "Start a conversation",
			RunE: func(_ *cobra.Command, args []string) error {
				var conv conversation.Conversation
				if err := c.post("/api/conversations", map[string]string{"title": strings.Join(args, " ")}, &conv); err != nil {
					return err
				}
				fmt.Printf("created conversation %s\n", conv.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show <id>",
			Short: "Print a conversation's messages",
			Args:  cobra.ExactArgs(1),
			RunE:  func(_ *cobra.Command, args []string) error { return c.cmdTranscript(args[0]) },
		},
		&cobra.Command{
			Use:   "rename <id> <title...>",
			Short: "Rename a conversation",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(_ *cobra.Command, args []string) error {
				return c.patch("/api/conversations/"+url.PathEscape(args[0]),
					map[string]string{"title": strings.Join(args[1:], " ")}, nil)
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a conversation and its messages",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				if err := c.delete("/api/conversations/" + url.PathEscape(args[0])); err != nil {
					return err
				}
				fmt.Printf("conversation %s deleted\n", args[0])
				return nil
			},
		},
	)
	return cmd
}

func (c *Client) cmdConversations() error {
	var convs []conversation.Conversation
	if err := c.get("/api/conversations", &convs); err != nil {
		return err
	}
	if len(convs) == 0 {
		fmt.Println("no conversations")
		return nil
	}
	fmt.Printf("%-36s %-30s %-20s\n", "ID", "TITLE", "UPDATED")
	fmt.Println(strings.Repeat("-", 88))
	for _, cv := range convs {
		fmt.Printf("%-36s %-30s %-20s\n", cv.ID, truncate(cv.Title, 29), cv.UpdatedAt.Local().Format(time.DateTime))
	}
	return nil
}

func (c *Client) cmdTranscript(id string) error {
	var msgs []conversation.Message
	if err := c.get("/api/conversations/"+url.PathEscape(id)+"/messages", &msgs); err != nil {
		return err
	}
	for _, m := range msgs {
		printMessage(m)
	}
	return nil
}

func printMessage(m conversation.Message) {
	fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format(time.TimeOnly), m.Author, m.Content)
	if m.Attachment != nil && m.Attachment.ImageURL != "" {
		fmt.Printf("    image: %s\n", m.Attachment.ImageURL)
	}
}

func (c *Client) cmdSend(id, text string) error {
	var turn agent.Turn
	if err := c.post("/api/conversations/"+url.PathEscape(id)+"/messages", map[string]string{"content": text}, &turn); err != nil {
		return err
	}
	if turn.Reply != nil {
		printMessage(*turn.Reply)
	}
	if turn.Task != nil {
		fmt.Printf("    task %s: %s\n", turn.Task.ID, turn.Task.Status)
	}
	for _, s := range turn.Suggestions {
		fmt.Printf("    suggested: %s\n", s.Title)
	}
	return nil
}

// --- tasks ---

func tasksCmd(c *Client) *cobra.Command {
	var (
		status, taskType, origin, conv string
		limit                          int
	)
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			q := url.Values{}
			setParam(q, "status", status)
			setParam(q, "task_type", taskType)
			setParam(q, "origin", origin)
			setParam(q, "conversation", conv)
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			return c.cmdTasks(q)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&taskType, "type", "", "filter by task type")
	cmd.Flags().StringVar(&origin, "origin", "", "filter by origin (action or suggestion)")
	cmd.Flags().StringVar(&conv, "conversation", "", "filter by conversation id")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of tasks")
	return cmd
}

func setParam(q url.Values, key, val string) {
	if val != "" {
		q.Set(key, val)
	}
}

func (c *Client) cmdTasks(q url.Values) error {
	path := "/api/tasks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var tasks []task.Task
	if err := c.get(path, &tasks); err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("no tasks")
		return nil
	}
	fmt.Printf("%-36s %-30s %-12s %-12s %-10s\n", "ID", "TITLE", "TYPE", "STATUS", "ORIGIN")
	fmt.Println(strings.Repeat("-", 104))
	for _, t := range tasks {
		fmt.Printf("%-36s %-30s %-12s %-12s %-10s\n",
			t.ID, truncate(t.Title, 29), t.Type, t.Status, t.Origin)
	}
	return nil
}

func (c *Client) cmdTask(id string) error {
	var t task.Task
	if err := c.get("/api/tasks/"+url.PathEscape(id), &t); err != nil {
		return err
	}
	fmt.Printf("id:          %s\n", t.ID)
	fmt.Printf("title:       %s\n", t.Title)
	fmt.Printf("type:        %s\n", t.Type)
	fmt.Printf("status:      %s\n", t.Status)
	fmt.Printf("origin:      %s\n", t.Origin)
	if t.Action != "" {
		fmt.Printf("action:      %s\n", t.Action)
	}
	if t.ErrorMessage != nil {
		fmt.Printf("error:       %s\n", *t.ErrorMessage)
	}
	if len(t.APIResponse) > 0 {
		fmt.Printf("response:    %s\n", t.APIResponse)
	}
	return nil
}

// --- messages ---

func messagesCmd(c *Client) *cobra.Command {
	var (
		topic string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "messages",
		Short: "Show recent bus messages",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			q := url.Values{}
			setParam(q, "topic", topic)
			q.Set("limit", strconv.Itoa(limit))
			var msgs []comms.Message
			if err := c.get("/api/messages?"+q.Encode(), &msgs); err != nil {
				return err
			}
			for _, m := range msgs {
				fmt.Printf("%s %-10s %-12s %s\n", m.Timestamp.Local().Format(time.TimeOnly), m.Topic, m.Type, truncate(string(m.Payload), 80))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&topic, "topic", "", "topic filter (tasks or messages)")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of messages")
	return cmd
}
