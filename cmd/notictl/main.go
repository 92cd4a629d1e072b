// notictl drives a running notibot daemon over its HTTP API.
package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"notibot/internal/apiclient"
)

func main() {
	app := &cli.App{
		Name:  "notictl",
		Usage: "control a running notibot daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Value:   "http://127.0.0.1:8080",
				Usage:   "daemon API base URL",
				EnvVars: []string{"NOTIBOT_API_URL"},
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "API bearer token",
				EnvVars: []string{"NOTIBOT_API_TOKEN"},
			},
		},
		Commands: []*cli.Command{
			sendCmd(),
			systemCmd(),
			metricsCmd(),
			scheduleCmd(),
			unscheduleCmd(),
			jobsCmd(),
			statusCmd(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func client(c *cli.Context) *apiclient.Client {
	return apiclient.New(c.String("url"), c.String("token"))
}

func sendCmd() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "send a notification message",
		ArgsUsage: "MESSAGE",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "chat-id", Aliases: []string{"i"}, Usage: "single target chat"},
			&cli.StringFlag{Name: "chat-ids", Aliases: []string{"I"}, Usage: "comma-separated target chats"},
			&cli.StringFlag{Name: "parse-mode", Aliases: []string{"p"}, Value: "Markdown"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one MESSAGE argument")
			}
			ids, err := parseChatIDs(c.String("chat-ids"))
			if err != nil {
				return err
			}
			resp, err := client(c).Notify(c.Context, apiclient.NotifyRequest{
				Message:   c.Args().First(),
				ChatID:    c.Int64("chat-id"),
				ChatIDs:   ids,
				ParseMode: c.String("parse-mode"),
			})
			if err != nil {
				return err
			}
			fmt.Println(resp.Message)
			return nil
		},
	}
}

func systemCmd() *cli.Command {
	return &cli.Command{
		Name:  "system",
		Usage: "deliver a system report",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "chat-id", Aliases: []string{"i"}, Usage: "target chat (default: system subscribers)"},
		},
		Action: func(c *cli.Context) error {
			resp, err := client(c).SystemReport(c.Context, c.Int64("chat-id"))
			if err != nil {
				return err
			}
			fmt.Println(resp.Message)
			return nil
		},
	}
}

func metricsCmd() *cli.Command {
	return &cli.Command{
		Name:  "metrics",
		Usage: "show current system metrics",
		Action: func(c *cli.Context) error {
			m, err := client(c).SystemMetrics(c.Context)
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%s: %.2f\n", k, m[k])
			}
			return nil
		},
	}
}

func scheduleCmd() *cli.Command {
	return &cli.Command{
		Name:      "schedule",
		Usage:     "schedule a notification",
		ArgsUsage: "JOB_ID MESSAGE",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "chat-ids", Aliases: []string{"I"}, Usage: "comma-separated target chats"},
			&cli.StringFlag{Name: "cron", Usage: `five-field cron expression, e.g. "0 9 * * *"`},
			&cli.DurationFlag{Name: "every", Usage: "fixed interval, e.g. 30m"},
			&cli.TimestampFlag{Name: "at", Layout: time.RFC3339, Usage: "one-shot time (RFC 3339)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("expected JOB_ID and MESSAGE arguments")
			}
			trig, err := buildTrigger(c)
			if err != nil {
				return err
			}
			ids, err := parseChatIDs(c.String("chat-ids"))
			if err != nil {
				return err
			}
			resp, err := client(c).Schedule(c.Context, apiclient.ScheduleRequest{
				JobID:   c.Args().Get(0),
				Message: c.Args().Get(1),
				ChatIDs: ids,
				Trigger: trig,
			})
			if err != nil {
				return err
			}
			fmt.Println(resp.Message)
			return nil
		},
	}
}

func unscheduleCmd() *cli.Command {
	return &cli.Command{
		Name:      "unschedule",
		Usage:     "remove a scheduled job",
		ArgsUsage: "JOB_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one JOB_ID argument")
			}
			resp, err := client(c).Unschedule(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			fmt.Println(resp.Message)
			return nil
		},
	}
}

func jobsCmd() *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "list scheduled jobs",
		Action: func(c *cli.Context) error {
			jobs, err := client(c).Jobs(c.Context)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Println("no scheduled jobs")
				return nil
			}
			for _, j := range jobs {
				fmt.Printf("%s  %s", j.ID, j.Trigger)
				if !j.NextRun.IsZero() {
					fmt.Printf("  next %s", j.NextRun.Format(time.RFC3339))
				}
				if j.Message != "" {
					fmt.Printf("  %q", preview(j.Message))
				}
				fmt.Println()
			}
			return nil
		},
	}
}

func statusCmd() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "check daemon health",
		Action: func(c *cli.Context) error {
			h, err := client(c).Health(c.Context)
			if err != nil {
				return err
			}
			fmt.Println("status:", h.Status)
			fmt.Println("bot connected:", h.BotConnected)
			fmt.Println("monitoring:", h.Monitoring)
			if h.Status != "healthy" {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

func buildTrigger(c *cli.Context) (apiclient.Trigger, error) {
	set := 0
	for _, name := range []string{"cron", "every", "at"} {
		if c.IsSet(name) {
			set++
		}
	}
	if set != 1 {
		return apiclient.Trigger{}, fmt.Errorf("exactly one of --cron, --every, --at is required")
	}

	switch {
	case c.IsSet("cron"):
		parts := strings.Fields(c.String("cron"))
		if len(parts) != 5 {
			return apiclient.Trigger{}, fmt.Errorf("cron expression needs 5 fields (minute hour day month weekday)")
		}
		return apiclient.Trigger{
			Type: "cron", Minute: parts[0], Hour: parts[1], Day: parts[2], Month: parts[3], Dow: parts[4],
		}, nil
	case c.IsSet("every"):
		return apiclient.Trigger{Type: "interval", Every: c.Duration("every").String()}, nil
	default:
		return apiclient.Trigger{Type: "date", At: *c.Timestamp("at")}, nil
	}
}

func parseChatIDs(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat id %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func preview(s string) string {
	const maxN = 50
	r := []rune(s)
	if len(r) <= maxN {
		return s
	}
	return string(r[:maxN-3]) + "..."
}
