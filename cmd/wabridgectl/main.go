package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/matheus3301/wabridge/internal/client"
	"github.com/matheus3301/wabridge/internal/config"
)

func main() {
	addrFlag := flag.String("addr", "", "daemon address (default 127.0.0.1:<port from config>)")
	configFlag := flag.String("config", config.DefaultPath, "config file used to find the daemon port")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	addr := *addrFlag
	if addr == "" {
		cfg, err := config.Load(*configFlag)
		if err != nil {
			fail(err)
		}
		if err := cfg.ApplyEnv(".env"); err != nil {
			fail(err)
		}
		addr = "127.0.0.1:" + strconv.Itoa(cfg.Port)
	}
	c := client.New(addr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var (
		env client.Envelope
		err error
	)
	switch args[0] {
	case "send":
		need(args, 3, "send <number> <text>")
		env, err = c.SendMessage(ctx, args[1], args[2])
	case "media":
		need(args, 3, "media <number> <url> [caption]")
		caption := ""
		if len(args) > 3 {
			caption = args[3]
		}
		env, err = c.SendMedia(ctx, args[1], args[2], caption)
	case "add-member":
		need(args, 3, "add-member <group> <number>")
		env, err = c.AddMember(ctx, args[1], args[2])
	case "check":
		need(args, 2, "check <number>")
		env, err = c.CheckNumber(ctx, args[1])
	case "status":
		env, err = c.Status(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fail(err)
	}

	if *jsonFlag {
		outputJSON(env)
		return
	}
	printHuman(args[0], env)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: wabridgectl [--addr host:port] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  send <number> <text>            Send a text message")
	fmt.Fprintln(os.Stderr, "  media <number> <url> [caption]  Send an image by URL")
	fmt.Fprintln(os.Stderr, "  add-member <group> <number>     Add a member to a group")
	fmt.Fprintln(os.Stderr, "  check <number>                  Check whether a number uses WhatsApp")
	fmt.Fprintln(os.Stderr, "  status                          Show connection state")
}

func need(args []string, n int, usage string) {
	if len(args) < n {
		fmt.Fprintln(os.Stderr, "usage: wabridgectl "+usage)
		os.Exit(1)
	}
}

func printHuman(cmd string, env client.Envelope) {
	switch cmd {
	case "status":
		var s struct {
			State     string `json:"state"`
			Connected bool   `json:"connected"`
			Phone     string `json:"phone"`
		}
		if err := json.Unmarshal(env.Response, &s); err == nil {
			fmt.Printf("State:     %s\n", s.State)
			fmt.Printf("Connected: %v\n", s.Connected)
			if s.Phone != "" {
				fmt.Printf("Phone:     %s\n", s.Phone)
			}
			return
		}
	case "send", "media":
		var r struct {
			ID        string    `json:"ID"`
			Timestamp time.Time `json:"Timestamp"`
		}
		if err := json.Unmarshal(env.Response, &r); err == nil && r.ID != "" {
			fmt.Printf("Sent %s at %s\n", r.ID, r.Timestamp.Local().Format(time.DateTime))
			return
		}
	}
	outputJSON(env.Response)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
