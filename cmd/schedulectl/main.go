// Command schedulectl is the operator CLI for a running hilscheduler
// process: status inspection and command enqueue over its HTTP API.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "status":
		cmdStatus(os.Args[2:])
	case "enqueue-control":
		cmdEnqueue(os.Args[2:], "control")
	case "enqueue-settings":
		cmdEnqueue(os.Args[2:], "settings")
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("usage:")
	fmt.Println("  schedulectl status --addr http://localhost:8080")
	fmt.Println("  schedulectl enqueue-control --addr http://localhost:8080 --kind plant.start --payload '{\"plant_id\":\"lib\"}'")
	fmt.Println("  schedulectl enqueue-settings --addr http://localhost:8080 --kind manual.activate --payload '{...}'")
}

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Base URL of the running scheduler")
	_ = fs.Parse(args)

	resp, err := http.Get(*addr + "/api/v1/status")
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	printPretty(resp.Body)
}

func cmdEnqueue(args []string, queue string) {
	fs := flag.NewFlagSet("enqueue-"+queue, flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Base URL of the running scheduler")
	kind := fs.String("kind", "", "Command kind, e.g. plant.start")
	payload := fs.String("payload", "{}", "JSON payload object")
	_ = fs.Parse(args)

	if *kind == "" {
		fmt.Println("--kind is required")
		os.Exit(2)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(*payload), &decoded); err != nil {
		fmt.Fprintln(os.Stderr, "invalid --payload JSON:", err)
		os.Exit(2)
	}

	body, _ := json.Marshal(map[string]any{"kind": *kind, "payload": decoded})
	resp, err := http.Post(*addr+"/api/v1/"+queue+"/commands", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	printPretty(resp.Body)
}

func printPretty(r io.Reader) {
	var out any
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		fmt.Fprintln(os.Stderr, "decode response:", err)
		os.Exit(1)
	}
	pretty, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(pretty))
}
