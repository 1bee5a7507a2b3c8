package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"time"
)

type AnyEvent map[string]any

func main() {
	addr := flag.String("addr", "127.0.0.1:7070", "TCP event feed address")
	pretty := flag.Bool("pretty", true, "pretty print JSON events")
	only := flag.String("type", "", "only print events of this type (e.g. discovery.invalidate, library.update)")
	flag.Parse()

	for {
		if err := run(*addr, *pretty, *only); err != nil {
			log.Printf("[sync-client] disconnected: %v", err)
		}
		time.Sleep(1 * time.Second) // auto reconnect
	}
}

func run(addr string, pretty bool, only string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	log.Printf("[sync-client] connected to %s", addr)

	// narrow the feed server-side; the local filter below stays as a
	// safety net for servers that predate subscriptions
	if only != "" {
		sub, _ := json.Marshal(map[string]any{"type": "subscribe", "events": []string{only}})
		if _, err := conn.Write(append(sub, '\n')); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		line := sc.Bytes()

		var obj AnyEvent
		if err := json.Unmarshal(line, &obj); err != nil {
			// not JSON? print raw unless filtering
			if only == "" {
				fmt.Println(string(line))
			}
			continue
		}

		if only != "" {
			if t, _ := obj["type"].(string); t != only {
				continue
			}
		}

		if !pretty {
			fmt.Println(string(line))
			continue
		}

		b, _ := json.MarshalIndent(obj, "", "  ")
		fmt.Println(string(b))
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return os.ErrClosed
}
