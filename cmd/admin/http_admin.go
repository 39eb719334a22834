package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"rtsgarrison.dev/internal/protocol"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/state"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func commandCmd(args []string) {
	fs := flag.NewFlagSet("command", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	kind := fs.String("kind", "", "command kind, e.g. ENTER, EXIT, EVACUATE")
	subject := fs.Uint("subject", 0, "subject object id")
	target := fs.Uint("target", 0, "target object id")
	pos := fs.String("pos", "", "x,y,z")
	amount := fs.Float64("amount", 0, "damage amount")
	door := fs.Int("door", 0, "exit door (0 lets the container pick)")
	_ = fs.Parse(args)

	req := protocol.CommandRequest{
		Kind:    strings.ToUpper(strings.TrimSpace(*kind)),
		Subject: uint32(*subject),
		Target:  uint32(*target),
		Amount:  *amount,
		Door:    *door,
	}
	if *pos != "" {
		p, err := parseVec(*pos)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad -pos:", err)
			os.Exit(2)
		}
		req.Pos = p
	}
	body, _ := json.Marshal(req)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/command"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Post(u, "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func parseVec(s string) ([3]float64, error) {
	var out [3]float64
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return out, fmt.Errorf("want x,y,z")
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return out, err
		}
		out[i] = v
	}
	return out, nil
}
