// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

type result struct {
	Scenario       string  `json:"scenario"`
	Description    string  `json:"description"`
	PayloadBytes   int     `json:"payload_bytes"`
	Publishers     int     `json:"publishers"`
	Subscribers    int     `json:"subscribers"`
	Published      int64   `json:"published"`
	Expected       int64   `json:"expected"`
	Received       int64   `json:"received"`
	PublishRateMPS float64 `json:"publish_rate_mps"`
	DurationMS     int64   `json:"duration_ms"`
	DeliveryRatio  float64 `json:"delivery_ratio"`
	Errors         int64   `json:"errors"`
	SubscribeOps   int64   `json:"subscribe_ops"`
	UnsubscribeOps int64   `json:"unsubscribe_ops"`
	Pass           bool    `json:"pass"`
	Notes          string  `json:"notes"`
}

const header = "SCENARIO\tMSG_SIZE\tSENT\tEXPECTED\tRECORDED\tPUB\tSUB\tSUB_OPS\tMPS_SENT\tDURATION\tRATIO\tPASS\tERRORS\tDESCRIPTION"

func main() {
	input := flag.String("input", "", "Path to JSONL results file from loadgen")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "-input is required")
		os.Exit(2)
	}

	f, err := os.Open(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open %s: %v\n", *input, err)
		os.Exit(2)
	}
	defer f.Close()

	failed, err := render(os.Stdout, f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read %s: %v\n", *input, err)
		os.Exit(2)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// render prints one table row per result line and returns how many
// scenarios did not pass. Lines that are not results are skipped.
func render(out io.Writer, in io.Reader) (int, error) {
	w := tabwriter.NewWriter(out, 2, 2, 2, ' ', 0)
	fmt.Fprintln(w, header)

	failed := 0
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		var r result
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil || r.Scenario == "" {
			continue
		}
		if !r.Pass {
			failed++
		}
		writeRow(w, r)
	}
	if err := w.Flush(); err != nil {
		return failed, err
	}
	return failed, scanner.Err()
}

func writeRow(w io.Writer, r result) {
	desc := r.Description
	if desc == "" {
		desc = "-"
	}
	fmt.Fprintf(w, "%s\t%dB\t%d\t%d\t%d\t%d\t%d\t%d\t%.2f\t%dms\t%.4f\t%v\t%d\t%s\n",
		r.Scenario, r.PayloadBytes, r.Published, r.Expected, r.Received,
		r.Publishers, r.Subscribers, r.SubscribeOps+r.UnsubscribeOps,
		r.PublishRateMPS, r.DurationMS, r.DeliveryRatio, r.Pass, r.Errors, desc)
	if r.Notes != "" {
		fmt.Fprintf(w, "notes\t-\t-\t-\t-\t-\t-\t-\t-\t-\t-\t-\t-\t%s\n", r.Notes)
	}
}
