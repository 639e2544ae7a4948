// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/qgate/client"
)

var allScenarios = []string{
	"fanin",
	"fanout",
	"substorm",
}

var scenarioDescriptions = map[string]string{
	"fanin":    "many publishers push into one queue",
	"fanout":   "one publisher pushes to a queue with many subscribers",
	"substorm": "subscribers churn while a publisher pushes",
}

type runConfig struct {
	Scenario             string
	BrokerURL            string
	PayloadLabel         string
	PayloadBytes         int
	Publishers           int
	Subscribers          int
	MessagesPerPublisher int
	PublishInterval      time.Duration
	PublishJitter        time.Duration
	MinRatio             float64
}

type scenarioResult struct {
	Timestamp      string  `json:"timestamp"`
	Scenario       string  `json:"scenario"`
	Description    string  `json:"description"`
	PayloadLabel   string  `json:"payload_label"`
	PayloadBytes   int     `json:"payload_bytes"`
	Publishers     int     `json:"publishers"`
	Subscribers    int     `json:"subscribers"`
	Published      int64   `json:"published"`
	Expected       int64   `json:"expected"`
	Received       int64   `json:"received"`
	DeliveryRatio  float64 `json:"delivery_ratio"`
	Errors         int64   `json:"errors"`
	SubscribeOps   int64   `json:"subscribe_ops,omitempty"`
	UnsubscribeOps int64   `json:"unsubscribe_ops,omitempty"`
	PublishRateMPS float64 `json:"publish_rate_mps"`
	DurationMS     int64   `json:"duration_ms"`
	Pass           bool    `json:"pass"`
	Notes          string  `json:"notes,omitempty"`
}

type counters struct {
	published   atomic.Int64
	received    atomic.Int64
	errors      atomic.Int64
	subscribes  atomic.Int64
	unsubscribe atomic.Int64
}

func main() {
	scenario := flag.String("scenario", "all", "Scenario to run ("+strings.Join(allScenarios, ", ")+", all)")
	brokerURL := flag.String("broker", client.DefaultBaseURL, "Broker API address")
	payload := flag.String("payload", "small", "Payload size label (small, medium, large) or byte count")
	publishers := flag.Int("publishers", 8, "Number of publishers")
	subscribers := flag.Int("subscribers", 16, "Number of subscribers")
	messages := flag.Int("messages", 100, "Messages per publisher")
	interval := flag.Duration("interval", 0, "Delay between pushes of one publisher")
	jitter := flag.Duration("jitter", 0, "Random +/- jitter applied to the push interval")
	minRatio := flag.Float64("min-ratio", 0.99, "Minimum delivery ratio for a pass")
	output := flag.String("output", "", "Append JSONL results to this file (default stdout)")
	flag.Parse()

	payloadBytes, err := parsePayloadSize(*payload)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	scenarios, err := selectScenarios(*scenario)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	out := os.Stdout
	if *output != "" {
		f, err := os.OpenFile(*output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open %s: %v\n", *output, err)
			os.Exit(2)
		}
		defer f.Close()
		out = f
	}

	ctx := context.Background()
	enc := json.NewEncoder(out)
	failed := false
	for _, name := range scenarios {
		cfg := runConfig{
			Scenario:             name,
			BrokerURL:            *brokerURL,
			PayloadLabel:         *payload,
			PayloadBytes:         payloadBytes,
			Publishers:           *publishers,
			Subscribers:          *subscribers,
			MessagesPerPublisher: *messages,
			PublishInterval:      *interval,
			PublishJitter:        *jitter,
			MinRatio:             *minRatio,
		}
		res := runScenario(ctx, cfg)
		if err := enc.Encode(res); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write result: %v\n", err)
			os.Exit(2)
		}
		failed = failed || !res.Pass
	}

	if failed {
		os.Exit(1)
	}
}

func selectScenarios(name string) ([]string, error) {
	if name == "all" {
		return allScenarios, nil
	}
	for _, s := range allScenarios {
		if s == name {
			return []string{name}, nil
		}
	}
	return nil, fmt.Errorf("unknown scenario %q", name)
}

func parsePayloadSize(label string) (int, error) {
	switch label {
	case "small":
		return 64, nil
	case "medium":
		return 1024, nil
	case "large":
		return 64 * 1024, nil
	}
	var n int
	if _, err := fmt.Sscanf(label, "%d", &n); err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid payload size %q", label)
	}
	return n, nil
}

func runScenario(ctx context.Context, cfg runConfig) scenarioResult {
	res := scenarioResult{
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Scenario:     cfg.Scenario,
		Description:  scenarioDescriptions[cfg.Scenario],
		PayloadLabel: cfg.PayloadLabel,
		PayloadBytes: cfg.PayloadBytes,
	}

	queue := fmt.Sprintf("perf-%s-%d", cfg.Scenario, time.Now().UnixNano())
	var c counters
	start := time.Now()

	var err error
	switch cfg.Scenario {
	case "fanin":
		res.Publishers, res.Subscribers = cfg.Publishers, 0
		res.Expected, err = runFanIn(ctx, cfg, queue, &c)
	case "fanout":
		res.Publishers, res.Subscribers = 1, cfg.Subscribers
		res.Expected, err = runFanOut(ctx, cfg, queue, &c)
	case "substorm":
		res.Publishers, res.Subscribers = 1, cfg.Subscribers
		res.Expected, err = runSubStorm(ctx, cfg, queue, &c)
	}
	elapsed := time.Since(start)

	res.Published = c.published.Load()
	res.Received = c.received.Load()
	res.Errors = c.errors.Load()
	res.SubscribeOps = c.subscribes.Load()
	res.UnsubscribeOps = c.unsubscribe.Load()
	res.DurationMS = elapsed.Milliseconds()
	if elapsed > 0 {
		res.PublishRateMPS = float64(res.Published) / elapsed.Seconds()
	}
	res.DeliveryRatio = ratio(res.Received, res.Expected)
	res.Pass = err == nil && res.DeliveryRatio >= cfg.MinRatio
	if err != nil {
		res.Notes = err.Error()
	}
	return res
}

// runFanIn pushes from many publishers and checks every push landed in the log.
func runFanIn(ctx context.Context, cfg runConfig, queue string, c *counters) (int64, error) {
	owner, err := newClient(cfg)
	if err != nil {
		return 0, err
	}
	defer owner.Close()

	if _, err := owner.NewQueue(ctx, queue); err != nil {
		return 0, err
	}

	payload := strings.Repeat("x", cfg.PayloadBytes)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Publishers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			pub, err := newClient(cfg)
			if err != nil {
				c.errors.Add(1)
				return
			}
			defer pub.Close()
			if _, err := pub.AddPublisher(ctx, queue); err != nil {
				c.errors.Add(1)
				return
			}
			publishLoop(ctx, cfg, pub, queue, payload, rand.New(rand.NewSource(seed)), c, nil)
		}(int64(i) + 1)
	}
	wg.Wait()

	q, err := owner.Queue(ctx, queue)
	if err != nil {
		return 0, err
	}
	c.received.Store(int64(len(q.Data)))
	return int64(cfg.Publishers * cfg.MessagesPerPublisher), nil
}

// runFanOut checks every push recorded the full subscriber set.
func runFanOut(ctx context.Context, cfg runConfig, queue string, c *counters) (int64, error) {
	pub, err := newClient(cfg)
	if err != nil {
		return 0, err
	}
	defer pub.Close()

	if _, err := pub.NewQueue(ctx, queue); err != nil {
		return 0, err
	}

	for i := 0; i < cfg.Subscribers; i++ {
		// Subscribers stay connected so their source ports stay unique.
		sub, err := newClient(cfg)
		if err != nil {
			return 0, err
		}
		defer sub.Close()
		if _, err := sub.Subscribe(ctx, queue); err != nil {
			return 0, err
		}
		c.subscribes.Add(1)
	}

	payload := strings.Repeat("x", cfg.PayloadBytes)
	publishLoop(ctx, cfg, pub, queue, payload, rand.New(rand.NewSource(1)), c, func(m client.Message) {
		c.received.Add(int64(len(m.Recipients)))
	})

	return int64(cfg.MessagesPerPublisher * cfg.Subscribers), nil
}

// runSubStorm churns subscriptions while pushing. Every push must still
// land in the log.
func runSubStorm(ctx context.Context, cfg runConfig, queue string, c *counters) (int64, error) {
	pub, err := newClient(cfg)
	if err != nil {
		return 0, err
	}
	defer pub.Close()

	if _, err := pub.NewQueue(ctx, queue); err != nil {
		return 0, err
	}

	stormCtx, stop := context.WithCancel(ctx)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Subscribers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub, err := newClient(cfg)
			if err != nil {
				c.errors.Add(1)
				return
			}
			defer sub.Close()
			for stormCtx.Err() == nil {
				if _, err := sub.Subscribe(ctx, queue); err != nil {
					c.errors.Add(1)
					return
				}
				c.subscribes.Add(1)
				if _, err := sub.Unsubscribe(ctx, queue); err != nil {
					c.errors.Add(1)
					return
				}
				c.unsubscribe.Add(1)
			}
		}()
	}

	payload := strings.Repeat("x", cfg.PayloadBytes)
	publishLoop(ctx, cfg, pub, queue, payload, rand.New(rand.NewSource(1)), c, nil)
	stop()
	wg.Wait()

	q, err := pub.Queue(ctx, queue)
	if err != nil {
		return 0, err
	}
	if len(q.Subscribers) != 0 {
		return 0, errors.New("subscribers left after churn")
	}
	c.received.Store(int64(len(q.Data)))
	return int64(cfg.MessagesPerPublisher), nil
}

func publishLoop(ctx context.Context, cfg runConfig, pub *client.Client, queue, payload string, rng *rand.Rand, c *counters, onPush func(client.Message)) {
	if d := initialPublishDelay(cfg.PublishJitter, rng); d > 0 {
		time.Sleep(d)
	}
	for i := 0; i < cfg.MessagesPerPublisher; i++ {
		msg, err := pub.Push(ctx, queue, payload)
		if err != nil {
			c.errors.Add(1)
			continue
		}
		c.published.Add(1)
		if onPush != nil {
			onPush(msg)
		}
		if d := jitteredPublishInterval(cfg.PublishInterval, cfg.PublishJitter, rng); d > 0 {
			time.Sleep(d)
		}
	}
}

func newClient(cfg runConfig) (*client.Client, error) {
	return client.New(client.NewOptions().SetBaseURL(cfg.BrokerURL))
}

func initialPublishDelay(jitter time.Duration, rng *rand.Rand) time.Duration {
	if jitter <= 0 {
		return 0
	}
	return time.Duration(rng.Int63n(int64(jitter) + 1))
}

func jitteredPublishInterval(base, jitter time.Duration, rng *rand.Rand) time.Duration {
	if jitter <= 0 {
		return base
	}
	delta := time.Duration(rng.Int63n(2*int64(jitter)+1)) - jitter
	if d := base + delta; d > 0 {
		return d
	}
	return 0
}

func ratio(received, expected int64) float64 {
	if expected == 0 {
		return 1
	}
	return float64(received) / float64(expected)
}
