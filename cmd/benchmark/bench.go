package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	vegeta "github.com/tsenart/vegeta/v12/lib"
)

const (
	primaryPort  = 9091
	fallbackPort = 9092
	appPort      = 8081
)

var (
	chatResp      = []byte(`{"id":"bench-123","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Hello"}}]}`)
	rateLimitResp = []byte(`{"error":{"message":"Rate limit reached","type":"rate_limit_error"}}`)
	modelsResp    = []byte(`{"object":"list","data":[{"id":"bench-model","object":"model","created":1687882411,"owned_by":"bench"}]}`)
)

func main() {
	duration := flag.Duration("duration", 10*time.Second, "Duration of the test")
	rate := flag.Int("rate", 50, "Requests per second")
	failRate := flag.Int("fail-rate", 0, "Percentage of primary calls answered with 429 (forces failover)")
	chaos := flag.Bool("chaos", false, "Simulate random client disconnections")
	flag.Parse()

	if *failRate < 0 || *failRate > 100 {
		log.Fatalf("-fail-rate must be between 0 and 100")
	}

	// start mock providers
	go startMockProvider(primaryPort, *failRate)
	go startMockProvider(fallbackPort, 0)

	// build and start application
	fmt.Println("Building application...")
	buildCmd := exec.Command("go", "build", "-o", "bin/server", "./cmd/server")
	buildCmd.Stdout = os.Stdout
	buildCmd.Stderr = os.Stderr
	if err := buildCmd.Run(); err != nil {
		log.Fatalf("Failed to build app: %v", err)
	}

	configFile := "bench_config.yaml"
	if err := os.WriteFile(configFile, []byte(benchConfig), 0644); err != nil {
		log.Fatalf("Failed to write config: %v", err)
	}
	defer os.Remove(configFile)

	fmt.Println("Starting application...")
	cmd := exec.Command("./bin/server")
	cmd.Env = append(os.Environ(), fmt.Sprintf("CONFIG_FILE=%s", configFile))
	cmd.Env = append(cmd.Env, fmt.Sprintf("SERVER_PORT=%d", appPort))
	cmd.Env = append(cmd.Env, "LOG_LEVEL=error")

	logFile, _ := os.Create("bench_server.log")
	defer logFile.Close()
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		log.Fatalf("Failed to start app: %v", err)
	}
	defer func() {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
	}()

	waitForApp(fmt.Sprintf("http://localhost:%d/health", appPort))

	// Signal channel to stop background tasks (monitor, chaos monkey)
	done := make(chan struct{})

	go monitorResources(cmd.Process.Pid, done)

	routeURL := fmt.Sprintf("http://localhost:%d/v1/route/chat", appPort)
	fmt.Printf("Running benchmark: %s duration, %d req/s, %d%% primary failures\n", *duration, *rate, *failRate)

	body := []byte(`{"payload": {"messages": [{"role": "user", "content": "Hello"}]}}`)

	var seq int64
	var seqMu sync.Mutex
	targeter := func(t *vegeta.Target) error {
		seqMu.Lock()
		seq++
		session := "bench-" + strconv.FormatInt(seq, 10)
		seqMu.Unlock()

		t.Method = "POST"
		t.URL = routeURL
		t.Body = body
		t.Header = http.Header{
			"Content-Type":  []string{"application/json"},
			"Authorization": []string{"Bearer bench-key-12345"},
			"X-Session-ID":  []string{session},
		}
		return nil
	}

	if *chaos {
		fmt.Println("CHAOS MODE ENABLED: Starting Chaos Monkey sidecar...")
		chaosConcurrency := *rate / 10
		if chaosConcurrency < 5 {
			chaosConcurrency = 5
		}
		if chaosConcurrency > 50 {
			chaosConcurrency = 50
		}
		go startChaosMonkey(routeURL, chaosConcurrency, done)
	}

	attacker := vegeta.NewAttacker(vegeta.KeepAlive(true))
	var metrics vegeta.Metrics

	for res := range attacker.Attack(targeter, vegeta.Rate{Freq: *rate, Per: time.Second}, *duration, "Benchmark") {
		metrics.Add(res)
	}
	metrics.Close()

	close(done)

	fmt.Println("--------------------------------------------------")
	fmt.Println("99th percentile: ", metrics.Latencies.P99)
	fmt.Println("Mean:            ", metrics.Latencies.Mean)
	fmt.Println("Max:             ", metrics.Latencies.Max)
	fmt.Printf("Success:         %.2f%%\n", metrics.Success*100)
	fmt.Printf("Throughput:      %.2f req/s\n", metrics.Throughput)
	fmt.Println("Status codes:   ", metrics.StatusCodes)
	fmt.Println("--------------------------------------------------")

	if len(metrics.Errors) > 0 {
		fmt.Println("Error Set (first 5 unique):")

		uniqueErrors := make(map[string]bool)
		count := 0
		for _, msg := range metrics.Errors {
			if !uniqueErrors[msg] && count < 5 {
				fmt.Println(msg)

				uniqueErrors[msg] = true
				count++
			}
		}
	}

	printAttemptStats()

	// Cleanup
	os.Remove("bench.db")
}

// printAttemptStats shows how the attempt log classified the run.
func printAttemptStats() {
	req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("http://localhost:%d/v1/admin/attempts/stats?hours=1", appPort), nil)
	req.Header.Set("Authorization", "Bearer bench-admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Attempt stats unavailable: %v\n", err)
		return
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Printf("Attempt stats unavailable: %v\n", err)
		return
	}
	fmt.Printf("Attempt stats (%d): %s\n", resp.StatusCode, b)
}

func startChaosMonkey(url string, concurrency int, done chan struct{}) {
	fmt.Printf("Starting Chaos Monkey with %d concurrent disrupters (random disconnects 1-200ms)\n", concurrency)
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			client := &http.Client{
				Transport: &http.Transport{
					MaxIdleConns:        100,
					MaxIdleConnsPerHost: 100,
				},
			}

			payload := `{"session_id": "chaos", "payload": {"messages": [{"role": "user", "content": "Chaos Request"}]}}`

			for {
				select {
				case <-done:
					return
				default:
					timeout := time.Duration(rand.Intn(200)+1) * time.Millisecond

					ctx, cancel := context.WithTimeout(context.Background(), timeout)
					req, _ := http.NewRequestWithContext(ctx, "POST", url, strings.NewReader(payload))
					req.Header.Set("Content-Type", "application/json")
					req.Header.Set("Authorization", "Bearer bench-key-12345")

					resp, err := client.Do(req)
					if err == nil {
						resp.Body.Close()
					}
					cancel()

					time.Sleep(time.Duration(rand.Intn(50)) * time.Millisecond)
				}
			}
		}()
	}
}

// startMockProvider serves an OpenAI-compatible upstream that rejects
// failPercent of chat calls with 429.
func startMockProvider(port, failPercent int) {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(modelsResp)
	})

	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if failPercent > 0 && rand.Intn(100) < failPercent {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write(rateLimitResp)
			return
		}
		time.Sleep(10 * time.Millisecond)
		w.Write(chatResp)
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	_ = http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}

func monitorResources(pid int, done chan struct{}) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	fmt.Println("\n--- Resource Usage (ps) ---")
	fmt.Printf("% -10s % -10s % -10s\n", "Time", "RSS(MB)", "CPU(%)")

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			out, err := exec.Command("ps", "-p", strconv.Itoa(pid), "-o", "rss=,%cpu=").Output()
			if err != nil {
				continue
			}
			fields := strings.Fields(string(out))
			if len(fields) < 2 {
				continue
			}
			rssKB, _ := strconv.ParseFloat(fields[0], 64)
			cpu, _ := strconv.ParseFloat(fields[1], 64)

			fmt.Printf("% -10s % -10.2f % -10.2f\n",
				time.Now().Format("15:04:05"),
				rssKB/1024,
				cpu,
			)
		}
	}
}

func waitForApp(url string) {
	for i := 0; i < 20; i++ {
		resp, err := http.Get(url)
		if err == nil && resp.StatusCode == 200 {
			resp.Body.Close()
			return
		}
		time.Sleep(500 * time.Millisecond)
	}
	log.Fatal("App timed out")
}

var benchConfig = fmt.Sprintf(`
server:
  port: %d
  env: development
  api_keys: ["bench-key-12345"]
  admin_keys: ["bench-admin"]
rate_limit:
  requests_per_second: 100000
  burst: 100000
log:
  level: "error"
database:
  path: "bench.db"
routing:
  max_retry_count: 2
providers:
  - id: primary
    provider_key: deepseek
    protocol_type: openai
    credential: "mock-key"
    base_url: "http://localhost:%d/v1"
    enabled: true
  - id: fallback
    provider_key: qwen
    protocol_type: openai
    credential: "mock-key"
    base_url: "http://localhost:%d/v1"
    enabled: true
policies:
  - capability: chat
    primary_provider_id: primary
    primary_model: bench-model
    fallback_chain:
      - provider_id: fallback
        model: bench-model
    timeout_ms: 5000
    retry_count: 0
    enabled: true
`, appPort, primaryPort, fallbackPort)
