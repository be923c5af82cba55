// Package main runs the moxy benchmark suite and writes results to JSON and
// Markdown. Run with: go run benchmarks/run_benchmarks.go
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// BenchmarkResults holds all benchmark data
type BenchmarkResults struct {
	Timestamp   string          `json:"timestamp"`
	Environment Environment     `json:"environment"`
	Areas       map[string]Area `json:"areas"`
	Summary     Summary         `json:"summary"`
}

type Environment struct {
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	CPU       string `json:"cpu"`
	NumCPU    int    `json:"num_cpu"`
	GoVersion string `json:"go_version"`
}

type Area struct {
	Benchmarks []Benchmark `json:"benchmarks"`
}

type Benchmark struct {
	Name        string  `json:"name"`
	NsPerOp     float64 `json:"ns_per_op"`
	OpsPerSec   float64 `json:"ops_per_sec"`
	BytesPerOp  int64   `json:"bytes_per_op"`
	AllocsPerOp int64   `json:"allocs_per_op"`
}

type Summary struct {
	Rewrite AreaSummary    `json:"rewrite"`
	Events  AreaSummary    `json:"events"`
	Admin   AreaSummary    `json:"admin"`
	Matcher AreaSummary    `json:"matcher"`
	MockJS  AreaSummary    `json:"mockjs"`
	Startup StartupSummary `json:"startup"`
}

type AreaSummary struct {
	ThroughputOpsPerSec float64 `json:"throughput_ops_per_sec"`
	LatencyNs           float64 `json:"latency_ns"`
	Claim               string  `json:"claim"`
}

type StartupSummary struct {
	ServerNs float64 `json:"server_ns"`
	CLINs    float64 `json:"cli_ns"`
	Claim    string  `json:"claim"`
}

func main() {
	fmt.Println("==========================================")
	fmt.Println("   MOXY BENCHMARK SUITE")
	fmt.Println("==========================================")
	fmt.Println()

	results := BenchmarkResults{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Environment: Environment{
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			CPU:       getCPUInfo(),
			NumCPU:    runtime.NumCPU(),
			GoVersion: runtime.Version(),
		},
		Areas: make(map[string]Area),
	}

	// Run benchmarks
	fmt.Println("Running rewrite benchmarks...")
	results.Areas["rewrite"] = Area{Benchmarks: runBenchmarks("BenchmarkRewrite")}

	fmt.Println("Running event stream benchmarks...")
	results.Areas["events"] = Area{Benchmarks: runBenchmarks("BenchmarkEvents")}

	fmt.Println("Running admin API benchmarks...")
	results.Areas["admin"] = Area{Benchmarks: runBenchmarks("BenchmarkAdminAPI")}

	fmt.Println("Running matcher benchmarks...")
	results.Areas["matcher"] = Area{Benchmarks: runBenchmarks("BenchmarkMatcher")}

	fmt.Println("Running mockjs benchmarks...")
	results.Areas["mockjs"] = Area{Benchmarks: runBenchmarks("BenchmarkMockJS|BenchmarkSynthesize")}

	fmt.Println("Running startup benchmarks...")
	results.Areas["startup"] = Area{Benchmarks: runBenchmarks("BenchmarkServerStartup|BenchmarkCLI")}

	// Calculate summary
	results.Summary = calculateSummary(results.Areas)

	if err := os.MkdirAll("benchmarks/results", 0755); err != nil {
		fmt.Printf("Error creating results directory: %v\n", err)
		return
	}

	// Write JSON
	jsonPath := "benchmarks/results/latest.json"
	writeJSON(results, jsonPath)
	fmt.Printf("\nJSON results: %s\n", jsonPath)

	// Write Markdown
	mdPath := "benchmarks/results/LATEST.md"
	writeMarkdown(results, mdPath)
	fmt.Printf("Markdown results: %s\n", mdPath)

	// Print summary
	printSummary(results)
}

func getCPUInfo() string {
	if runtime.GOOS == "linux" {
		data, err := os.ReadFile("/proc/cpuinfo")
		if err == nil {
			lines := strings.Split(string(data), "\n")
			for _, line := range lines {
				if strings.HasPrefix(line, "model name") {
					parts := strings.SplitN(line, ":", 2)
					if len(parts) == 2 {
						return strings.TrimSpace(parts[1])
					}
				}
			}
		}
	}
	return "unknown"
}

func runBenchmarks(pattern string) []Benchmark {
	cmd := exec.Command("go", "test", "-bench="+pattern, "-benchtime=2s", "-benchmem", "./tests/performance/...")
	output, _ := cmd.CombinedOutput()

	return parseBenchmarkOutput(string(output))
}

func parseBenchmarkOutput(output string) []Benchmark {
	var benchmarks []Benchmark

	// Pattern: BenchmarkName-N    iterations    ns/op    bytes/op    allocs/op
	// Sub-benchmarks carry path segments like BenchmarkMatcherFirstMatch/rules_100
	re := regexp.MustCompile(`(Benchmark[\w/]+)-\d+\s+(\d+)\s+([\d.]+)\s+ns/op\s+(\d+)\s+B/op\s+(\d+)\s+allocs/op`)

	matches := re.FindAllStringSubmatch(output, -1)
	for _, match := range matches {
		if len(match) >= 6 {
			nsPerOp, _ := strconv.ParseFloat(match[3], 64)
			bytesPerOp, _ := strconv.ParseInt(match[4], 10, 64)
			allocsPerOp, _ := strconv.ParseInt(match[5], 10, 64)

			opsPerSec := 0.0
			if nsPerOp > 0 {
				opsPerSec = 1e9 / nsPerOp
			}

			benchmarks = append(benchmarks, Benchmark{
				Name:        match[1],
				NsPerOp:     nsPerOp,
				OpsPerSec:   opsPerSec,
				BytesPerOp:  bytesPerOp,
				AllocsPerOp: allocsPerOp,
			})
		}
	}

	return benchmarks
}

func calculateSummary(areas map[string]Area) Summary {
	summary := Summary{}

	// Rewrite: mock answers measure the hot path, forwards add upstream cost
	if rewrite, ok := areas["rewrite"]; ok {
		for _, b := range rewrite.Benchmarks {
			if strings.Contains(b.Name, "MockHit") {
				summary.Rewrite.ThroughputOpsPerSec = b.OpsPerSec
				summary.Rewrite.LatencyNs = b.NsPerOp
			}
		}
		summary.Rewrite.Claim = fmt.Sprintf("%.0fK+ req/s mocked", summary.Rewrite.ThroughputOpsPerSec/1000*0.8)
	}

	// Events: publish-to-receive delivery with one observer
	if events, ok := areas["events"]; ok {
		for _, b := range events.Benchmarks {
			if strings.Contains(b.Name, "EventsDelivery") {
				summary.Events.ThroughputOpsPerSec = b.OpsPerSec
				summary.Events.LatencyNs = b.NsPerOp
			}
		}
		summary.Events.Claim = fmt.Sprintf("%.0fK+ events/s", summary.Events.ThroughputOpsPerSec/1000*0.8)
	}

	// Admin API
	if admin, ok := areas["admin"]; ok {
		for _, b := range admin.Benchmarks {
			if strings.Contains(b.Name, "Health") {
				summary.Admin.ThroughputOpsPerSec = b.OpsPerSec
				summary.Admin.LatencyNs = b.NsPerOp
			}
		}
		summary.Admin.Claim = fmt.Sprintf("<%.0fms health checks", summary.Admin.LatencyNs/1e6+1)
	}

	// Matcher: first-match lookup across a 100-rule list
	if matcher, ok := areas["matcher"]; ok {
		for _, b := range matcher.Benchmarks {
			if strings.Contains(b.Name, "FirstMatch/rules_100") {
				summary.Matcher.ThroughputOpsPerSec = b.OpsPerSec
				summary.Matcher.LatencyNs = b.NsPerOp
			}
		}
		summary.Matcher.Claim = fmt.Sprintf("%.1fμs per 100-rule lookup", summary.Matcher.LatencyNs/1000)
	}

	// MockJS template expansion
	if mockjs, ok := areas["mockjs"]; ok {
		for _, b := range mockjs.Benchmarks {
			if strings.Contains(b.Name, "Generate/nested") {
				summary.MockJS.ThroughputOpsPerSec = b.OpsPerSec
				summary.MockJS.LatencyNs = b.NsPerOp
			}
		}
		summary.MockJS.Claim = fmt.Sprintf("%.0fK+ templates/s", summary.MockJS.ThroughputOpsPerSec/1000*0.8)
	}

	// Startup
	if startup, ok := areas["startup"]; ok {
		for _, b := range startup.Benchmarks {
			if strings.Contains(b.Name, "ServerStartup") {
				summary.Startup.ServerNs = b.NsPerOp
			}
			if strings.Contains(b.Name, "CLIStartup") {
				summary.Startup.CLINs = b.NsPerOp
			}
		}
		summary.Startup.Claim = fmt.Sprintf("<%.0fms server, <%.0fms CLI",
			summary.Startup.ServerNs/1e6+1,
			summary.Startup.CLINs/1e6+5)
	}

	return summary
}

func writeJSON(results BenchmarkResults, path string) {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		fmt.Printf("Error marshaling JSON: %v\n", err)
		return
	}
	os.WriteFile(path, data, 0644)
}

func writeMarkdown(results BenchmarkResults, path string) {
	var sb strings.Builder

	sb.WriteString("# Moxy Benchmark Results\n\n")
	sb.WriteString(fmt.Sprintf("**Generated**: %s\n\n", results.Timestamp))
	sb.WriteString("## Environment\n\n")
	sb.WriteString(fmt.Sprintf("- **OS**: %s/%s\n", results.Environment.OS, results.Environment.Arch))
	sb.WriteString(fmt.Sprintf("- **CPU**: %s (%d cores)\n", results.Environment.CPU, results.Environment.NumCPU))
	sb.WriteString(fmt.Sprintf("- **Go**: %s\n\n", results.Environment.GoVersion))

	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Area | Throughput | Latency | Claim |\n")
	sb.WriteString("|------|------------|---------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Rewrite (mock) | %.0f req/s | %.2fμs | %s |\n",
		results.Summary.Rewrite.ThroughputOpsPerSec,
		results.Summary.Rewrite.LatencyNs/1000,
		results.Summary.Rewrite.Claim))
	sb.WriteString(fmt.Sprintf("| Events | %.0f events/s | %.2fμs | %s |\n",
		results.Summary.Events.ThroughputOpsPerSec,
		results.Summary.Events.LatencyNs/1000,
		results.Summary.Events.Claim))
	sb.WriteString(fmt.Sprintf("| Admin API | %.0f req/s | %.2fμs | %s |\n",
		results.Summary.Admin.ThroughputOpsPerSec,
		results.Summary.Admin.LatencyNs/1000,
		results.Summary.Admin.Claim))
	sb.WriteString(fmt.Sprintf("| Matcher | %.0f lookups/s | %.2fμs | %s |\n",
		results.Summary.Matcher.ThroughputOpsPerSec,
		results.Summary.Matcher.LatencyNs/1000,
		results.Summary.Matcher.Claim))
	sb.WriteString(fmt.Sprintf("| MockJS | %.0f templates/s | %.2fμs | %s |\n",
		results.Summary.MockJS.ThroughputOpsPerSec,
		results.Summary.MockJS.LatencyNs/1000,
		results.Summary.MockJS.Claim))
	sb.WriteString(fmt.Sprintf("| Startup | - | %.2fms (server) | %s |\n",
		results.Summary.Startup.ServerNs/1e6,
		results.Summary.Startup.Claim))
	sb.WriteString("\n")

	// Detailed results per area
	for name, area := range results.Areas {
		sb.WriteString(fmt.Sprintf("## %s\n\n", cases.Title(language.English).String(name)))
		sb.WriteString("| Benchmark | ops/sec | ns/op | B/op | allocs/op |\n")
		sb.WriteString("|-----------|---------|-------|------|----------|\n")
		for _, b := range area.Benchmarks {
			sb.WriteString(fmt.Sprintf("| %s | %.0f | %.0f | %d | %d |\n",
				b.Name, b.OpsPerSec, b.NsPerOp, b.BytesPerOp, b.AllocsPerOp))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Reproducing\n\n")
	sb.WriteString("```bash\n")
	sb.WriteString("go run benchmarks/run_benchmarks.go\n")
	sb.WriteString("# Or individual areas:\n")
	sb.WriteString("go test -bench=BenchmarkRewrite -benchtime=2s -benchmem ./tests/performance/...\n")
	sb.WriteString("go test -bench=BenchmarkEvents -benchtime=2s -benchmem ./tests/performance/...\n")
	sb.WriteString("go test -bench=BenchmarkMatcher -benchtime=2s -benchmem ./tests/performance/...\n")
	sb.WriteString("go test -bench=BenchmarkMockJS -benchtime=2s -benchmem ./tests/performance/...\n")
	sb.WriteString("```\n")

	os.WriteFile(path, []byte(sb.String()), 0644)
}

func printSummary(results BenchmarkResults) {
	fmt.Println()
	fmt.Println("==========================================")
	fmt.Println("              SUMMARY")
	fmt.Println("==========================================")
	fmt.Printf("Rewrite:  %.0f req/s (%.2fμs latency)\n",
		results.Summary.Rewrite.ThroughputOpsPerSec,
		results.Summary.Rewrite.LatencyNs/1000)
	fmt.Printf("Events:   %.0f events/s (%.2fμs latency)\n",
		results.Summary.Events.ThroughputOpsPerSec,
		results.Summary.Events.LatencyNs/1000)
	fmt.Printf("Admin:    %.0f req/s (%.2fμs latency)\n",
		results.Summary.Admin.ThroughputOpsPerSec,
		results.Summary.Admin.LatencyNs/1000)
	fmt.Printf("Matcher:  %.2fμs per lookup\n",
		results.Summary.Matcher.LatencyNs/1000)
	fmt.Printf("MockJS:   %.0f templates/s\n",
		results.Summary.MockJS.ThroughputOpsPerSec)
	fmt.Printf("Startup:  %.2fms server, %.2fms CLI\n",
		results.Summary.Startup.ServerNs/1e6,
		results.Summary.Startup.CLINs/1e6)
	fmt.Println("==========================================")
}
