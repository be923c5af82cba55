package performance

import (
	"fmt"
	"os/exec"
	"testing"
	"time"
)

// BenchmarkCLIStartup measures CLI binary startup time with the version
// command, the cheapest full command dispatch.
func BenchmarkCLIStartup(b *testing.B) {
	bin, err := ensureBinary()
	if err != nil {
		b.Fatalf("Failed to build CLI: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cmd := exec.Command(bin, "version")
		if err := cmd.Run(); err != nil {
			b.Fatalf("Version command failed: %v", err)
		}
	}
}

// BenchmarkCLIHelp measures help output response time.
func BenchmarkCLIHelp(b *testing.B) {
	bin, err := ensureBinary()
	if err != nil {
		b.Fatalf("Failed to build CLI: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cmd := exec.Command(bin, "--help")
		_ = cmd.Run() // --help exits with 0
	}
}

// TestCLIStartupTime verifies command dispatch stays under 500ms.
func TestCLIStartupTime(t *testing.T) {
	bin, err := ensureBinary()
	if err != nil {
		t.Fatalf("Failed to build CLI: %v", err)
	}

	// Warm up
	for i := 0; i < 3; i++ {
		exec.Command(bin, "version").Run()
	}

	// Measure
	iterations := 10
	var totalDuration time.Duration
	for i := 0; i < iterations; i++ {
		start := time.Now()
		cmd := exec.Command(bin, "version")
		if err := cmd.Run(); err != nil {
			t.Fatalf("Version command failed: %v", err)
		}
		totalDuration += time.Since(start)
	}

	avgDuration := totalDuration / time.Duration(iterations)
	t.Logf("Average CLI startup time: %v", avgDuration)

	if avgDuration > 500*time.Millisecond {
		t.Errorf("CLI startup time %v exceeds 500ms", avgDuration)
	}
}

// TestCLIBinarySize checks the binary stays reasonably sized.
func TestCLIBinarySize(t *testing.T) {
	bin, err := ensureBinary()
	if err != nil {
		t.Fatalf("Failed to build CLI: %v", err)
	}

	statCmd := exec.Command("stat", "-c", "%s", bin)
	out, err := statCmd.Output()
	if err != nil {
		// Try macOS syntax
		statCmd = exec.Command("stat", "-f", "%z", bin)
		out, err = statCmd.Output()
		if err != nil {
			t.Skipf("Could not get file size: %v", err)
		}
	}

	var size int64
	if _, err := fmt.Sscanf(string(out), "%d", &size); err != nil {
		t.Fatalf("Failed to parse file size: %v", err)
	}

	sizeMB := float64(size) / (1024 * 1024)
	t.Logf("Binary size: %.2f MB", sizeMB)

	// Cobra plus the Charmbracelet TUI stack (huh, bubbletea, lipgloss)
	// dominates the binary. A stripped build (-ldflags="-s -w") is smaller.
	if sizeMB > 30 {
		t.Errorf("Binary size %.2f MB seems excessive (expected < 30MB)", sizeMB)
	}
}
