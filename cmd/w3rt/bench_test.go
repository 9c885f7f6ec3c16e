package main_test

import (
	"os/exec"
	"testing"
)

// Startup cost matters because w3rt is invoked per-run from scripts and
// schedulers. Both benchmarks reuse the binary built in TestMain.

func BenchmarkStartupVersion(b *testing.B) {
	b.ReportAllocs()
	for b.Loop() {
		if err := exec.Command(binPath, "version").Run(); err != nil {
			b.Fatalf("w3rt version failed: %v", err)
		}
	}
}

func BenchmarkStartupHelp(b *testing.B) {
	b.ReportAllocs()
	for b.Loop() {
		if err := exec.Command(binPath, "--help").Run(); err != nil {
			b.Fatalf("w3rt --help failed: %v", err)
		}
	}
}
