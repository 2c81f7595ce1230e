//go:build linux

package async

import (
	"testing"
)

// ============================================================================
// Pit Wall Gauges Test Universe (Linux)
// ============================================================================
//
// Theme: The health endpoint reads real memory gauges from the OS
// ============================================================================

func TestGetMemoryStats_Linux(t *testing.T) {
	t.Log("📟 Pit wall: the memory gauge must read something sane")

	total, available, err := getMemoryStats()
	if err != nil {
		t.Fatalf("getMemoryStats() error = %v", err)
	}

	if total == 0 {
		t.Error("total memory = 0, want > 0")
	}
	if available > total {
		t.Errorf("available memory (%d) exceeds total (%d)", available, total)
	}

	t.Logf("  ✓ total=%.2f GB, available=%.2f GB",
		float64(total)/(1024*1024*1024),
		float64(available)/(1024*1024*1024))
}
