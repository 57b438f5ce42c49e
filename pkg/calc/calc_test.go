package calc

import (
	"testing"
	"time"
)

func TestProgress(t *testing.T) {
	tests := []struct {
		name       string
		downloaded int64
		total      int64
		want       float64
	}{
		{name: "zero total", downloaded: 100, total: 0, want: 0},
		{name: "half", downloaded: 50, total: 100, want: 50},
		{name: "complete", downloaded: 100, total: 100, want: 100},
		{name: "fractional", downloaded: 1, total: 3, want: 33.33},
		{name: "negative total", downloaded: 10, total: -1, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Progress(tt.downloaded, tt.total); got != tt.want {
				t.Errorf("Progress(%d, %d) = %v, want %v", tt.downloaded, tt.total, got, tt.want)
			}
		})
	}
}

func TestETA(t *testing.T) {
	started := time.Now().Add(-10 * time.Second)

	eta := ETA(50, 100, started)
	if eta < 9*time.Second || eta > 11*time.Second {
		t.Errorf("ETA(50, 100) = %v, want ~10s", eta)
	}

	if got := ETA(0, 100, started); got != 0 {
		t.Errorf("ETA with zero downloaded = %v, want 0", got)
	}

	if got := ETA(50, 0, started); got != 0 {
		t.Errorf("ETA with zero total = %v, want 0", got)
	}
}

func TestSpeed(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		dt    time.Duration
		want  int64
	}{
		{name: "1MiB per second", bytes: 1 << 20, dt: time.Second, want: 1 << 20},
		{name: "half second", bytes: 500, dt: 500 * time.Millisecond, want: 1000},
		{name: "zero time", bytes: 100, dt: 0, want: 0},
		{name: "no bytes", bytes: 0, dt: time.Second, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Speed(tt.bytes, tt.dt); got != tt.want {
				t.Errorf("Speed(%d, %v) = %d, want %d", tt.bytes, tt.dt, got, tt.want)
			}
		})
	}
}
