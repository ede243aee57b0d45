package stock

import (
	"testing"

	"github.com/adrotate/suffixcore/internal/config"
)

func TestDynamicWatermark(t *testing.T) {
	cfg := config.NewDefaultRuntimeConfig()

	cases := []struct {
		name string
		c24  int
		want int
	}{
		{"zero consumption uses default", 0, cfg.WatermarkDefault},
		{"low consumption clamps to min", 1, cfg.WatermarkMin},
		{"typical consumption", 48, 4},
		{"heavy consumption clamps to max", 500, cfg.WatermarkMax},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DynamicWatermark(tc.c24, cfg)
			if got != tc.want {
				t.Errorf("DynamicWatermark(%d) = %d, want %d", tc.c24, got, tc.want)
			}
		})
	}
}
