package stock

import (
	"math"

	"github.com/adrotate/suffixcore/internal/config"
)

// DynamicWatermark implements spec.md §4.D's dynamic low-watermark formula:
// given c24 (items consumed in the trailing watermarkHistoryWindow, normally
// 24h), target clamp(ceil((c24/24)*safetyFactor), min, max); c24==0 uses the
// configured default instead of collapsing to the min. Exported so the
// recovery service's low_stock alert rule (spec.md §4.G) can evaluate the
// same watermark the producer itself uses.
func DynamicWatermark(c24 int, cfg *config.RuntimeConfig) int {
	if c24 <= 0 {
		return cfg.WatermarkDefault
	}
	raw := math.Ceil(float64(c24) / 24 * cfg.WatermarkSafetyFactor)
	w := int(raw)
	if w < cfg.WatermarkMin {
		w = cfg.WatermarkMin
	}
	if w > cfg.WatermarkMax {
		w = cfg.WatermarkMax
	}
	return w
}
