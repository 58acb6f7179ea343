package tracking

import (
	"context"
	"os"
	"strconv"
	"strings"
)

const defaultBatteryPath = "/sys/class/power_supply/battery/capacity"

// SysfsBattery reads the charge percentage the way Linux exposes it. An
// empty Path falls back to the common handset location.
type SysfsBattery struct {
	Path string
}

func (b SysfsBattery) BatteryPercent(_ context.Context) (int, error) {
	path := b.Path
	if path == "" {
		path = defaultBatteryPath
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(raw)))
}
