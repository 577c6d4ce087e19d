package internal

import (
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/txsvc/stdlib/v2"
)

const (
	LOG_LEVEL            = "log_level"
	LOG_LEVEL_DEBUG      = "log_level_debug"
	LOG_LEVEL_MQTT_TRACE = "log_level_mqtt_trace"
)

// SetLogLevel configures the global zerolog level from the environment.
// log_level_debug wins over log_level.
func SetLogLevel() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if GetBool(LOG_LEVEL_DEBUG, false) {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}

	level, err := zerolog.ParseLevel(strings.ToLower(stdlib.GetString(LOG_LEVEL, "info")))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func Duration(d time.Duration, dicimal int) time.Duration {
	shift := int(math.Pow10(dicimal))

	units := []time.Duration{time.Second, time.Millisecond, time.Microsecond, time.Nanosecond}
	for _, u := range units {
		if d > u {
			div := u / time.Duration(shift)
			if div == 0 {
				break
			}
			d = d / div * div
			break
		}
	}
	return d
}

func XID() string {
	return xid.New().String()
}

// FIXME move this to stdlib
func GetBool(env string, def bool) bool {
	e, ok := os.LookupEnv(env)
	if !ok {
		return def
	}

	e = strings.ToLower(e)
	if e == "true" || e == "yes" || e == "1" {
		return true
	}
	return false
}

// GetFloat returns the env value parsed as float64 or def if missing or malformed.
func GetFloat(env string, def float64) float64 {
	e, ok := os.LookupEnv(env)
	if !ok || e == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(e), 64)
	if err != nil {
		return def
	}
	return f
}
