package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCEndpoints []string
	WSEndpoint   string
	RateLimit    int
	SlippageBps  uint16
	LogLevel     string
	MetricsAddr  string
}

// Load merges config file, environment variables (CLMM_ prefix), and flags into
// Config. RPC_ENDPOINTS is honored when no rpc key is set.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CLMM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("ratelimit", 20)
	v.SetDefault("slippage-bps", 50)
	v.SetDefault("log-level", "info")
	v.SetDefault("metrics-addr", ":2112")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("clmm")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	slippage := v.GetInt("slippage-bps")
	if slippage < 0 || slippage > 10000 {
		return Config{}, fmt.Errorf("slippage-bps %d out of [0, 10000]", slippage)
	}

	cfg := Config{
		RPCEndpoints: getStringSlice(v, "rpc"),
		WSEndpoint:   v.GetString("ws"),
		RateLimit:    v.GetInt("ratelimit"),
		SlippageBps:  uint16(slippage),
		LogLevel:     v.GetString("log-level"),
		MetricsAddr:  v.GetString("metrics-addr"),
	}
	if len(cfg.RPCEndpoints) == 0 {
		cfg.RPCEndpoints = GetRPCEndpoints()
	}
	if cfg.WSEndpoint == "" && len(cfg.RPCEndpoints) > 0 {
		cfg.WSEndpoint = WebSocketEndpoint(cfg.RPCEndpoints[0])
	}

	return cfg, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return splitAndClean(strings.Join(typed, ","))
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}
