package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnv loads environment variables from a .env file if it exists.
// Variables already set in the environment win.
func LoadEnv(filename string) error {
	err := godotenv.Load(filename)
	if errors.Is(err, fs.ErrNotExist) {
		// .env file is optional
		return nil
	}
	return err
}

// GetRPCEndpoints returns the endpoints listed in RPC_ENDPOINTS
func GetRPCEndpoints() []string {
	return splitAndClean(os.Getenv("RPC_ENDPOINTS"))
}

// WebSocketEndpoint derives the pubsub URL of an HTTP RPC endpoint
func WebSocketEndpoint(rpcEndpoint string) string {
	switch {
	case strings.HasPrefix(rpcEndpoint, "https://"):
		return "wss://" + strings.TrimPrefix(rpcEndpoint, "https://")
	case strings.HasPrefix(rpcEndpoint, "http://"):
		return "ws://" + strings.TrimPrefix(rpcEndpoint, "http://")
	default:
		return rpcEndpoint
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	return cleanStrings(strings.Split(input, ","))
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
