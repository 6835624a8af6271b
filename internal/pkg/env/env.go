package env

import (
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

var Env map[string]string

func GetEnv(key, def string) string {
	// First check our loaded Env map
	if val, ok := Env[key]; ok {
		return val
	}
	// Fallback to OS environment variables (for Docker/tests)
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// SetupEnvFile loads the first .env file found. Without one the process
// keeps running on the OS environment alone.
func SetupEnvFile() {
	envFiles := []string{
		".env",          // Current directory
		"../../.env",    // From cmd/channelpass to project root
		"../../../.env", // Fallback for deeper nesting
	}

	var err error
	for _, envFile := range envFiles {
		Env, err = godotenv.Read(envFile)
		if err == nil {
			return
		}
	}

	log.Printf("No .env file found, using process environment only")
	Env = map[string]string{}
}

// Environ returns the OS environment overlaid with the values from the .env
// file, the same precedence GetEnv uses.
func Environ() map[string]string {
	merged := make(map[string]string, len(Env))
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			merged[k] = v
		}
	}
	for k, v := range Env {
		merged[k] = v
	}
	return merged
}

func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}
