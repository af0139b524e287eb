package gateway

import (
	"fmt"

	"github.com/joho/godotenv"
)

// ParseEnvFile reads KEY=value pairs from a dotenv file without touching the
// process environment. Comments, an "export " prefix and quotes are allowed.
func ParseEnvFile(path string) (map[string]string, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("reading env file: %w", err)
	}
	return vars, nil
}
