package config

import (
	"bufio"
	"errors"
	"os"
	"strings"
)

const (
	EnvClientID     = "DERIBIT_CLIENT_ID"
	EnvClientSecret = "DERIBIT_CLIENT_SECRET"
)

// Credentials authenticate the client-signature grant.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// LoadCredentials reads the API key pair from the environment.
func LoadCredentials() (Credentials, error) {
	id := strings.TrimSpace(os.Getenv(EnvClientID))
	if id == "" {
		return Credentials{}, errors.New(EnvClientID + " is required")
	}
	secret := strings.TrimSpace(os.Getenv(EnvClientSecret))
	if secret == "" {
		return Credentials{}, errors.New(EnvClientSecret + " is required")
	}
	return Credentials{ClientID: id, ClientSecret: secret}, nil
}

// LoadEnv reads a .env file and sets environment variables.
// Missing files are ignored to keep startup flexible.
func LoadEnv(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if len(val) >= 2 {
			if (val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'') {
				val = val[1 : len(val)-1]
			}
		}
		if key != "" {
			if _, exists := os.LookupEnv(key); exists {
				continue
			}
			_ = os.Setenv(key, val)
		}
	}

	return scanner.Err()
}
