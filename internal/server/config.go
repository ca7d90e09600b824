package server

import (
	"fmt"
	"os"
	"strconv"

	_ "github.com/joho/godotenv/autoload"
)

const defaultPort = 8000

type Config struct {
	Port        int
	DatabaseURL string
	// PublicHost, when set, is the externally reachable host clients should
	// open their websocket against (served behind TLS).
	PublicHost string
}

func LoadConfig() Config {
	port, _ := strconv.Atoi(os.Getenv("PORT"))
	if port == 0 {
		port = defaultPort
	}

	return Config{
		Port:        port,
		DatabaseURL: os.Getenv("DATABASE_URL"),
		PublicHost:  os.Getenv("STACKEDFOUR_HOST"),
	}
}

// ConnectionURL builds the duplex endpoint handed back by registration, with
// the session token appended.
func (c Config) ConnectionURL(token string) string {
	if c.PublicHost != "" {
		return fmt.Sprintf("wss://%s/ws/%s", c.PublicHost, token)
	}
	return fmt.Sprintf("ws://127.0.0.1:%d/ws/%s", c.Port, token)
}
