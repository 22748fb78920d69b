package config

import (
	"fmt"
	"strings"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	ServerAddr     string
	RawSocketAddr  string
	Store          string
	DatabaseDSN    string
	AllowedOrigins []string
	Migrate        bool
}

func NewConfig(serverAddr, rawSocketAddr, store, databaseDSN string, allowedOrigins []string, migrate bool) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if rawSocketAddr == "" {
		return nil, fmt.Errorf("raw socket address cannot be empty")
	}
	if serverAddr == rawSocketAddr {
		return nil, fmt.Errorf("server and raw socket addresses must differ, both are %q", serverAddr)
	}

	store = strings.ToLower(strings.TrimSpace(store))
	switch store {
	case StorePostgres:
		if databaseDSN == "" {
			return nil, fmt.Errorf("database DSN cannot be empty")
		}
	case StoreMemory:
	default:
		return nil, fmt.Errorf("unknown store %q, want %q or %q", store, StorePostgres, StoreMemory)
	}

	origins := make([]string, 0, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return &Config{
		ServerAddr:     serverAddr,
		RawSocketAddr:  rawSocketAddr,
		Store:          store,
		DatabaseDSN:    databaseDSN,
		AllowedOrigins: origins,
		Migrate:        migrate,
	}, nil
}
