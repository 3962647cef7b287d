package database

import (
	"fmt"
	"net/url"

	"github.com/productbridge/productbridge/internal/config"
)

// BuildURL returns the connection string for cfg. It works with both local
// development and Google Cloud SQL on Cloud Run:
//   - DATABASE_URL is used as is when set
//   - otherwise INSTANCE_CONNECTION_NAME with DB_USER and DB_NAME (and
//     DB_PASSWORD unless IAM auth is used) selects the Cloud SQL unix socket
//
// An empty result with a nil error means no database is configured.
func BuildURL(cfg config.DatabaseConfig) (string, error) {
	if cfg.URL != "" {
		return cfg.URL, nil
	}
	if cfg.InstanceConnectionName == "" {
		return "", nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", fmt.Errorf("DB_USER and DB_NAME must be set when using INSTANCE_CONNECTION_NAME")
	}

	// Cloud Run mounts Cloud SQL instances at /cloudsql/[INSTANCE_CONNECTION_NAME]
	socketPath := fmt.Sprintf("/cloudsql/%s", cfg.InstanceConnectionName)

	if cfg.Password != "" {
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s sslmode=disable",
			socketPath, cfg.User, cfg.Password, cfg.Name), nil
	}
	return fmt.Sprintf("host=%s user=%s dbname=%s sslmode=disable",
		socketPath, cfg.User, cfg.Name), nil
}

// Describe summarizes cfg for logging without credentials.
func Describe(cfg config.DatabaseConfig) map[string]string {
	switch {
	case cfg.URL != "":
		return map[string]string{
			"connection_type": "direct",
			"database_url":    RedactURL(cfg.URL),
		}
	case cfg.InstanceConnectionName != "":
		return map[string]string{
			"connection_type": "cloud_sql",
			"instance":        cfg.InstanceConnectionName,
			"user":            cfg.User,
			"database":        cfg.Name,
		}
	default:
		return map[string]string{"connection_type": "none"}
	}
}

// RedactURL masks the password of a postgres:// URL.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); !ok {
		return raw
	}
	return u.Redacted()
}
