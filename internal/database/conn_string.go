package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/stock-data/internal/config"
)

// ApplicationName is reported to the server in pg_stat_activity.
const ApplicationName = "stocketl"

// BuildConnString builds a PostgreSQL URL from config. User, password and
// database name are escaped, IPv6 hosts are bracketed, and sslmode falls back
// to "prefer".
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("application_name", ApplicationName)

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// Redact returns connStr with the password replaced, for logging.
func Redact(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil || u.User == nil {
		return connStr
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
