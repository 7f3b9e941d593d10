package database

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
)

// DefaultVersionTable is the version-history table read by the startup gate.
const DefaultVersionTable = "VersionHistory"

// Config holds everything needed to open a Connector.
type Config struct {
	// Driver is a dialect name or alias: postgres, mysql or sqlite3.
	Driver string

	// DSN is passed to the driver as is. When empty it is assembled from the
	// host fields below.
	DSN string

	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// ConnectTimeout bounds the initial ping.
	ConnectTimeout time.Duration

	// ExpectedVersion is the schema version the running code was built for.
	ExpectedVersion int

	// SkipVersionCheck disables the startup gate.
	SkipVersionCheck bool

	// VersionTable overrides DefaultVersionTable.
	VersionTable string

	// OnConnect hooks run once the pool is up and the gate has passed.
	OnConnect []Hook

	Logger *slog.Logger
}

// ConnectionString returns the DSN, assembling it from the host fields when
// none was given.
func (c Config) ConnectionString(driver string) (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}
	timeout := c.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	switch driver {
	case "mysql":
		mc := mysql.NewConfig()
		mc.User = c.Username
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.portOr(3306)))
		mc.DBName = c.Database
		mc.ParseTime = true
		mc.Timeout = timeout
		return mc.FormatDSN(), nil
	case "postgres":
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(c.Username, c.Password),
			Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.portOr(5432))),
			Path:   "/" + c.Database,
		}
		q := url.Values{}
		q.Set("connect_timeout", strconv.Itoa(int(timeout.Seconds())))
		if c.SSLMode != "" {
			q.Set("sslmode", c.SSLMode)
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	case "sqlite3":
		if c.Database == "" {
			return "", fmt.Errorf("sqlite3 requires a database path")
		}
		return c.Database, nil
	}
	return "", fmt.Errorf("unsupported database driver: %s", driver)
}

func (c Config) portOr(def int) int {
	if c.Port > 0 {
		return c.Port
	}
	return def
}
