package db

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/go-sql-driver/mysql"
	"github.com/router-for-me/predictions/internal/config"
	log "github.com/sirupsen/logrus"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultPostgresPort = 5432
	defaultMySQLPort    = 3306
)

// Open connects to the configured database. Driver errors are translated so that
// unique violations surface as gorm.ErrDuplicatedKey.
func Open(cfg config.SQLConfig) (*gorm.DB, error) {
	dsn, err := BuildDSN(cfg)
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DriverPostgres, "":
		dialector = postgres.Open(dsn)
	case config.DriverMySQL:
		dialector = gormmysql.Open(dsn)
	case config.DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("db: unsupported driver: %s", cfg.Driver)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect %s: %w", cfg.Driver, err)
	}
	return conn, nil
}

// Close releases the underlying sql.DB resources for the provided GORM handle.
func Close(conn *gorm.DB) error {
	if conn == nil {
		return nil
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// BuildDSN builds a driver specific DSN from the sql settings.
func BuildDSN(cfg config.SQLConfig) (string, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", config.DriverPostgres:
		port := cfg.Port
		if port <= 0 {
			port = defaultPostgresPort
		}
		sslMode := cfg.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(cfg.Username, cfg.Password),
			Host:     net.JoinHostPort(cfg.Server, strconv.Itoa(port)),
			Path:     "/" + cfg.Database,
			RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
		}
		return u.String(), nil
	case config.DriverMySQL:
		port := cfg.Port
		if port <= 0 {
			port = defaultMySQLPort
		}
		myCfg := mysql.NewConfig()
		myCfg.User = cfg.Username
		myCfg.Passwd = cfg.Password
		myCfg.Net = "tcp"
		myCfg.Addr = net.JoinHostPort(cfg.Server, strconv.Itoa(port))
		myCfg.DBName = cfg.Database
		myCfg.ParseTime = true
		return myCfg.FormatDSN(), nil
	case config.DriverSQLite:
		return buildSQLiteDSN(cfg.Database), nil
	default:
		return "", fmt.Errorf("db: unsupported driver: %s", cfg.Driver)
	}
}

// defaultSQLitePath is the default SQLite database file name.
const defaultSQLitePath = "predictions.db"

// buildSQLiteDSN constructs a SQLite DSN with default parameters.
func buildSQLiteDSN(path string) string {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		dsn = defaultSQLitePath
	}
	if !strings.HasPrefix(strings.ToLower(dsn), "file:") {
		dsn = "file:" + dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + strings.Join([]string{
		"_busy_timeout=5000",
		"_foreign_keys=on",
	}, "&")
}

// DialectName returns the active database dialect name, e.g. "postgres" or "sqlite".
func DialectName(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return ""
	}
	return conn.Dialector.Name()
}

func logClose(conn *gorm.DB) {
	if errClose := Close(conn); errClose != nil {
		log.WithError(errClose).Warn("db: close connection failed")
	}
}
