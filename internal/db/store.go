package db

import (
	"context"
	"fmt"

	"github.com/router-for-me/predictions/internal/config"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// GormStore inserts rows through a connection that lives only for one Insert call.
type GormStore struct {
	open func() (*gorm.DB, error)
}

// NewGormStore constructs a store for the configured database.
func NewGormStore(cfg config.SQLConfig) *GormStore {
	return &GormStore{open: func() (*gorm.DB, error) { return Open(cfg) }}
}

// Insert opens a connection, executes stmt in a transaction, commits, and closes the
// connection on every path.
func (s *GormStore) Insert(ctx context.Context, stmt InsertStatement) error {
	if s == nil || s.open == nil {
		return fmt.Errorf("gorm store: not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	conn, err := s.open()
	if err != nil {
		return err
	}
	defer logClose(conn)

	dialect := DialectName(conn)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("db.system", dialect))
	log.Debugf("inserting into %s via %s", stmt.Table, dialect)

	return conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Exec(stmt.SQL(), stmt.Values...).Error
	})
}
