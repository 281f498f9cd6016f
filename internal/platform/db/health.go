package db

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/ehr/hfanalytics/internal/domain/dataset"
)

// PoolStats is the connection pool part of the health report.
type PoolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
}

// Checker is what the health endpoint asks of the database.
type Checker interface {
	Ping(ctx context.Context) error
	// Tables lists the base tables of schema.
	Tables(ctx context.Context, schema string) ([]string, error)
	Stats() PoolStats
}

type poolChecker struct {
	pool *pgxpool.Pool
}

// NewChecker checks through pool.
func NewChecker(pool *pgxpool.Pool) Checker {
	return &poolChecker{pool: pool}
}

func (p *poolChecker) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func (p *poolChecker) Tables(ctx context.Context, schema string) ([]string, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT table_name FROM information_schema.tables WHERE table_schema = $1 AND table_type = 'BASE TABLE'`,
		schema)
	if err != nil {
		return nil, fmt.Errorf("list tables in %s: %w", schema, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (p *poolChecker) Stats() PoolStats {
	stat := p.pool.Stat()
	return PoolStats{
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
		MaxConns:      stat.MaxConns(),
	}
}

// MissingSheets returns the sheets with no table among tables, in sheet order.
func MissingSheets(tables []string) []string {
	have := make(map[string]bool, len(tables))
	for _, t := range tables {
		have[t] = true
	}
	var missing []string
	for _, sheet := range dataset.Sheets {
		if !have[sheet] {
			missing = append(missing, sheet)
		}
	}
	return missing
}

// HealthHandler reports whether the database answers and whether schema
// holds a table for every sheet.
func HealthHandler(chk Checker, schema string) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		report := map[string]interface{}{
			"schema": schema,
			"pool":   chk.Stats(),
		}
		if err := chk.Ping(ctx); err != nil {
			report["status"] = "unhealthy"
			report["error"] = err.Error()
			return c.JSON(http.StatusServiceUnavailable, report)
		}

		tables, err := chk.Tables(ctx, schema)
		if err != nil {
			report["status"] = "unhealthy"
			report["error"] = err.Error()
			return c.JSON(http.StatusServiceUnavailable, report)
		}
		if missing := MissingSheets(tables); len(missing) > 0 {
			report["status"] = "unhealthy"
			report["missing_tables"] = missing
			return c.JSON(http.StatusServiceUnavailable, report)
		}

		report["status"] = "healthy"
		return c.JSON(http.StatusOK, report)
	}
}
