// Package archive stores finished games. It is a sink only: nothing is read back
// into a live session.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/park285/cheese-liveboard/internal/obslog"
	"github.com/park285/cheese-liveboard/internal/rules"
	"github.com/park285/cheese-liveboard/internal/session"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

type dialect int

const (
	dialectPostgres dialect = iota
	dialectSQLite
)

type Repository struct {
	db      *sql.DB
	dialect dialect
	rules   *rules.Chess
}

// Open picks the driver from databaseURL: postgres:// and postgresql:// go to lib/pq,
// anything else is treated as a sqlite file path (or "file:" DSN).
func Open(ctx context.Context, databaseURL string) (*Repository, error) {
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	driver, d := "sqlite", dialectSQLite
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		driver, d = "postgres", dialectPostgres
	}
	db, err := sql.Open(driver, databaseURL)
	if err != nil {
		return nil, err
	}
	if d == dialectPostgres {
		db.SetMaxOpenConns(8)
		db.SetMaxIdleConns(4)
		db.SetConnMaxLifetime(30 * time.Minute)
	} else {
		// single writer; avoids SQLITE_BUSY between pooled connections
		db.SetMaxOpenConns(1)
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	r := &Repository{db: db, dialect: d, rules: rules.NewChess()}
	if err := r.migrate(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	obslog.L().Info("archive_open", zap.String("driver", driver))
	return r, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repository) migrate(ctx context.Context) error {
	ts := "TIMESTAMPTZ"
	if r.dialect == dialectSQLite {
		ts = "TIMESTAMP"
	}
	ddl := `CREATE TABLE IF NOT EXISTS live_games (
        game_id TEXT PRIMARY KEY,
        session_id TEXT NOT NULL,
        first_conn TEXT NOT NULL DEFAULT '',
        second_conn TEXT NOT NULL DEFAULT '',
        result TEXT NOT NULL,
        result_method TEXT NOT NULL DEFAULT '',
        eco TEXT NOT NULL DEFAULT '',
        opening TEXT NOT NULL DEFAULT '',
        moves_uci TEXT NOT NULL,
        moves_san TEXT NOT NULL,
        pgn TEXT NOT NULL,
        final_fen TEXT NOT NULL,
        started_at ` + ts + `,
        ended_at ` + ts + `,
        duration_ms BIGINT NOT NULL DEFAULT 0
    )`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// SaveResult upserts a finished game.
func (r *Repository) SaveResult(ctx context.Context, rec session.GameRecord) error {
	if r == nil || r.db == nil {
		return nil
	}
	if strings.TrimSpace(rec.GameID) == "" {
		return fmt.Errorf("game id required")
	}
	san, err := r.rules.SAN(rules.StartFEN, rec.MovesUCI)
	if err != nil {
		// keep the game; the PGN just stops where replay failed
		obslog.L().Warn("archive_san_error", zap.String("game_id", rec.GameID), zap.Error(err))
	}
	pgnResult := mapResultToPGN(rec.Result)
	eco, openingName := r.rules.Opening(rules.StartFEN, rec.MovesUCI)
	pgn := buildPGN(rec, san, pgnResult, eco, openingName)

	movesUCIRaw, _ := json.Marshal(rec.MovesUCI)
	movesSANRaw, _ := json.Marshal(san)
	started := rec.StartedAt
	if started.IsZero() {
		started = rec.EndedAt
	}
	duration := rec.EndedAt.Sub(started).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO live_games (
        game_id, session_id, first_conn, second_conn,
        result, result_method, eco, opening, moves_uci, moves_san, pgn, final_fen,
        started_at, ended_at, duration_ms
      ) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
      ON CONFLICT (game_id) DO UPDATE SET
        session_id=EXCLUDED.session_id,
        first_conn=EXCLUDED.first_conn,
        second_conn=EXCLUDED.second_conn,
        result=EXCLUDED.result,
        result_method=EXCLUDED.result_method,
        eco=EXCLUDED.eco,
        opening=EXCLUDED.opening,
        moves_uci=EXCLUDED.moves_uci,
        moves_san=EXCLUDED.moves_san,
        pgn=EXCLUDED.pgn,
        final_fen=EXCLUDED.final_fen,
        started_at=EXCLUDED.started_at,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err = r.db.ExecContext(ctx, r.rebind(q),
		rec.GameID, rec.SessionID, rec.FirstPlayer, rec.SecondPlayer,
		strings.TrimSpace(rec.Result), strings.TrimSpace(rec.Method), eco, openingName,
		string(movesUCIRaw), string(movesSANRaw), pgn, rec.FinalFEN,
		started.UTC(), rec.EndedAt.UTC(), duration,
	)
	return err
}

// StoredGame is a row as read back for inspection.
type StoredGame struct {
	GameID     string
	SessionID  string
	Result     string
	Method     string
	ECO        string
	Opening    string
	MovesUCI   []string
	PGN        string
	FinalFEN   string
	DurationMS int64
}

// Recent lists the latest finished games, newest first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]StoredGame, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, r.rebind(`SELECT game_id, session_id, result, result_method, eco, opening, moves_uci, pgn, final_fen, duration_ms
        FROM live_games ORDER BY ended_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StoredGame
	for rows.Next() {
		var g StoredGame
		var moves string
		if err := rows.Scan(&g.GameID, &g.SessionID, &g.Result, &g.Method, &g.ECO, &g.Opening, &moves, &g.PGN, &g.FinalFEN, &g.DurationMS); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(moves), &g.MovesUCI); err != nil {
			// the row is still listed; only its move list is unreadable
			obslog.L().Warn("archive_moves_decode_error", zap.String("game_id", g.GameID), zap.Error(err))
			g.MovesUCI = nil
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// rebind turns ? placeholders into $n for postgres.
func (r *Repository) rebind(q string) string {
	if r.dialect != dialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}
