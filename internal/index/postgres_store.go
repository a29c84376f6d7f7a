package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// PostgresStore is the production Store backed by PostgreSQL.
// Numeric USDC amounts are stored as NUMERIC(78,0) and scanned
// through strings to keep big.Int precision.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an open database handle. Schema management
// lives in cmd/migrate; this constructor only verifies connectivity.
func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// DB exposes the underlying handle for health checks and metrics.
func (s *PostgresStore) DB() *sql.DB { return s.db }

func (s *PostgresStore) Close() error { return s.db.Close() }

// ---- Agents ----

func (s *PostgresStore) InsertAgent(ctx context.Context, a *Agent) (bool, error) {
	services := []byte(nil)
	if len(a.Services) > 0 {
		services = a.Services
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (
			id, agent_id, chain_id, owner, agent_uri,
			name, description, image_uri, services,
			has_x402, x402_payee, x402_network,
			is_active, created_at, updated_at, tx_hash
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (id) DO NOTHING`,
		a.ID, a.AgentID, a.ChainID, strings.ToLower(a.Owner), a.AgentURI,
		nullStr(a.Name), nullStr(a.Description), nullStr(a.ImageURI), services,
		a.HasX402, nullStr(strings.ToLower(a.X402Payee)), nullStr(a.X402Network),
		a.IsActive, a.CreatedAt, nullInt(a.UpdatedAt), a.TxHash,
	)
	if err != nil {
		return false, fmt.Errorf("insert agent: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

const agentColumns = `
	id, agent_id, chain_id, owner, agent_uri,
	COALESCE(name, ''), COALESCE(description, ''), COALESCE(image_uri, ''),
	COALESCE(services, 'null'::jsonb),
	has_x402, COALESCE(x402_payee, ''), COALESCE(x402_network, ''),
	is_active, created_at, COALESCE(updated_at, 0), tx_hash`

func (s *PostgresStore) GetAgent(ctx context.Context, key string) (*Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1`, key)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAgentNotFound
	}
	return a, err
}

func (s *PostgresStore) UpdateAgentOwner(ctx context.Context, key, owner string, updatedAt int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET owner = $2, updated_at = $3 WHERE id = $1`,
		key, strings.ToLower(owner), updatedAt)
	if err != nil {
		return fmt.Errorf("update agent owner: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAgentNotFound
	}
	return nil
}

func (s *PostgresStore) ListAgents(ctx context.Context, q AgentQuery) ([]*Agent, int64, error) {
	limit, offset := normalizePage(q.Limit, q.Offset)

	where := ""
	args := []any{}
	if q.ChainID != nil {
		where = " WHERE chain_id = $1"
		args = append(args, *q.ChainID)
	}

	var total int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM agents`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count agents: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+agentColumns+` FROM agents`+where+
			fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	agents := []*Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, 0, err
		}
		agents = append(agents, a)
	}
	return agents, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*Agent, error) {
	var a Agent
	var services []byte
	err := row.Scan(
		&a.ID, &a.AgentID, &a.ChainID, &a.Owner, &a.AgentURI,
		&a.Name, &a.Description, &a.ImageURI, &services,
		&a.HasX402, &a.X402Payee, &a.X402Network,
		&a.IsActive, &a.CreatedAt, &a.UpdatedAt, &a.TxHash,
	)
	if err != nil {
		return nil, err
	}
	if len(services) > 0 && string(services) != "null" {
		a.Services = json.RawMessage(services)
	}
	return &a, nil
}

// ---- Feedback ----

func (s *PostgresStore) InsertFeedback(ctx context.Context, f *Feedback) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (id, agent_key, giver, value, tag, created_at, tx_hash, chain_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO NOTHING`,
		f.ID, f.AgentKey, strings.ToLower(f.Giver), f.Value, nullStr(f.Tag),
		f.CreatedAt, f.TxHash, f.ChainID,
	)
	if err != nil {
		return false, fmt.Errorf("insert feedback: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *PostgresStore) ListFeedback(ctx context.Context, agentKey string, limit int) ([]*Feedback, error) {
	query := `
		SELECT id, agent_key, giver, value, COALESCE(tag, ''), created_at, tx_hash, chain_id
		FROM feedback WHERE agent_key = $1
		ORDER BY created_at DESC, id DESC`
	args := []any{agentKey}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	out := []*Feedback{}
	for rows.Next() {
		var f Feedback
		if err := rows.Scan(&f.ID, &f.AgentKey, &f.Giver, &f.Value, &f.Tag,
			&f.CreatedAt, &f.TxHash, &f.ChainID); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

func (s *PostgresStore) FeedbackByTag(ctx context.Context, agentKey string) ([]TagSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tag, COUNT(*), AVG(value)
		FROM feedback
		WHERE agent_key = $1 AND tag IS NOT NULL
		GROUP BY tag
		ORDER BY COUNT(*) DESC, tag ASC`, agentKey)
	if err != nil {
		return nil, fmt.Errorf("feedback by tag: %w", err)
	}
	defer rows.Close()

	out := []TagSummary{}
	for rows.Next() {
		var ts TagSummary
		if err := rows.Scan(&ts.Tag, &ts.Count, &ts.AverageScore); err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// ---- Stats ----

func (s *PostgresStore) GetStats(ctx context.Context, agentKey string) (*AgentStats, error) {
	var st AgentStats
	err := s.db.QueryRowContext(ctx, `
		SELECT agent_key, feedback_count, total_score, average_score, unique_givers, last_updated
		FROM agent_stats WHERE agent_key = $1`, agentKey).
		Scan(&st.AgentKey, &st.FeedbackCount, &st.TotalScore, &st.AverageScore,
			&st.UniqueGivers, &st.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStatsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	return &st, nil
}

func (s *PostgresStore) UpsertStats(ctx context.Context, st *AgentStats) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_stats (agent_key, feedback_count, total_score, average_score, unique_givers, last_updated)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (agent_key) DO UPDATE SET
			feedback_count = EXCLUDED.feedback_count,
			total_score    = EXCLUDED.total_score,
			average_score  = EXCLUDED.average_score,
			unique_givers  = EXCLUDED.unique_givers,
			last_updated   = EXCLUDED.last_updated`,
		st.AgentKey, st.FeedbackCount, st.TotalScore, st.AverageScore,
		st.UniqueGivers, st.LastUpdated)
	if err != nil {
		return fmt.Errorf("upsert stats: %w", err)
	}
	return nil
}

// ---- Activity ----

func (s *PostgresStore) InsertActivity(ctx context.Context, a *Activity) (bool, error) {
	details := []byte(nil)
	if len(a.Details) > 0 {
		b, err := json.Marshal(a.Details)
		if err != nil {
			return false, fmt.Errorf("marshal activity details: %w", err)
		}
		details = b
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO activity (id, type, agent_key, agent_name, actor, details, chain_id, block_number, timestamp, tx_hash)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO NOTHING`,
		a.ID, string(a.Type), a.AgentKey, nullStr(a.AgentName), strings.ToLower(a.Actor),
		details, a.ChainID, a.BlockNumber, a.Timestamp, a.TxHash,
	)
	if err != nil {
		return false, fmt.Errorf("insert activity: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *PostgresStore) ListActivity(ctx context.Context, q ActivityQuery) ([]*Activity, error) {
	limit, offset := normalizePage(q.Limit, q.Offset)

	conds := []string{}
	args := []any{}
	if q.Type != "" {
		args = append(args, string(q.Type))
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	if q.ChainID != nil {
		args = append(args, *q.ChainID)
		conds = append(conds, fmt.Sprintf("chain_id = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, agent_key, COALESCE(agent_name, ''), actor,
		       COALESCE(details, 'null'::jsonb), chain_id, block_number, timestamp, tx_hash
		FROM activity`+where+
		fmt.Sprintf(` ORDER BY timestamp DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	out := []*Activity{}
	for rows.Next() {
		var a Activity
		var typ string
		var details []byte
		if err := rows.Scan(&a.ID, &typ, &a.AgentKey, &a.AgentName, &a.Actor,
			&details, &a.ChainID, &a.BlockNumber, &a.Timestamp, &a.TxHash); err != nil {
			return nil, err
		}
		a.Type = ActivityType(typ)
		if len(details) > 0 && string(details) != "null" {
			if err := json.Unmarshal(details, &a.Details); err != nil {
				return nil, fmt.Errorf("unmarshal activity details: %w", err)
			}
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// ---- Payments ----

func (s *PostgresStore) InsertPayment(ctx context.Context, p *Payment) (bool, error) {
	amount := "0"
	if p.Amount != nil {
		amount = p.Amount.String()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, agent_key, payee, payer, facilitator, facilitator_id, amount, chain_id, block_number, timestamp, tx_hash)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO NOTHING`,
		p.ID, p.AgentKey, strings.ToLower(p.Payee), strings.ToLower(p.Payer),
		strings.ToLower(p.Facilitator), nullStr(p.FacilitatorID), amount,
		p.ChainID, p.BlockNumber, p.Timestamp, p.TxHash,
	)
	if err != nil {
		return false, fmt.Errorf("insert payment: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *PostgresStore) CountDistinctPayers(ctx context.Context, agentKey string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT payer) FROM payments WHERE agent_key = $1`, agentKey).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count distinct payers: %w", err)
	}
	return n, nil
}

// ---- Payee index ----

func (s *PostgresStore) InsertPayeeLookup(ctx context.Context, pl *PayeeLookup) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO payee_lookup (payee, agent_key, agent_name)
		VALUES ($1,$2,$3)
		ON CONFLICT (payee) DO NOTHING`,
		strings.ToLower(pl.Payee), pl.AgentKey, nullStr(pl.AgentName),
	)
	if err != nil {
		return false, fmt.Errorf("insert payee lookup: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *PostgresStore) GetPayeeLookup(ctx context.Context, payee string) (*PayeeLookup, error) {
	var pl PayeeLookup
	err := s.db.QueryRowContext(ctx, `
		SELECT payee, agent_key, COALESCE(agent_name, '')
		FROM payee_lookup WHERE payee = $1`, strings.ToLower(payee)).
		Scan(&pl.Payee, &pl.AgentKey, &pl.AgentName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPayeeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payee lookup: %w", err)
	}
	return &pl, nil
}

// ---- Volume ----

func (s *PostgresStore) GetVolume(ctx context.Context, agentKey string) (*AgentVolume, error) {
	var v AgentVolume
	var total string
	err := s.db.QueryRowContext(ctx, `
		SELECT agent_key, total_volume::text, tx_count, unique_payers, COALESCE(last_payment, 0)
		FROM agent_volume WHERE agent_key = $1`, agentKey).
		Scan(&v.AgentKey, &total, &v.TxCount, &v.UniquePayers, &v.LastPayment)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVolumeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get volume: %w", err)
	}
	v.TotalVolume, _ = new(big.Int).SetString(total, 10)
	if v.TotalVolume == nil {
		v.TotalVolume = new(big.Int)
	}
	return &v, nil
}

func (s *PostgresStore) UpsertVolume(ctx context.Context, v *AgentVolume) error {
	total := "0"
	if v.TotalVolume != nil {
		total = v.TotalVolume.String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_volume (agent_key, total_volume, tx_count, unique_payers, last_payment)
		VALUES ($1,$2::numeric,$3,$4,$5)
		ON CONFLICT (agent_key) DO UPDATE SET
			total_volume  = EXCLUDED.total_volume,
			tx_count      = EXCLUDED.tx_count,
			unique_payers = EXCLUDED.unique_payers,
			last_payment  = EXCLUDED.last_payment`,
		v.AgentKey, total, v.TxCount, v.UniquePayers, nullInt(v.LastPayment))
	if err != nil {
		return fmt.Errorf("upsert volume: %w", err)
	}
	return nil
}

// ---- Global ----

func (s *PostgresStore) GlobalStats(ctx context.Context, since int64) (*GlobalStats, error) {
	gs := &GlobalStats{TotalVolume: new(big.Int)}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE has_x402),
		       COUNT(*) FILTER (WHERE created_at >= $1)
		FROM agents`, since).
		Scan(&gs.TotalAgents, &gs.X402Agents, &gs.AgentsSince)
	if err != nil {
		return nil, fmt.Errorf("global agent counts: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM feedback`).Scan(&gs.TotalFeedback); err != nil {
		return nil, fmt.Errorf("global feedback count: %w", err)
	}

	var total string
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(amount), 0)::text FROM payments`).
		Scan(&gs.TotalPayments, &total)
	if err != nil {
		return nil, fmt.Errorf("global payment totals: %w", err)
	}
	if v, ok := new(big.Int).SetString(total, 10); ok {
		gs.TotalVolume = v
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT chain_id, COUNT(*) FROM agents GROUP BY chain_id ORDER BY chain_id`)
	if err != nil {
		return nil, fmt.Errorf("global chain counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cc ChainCount
		if err := rows.Scan(&cc.ChainID, &cc.AgentCount); err != nil {
			return nil, err
		}
		gs.Chains = append(gs.Chains, cc)
	}
	return gs, rows.Err()
}

// ---- helpers ----

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}
