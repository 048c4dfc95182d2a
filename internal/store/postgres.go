package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/adledger/internal/model"
)

// Schema is the PostgreSQL schema used by PostgresStore. All monetary values
// are stored as NUMERIC for exact decimal precision; identities as 20-byte
// BYTEA in big-endian order.
const Schema = `
CREATE TABLE IF NOT EXISTS ledger_access (
	id              SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	owner           BYTEA NOT NULL,
	trusted_service BYTEA NOT NULL
);
CREATE TABLE IF NOT EXISTS participants (
	address BYTEA PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS bids (
	id              BIGINT PRIMARY KEY,
	sender          BYTEA NOT NULL,
	declared_amount NUMERIC NOT NULL,
	escrowed_value  NUMERIC NOT NULL,
	settled         BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS balances (
	address BYTEA PRIMARY KEY,
	amount  NUMERIC NOT NULL CHECK (amount >= 0)
);
CREATE TABLE IF NOT EXISTS ledger_totals (
	id            SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	total_balance NUMERIC NOT NULL CHECK (total_balance >= 0)
);
CREATE TABLE IF NOT EXISTS ledger_events (
	seq     BIGINT PRIMARY KEY,
	id      UUID NOT NULL,
	name    TEXT NOT NULL,
	success BOOLEAN NOT NULL,
	caller  BYTEA NOT NULL,
	subject BYTEA NOT NULL,
	bid_id  BIGINT NOT NULL DEFAULT 0,
	amount  NUMERIC NOT NULL,
	at      TIMESTAMPTZ NOT NULL
);`

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Each commit is one transaction; the hook runs before COMMIT.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Commit(ctx context.Context, c model.Change, hook Hook) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := applyChange(ctx, tx, c); err != nil {
			return err
		}
		if hook != nil {
			return hook(ctx)
		}
		return nil
	})
}

func applyChange(ctx context.Context, tx pgx.Tx, c model.Change) error {
	if c.Access != nil {
		if _, err := tx.Exec(ctx,
			`INSERT INTO ledger_access (id, owner, trusted_service) VALUES (1, $1, $2)
			 ON CONFLICT (id) DO UPDATE SET owner = EXCLUDED.owner, trusted_service = EXCLUDED.trusted_service`,
			c.Access.Owner.Bytes(), c.Access.TrustedService.Bytes()); err != nil {
			return fmt.Errorf("upsert access: %w", err)
		}
	}
	if c.Register != nil {
		if _, err := tx.Exec(ctx,
			`INSERT INTO participants (address) VALUES ($1)`, c.Register.Bytes()); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}
	if b := c.Bid; b != nil {
		if _, err := tx.Exec(ctx,
			`INSERT INTO bids (id, sender, declared_amount, escrowed_value, settled, created_at)
			 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5, $6)
			 ON CONFLICT (id) DO UPDATE SET settled = EXCLUDED.settled`,
			int64(b.ID), b.Sender.Bytes(), b.DeclaredAmount.String(), b.EscrowedValue.String(),
			b.Settled, b.CreatedAt); err != nil {
			return fmt.Errorf("upsert bid %d: %w", b.ID, err)
		}
	}
	for addr, amount := range c.Balances {
		if _, err := tx.Exec(ctx,
			`INSERT INTO balances (address, amount) VALUES ($1, $2::NUMERIC)
			 ON CONFLICT (address) DO UPDATE SET amount = EXCLUDED.amount`,
			addr.Bytes(), amount.String()); err != nil {
			return fmt.Errorf("upsert balance %s: %w", addr, err)
		}
	}
	if c.TotalBalance != nil {
		if _, err := tx.Exec(ctx,
			`INSERT INTO ledger_totals (id, total_balance) VALUES (1, $1::NUMERIC)
			 ON CONFLICT (id) DO UPDATE SET total_balance = EXCLUDED.total_balance`,
			c.TotalBalance.String()); err != nil {
			return fmt.Errorf("upsert total: %w", err)
		}
	}
	if e := c.Event; e.Name != "" {
		if _, err := tx.Exec(ctx,
			`INSERT INTO ledger_events (seq, id, name, success, caller, subject, bid_id, amount, at)
			 VALUES ($1, $2::TEXT::UUID, $3, $4, $5, $6, $7, $8::NUMERIC, $9)`,
			int64(e.Seq), e.ID, e.Name, e.Success, e.Caller.Bytes(), e.Subject.Bytes(),
			int64(e.BidID), e.Amount.String(), e.At); err != nil {
			return fmt.Errorf("insert event %d: %w", e.Seq, err)
		}
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) (*model.State, error) {
	st := model.NewState()

	var owner, trusted []byte
	err := s.pool.QueryRow(ctx,
		`SELECT owner, trusted_service FROM ledger_access WHERE id = 1`).Scan(&owner, &trusted)
	switch {
	case err == pgx.ErrNoRows:
	case err != nil:
		return nil, fmt.Errorf("load access: %w", err)
	default:
		st.Initialized = true
		if st.Access.Owner, err = model.AddressFromBytes(owner); err != nil {
			return nil, err
		}
		if st.Access.TrustedService, err = model.AddressFromBytes(trusted); err != nil {
			return nil, err
		}
	}

	if err := s.loadParticipants(ctx, st); err != nil {
		return nil, err
	}
	if err := s.loadBids(ctx, st); err != nil {
		return nil, err
	}
	if err := s.loadBalances(ctx, st); err != nil {
		return nil, err
	}

	var totalS string
	err = s.pool.QueryRow(ctx,
		`SELECT total_balance::TEXT FROM ledger_totals WHERE id = 1`).Scan(&totalS)
	if err != nil && err != pgx.ErrNoRows {
		return nil, fmt.Errorf("load total: %w", err)
	}
	if err == nil {
		st.TotalBalance, _ = decimal.NewFromString(totalS)
	}

	if err := s.loadEvents(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *PostgresStore) loadParticipants(ctx context.Context, st *model.State) error {
	rows, err := s.pool.Query(ctx, `SELECT address FROM participants`)
	if err != nil {
		return fmt.Errorf("load participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return err
		}
		addr, err := model.AddressFromBytes(raw)
		if err != nil {
			return err
		}
		st.Registered[addr] = true
	}
	return rows.Err()
}

func (s *PostgresStore) loadBids(ctx context.Context, st *model.State) error {
	rows, err := s.pool.Query(ctx,
		`SELECT id, sender, declared_amount::TEXT, escrowed_value::TEXT, settled, created_at
		 FROM bids ORDER BY id`)
	if err != nil {
		return fmt.Errorf("load bids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b model.Bid
		var id int64
		var sender []byte
		var declaredS, escrowS string
		if err := rows.Scan(&id, &sender, &declaredS, &escrowS, &b.Settled, &b.CreatedAt); err != nil {
			return err
		}
		b.ID = uint64(id)
		if b.Sender, err = model.AddressFromBytes(sender); err != nil {
			return err
		}
		b.DeclaredAmount, _ = decimal.NewFromString(declaredS)
		b.EscrowedValue, _ = decimal.NewFromString(escrowS)
		st.Bids = append(st.Bids, b)
	}
	return rows.Err()
}

func (s *PostgresStore) loadBalances(ctx context.Context, st *model.State) error {
	rows, err := s.pool.Query(ctx,
		`SELECT address, amount::TEXT FROM balances WHERE amount > 0`)
	if err != nil {
		return fmt.Errorf("load balances: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw []byte
		var amountS string
		if err := rows.Scan(&raw, &amountS); err != nil {
			return err
		}
		addr, err := model.AddressFromBytes(raw)
		if err != nil {
			return err
		}
		st.Balances[addr], _ = decimal.NewFromString(amountS)
	}
	return rows.Err()
}

func (s *PostgresStore) loadEvents(ctx context.Context, st *model.State) error {
	rows, err := s.pool.Query(ctx,
		`SELECT seq, id::TEXT, name, success, caller, subject, bid_id, amount::TEXT, at
		 FROM ledger_events ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e model.Event
		var seq, bidID int64
		var caller, subject []byte
		var amountS string
		if err := rows.Scan(&seq, &e.ID, &e.Name, &e.Success, &caller, &subject,
			&bidID, &amountS, &e.At); err != nil {
			return err
		}
		e.Seq = uint64(seq)
		e.BidID = uint64(bidID)
		if e.Caller, err = model.AddressFromBytes(caller); err != nil {
			return err
		}
		if e.Subject, err = model.AddressFromBytes(subject); err != nil {
			return err
		}
		e.Amount, _ = decimal.NewFromString(amountS)
		st.Events = append(st.Events, e)
	}
	return rows.Err()
}
