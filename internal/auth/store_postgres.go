package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresClientStore struct {
	Pool *pgxpool.Pool
}

// EnsureSchema creates the client registry table if it does not exist.
func (s *PostgresClientStore) EnsureSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS oauth_clients (
    client_id   TEXT PRIMARY KEY,
    secret_hash TEXT NOT NULL,
    scopes      TEXT[] NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("ensure oauth schema: %w", err)
	}
	return nil
}

func (s *PostgresClientStore) GetClient(ctx context.Context, clientID string) (*Client, error) {
	if s.Pool == nil {
		return nil, errors.New("missing pool")
	}

	var c Client
	var scopes []string
	err := s.Pool.QueryRow(ctx,
		`SELECT client_id, secret_hash, scopes FROM oauth_clients WHERE client_id = $1`,
		clientID).Scan(&c.ID, &c.SecretHash, &scopes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	c.Scopes = scopes
	return &c, nil
}

// UpsertClient registers or re-keys a client. Secrets are stored only as
// bcrypt hashes.
func (s *PostgresClientStore) UpsertClient(ctx context.Context, clientID, secret string, scopes []string) error {
	hash, err := HashClientSecret(secret)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx,
		`INSERT INTO oauth_clients (client_id, secret_hash, scopes) VALUES ($1, $2, $3)
		 ON CONFLICT (client_id) DO UPDATE
		 SET secret_hash = EXCLUDED.secret_hash, scopes = EXCLUDED.scopes`,
		clientID, hash, scopes)
	if err != nil {
		return fmt.Errorf("upsert client %s: %w", clientID, err)
	}
	return nil
}
