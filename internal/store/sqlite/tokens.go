package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/bobuk/ex2gcal/internal/providers/google"
)

var _ google.TokenStore = (*Store)(nil)

// LoadToken returns the stored token of account or google.ErrNoToken.
func (s *Store) LoadToken(ctx context.Context, account string) (*oauth2.Token, error) {
	var tokenJSON []byte
	err := s.DB.QueryRowContext(ctx, "SELECT token FROM tokens WHERE account_name = ?", account).Scan(&tokenJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, google.ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("error retrieving token from database: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(tokenJSON, &token); err != nil {
		return nil, fmt.Errorf("error unmarshaling token: %w", err)
	}
	return &token, nil
}

// SaveToken stores tok for account, replacing any previous one.
func (s *Store) SaveToken(ctx context.Context, account string, tok *oauth2.Token) error {
	tokenJSON, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, "INSERT OR REPLACE INTO tokens (account_name, token) VALUES (?, ?)", account, string(tokenJSON))
	return err
}

// DeleteToken forgets the token of account.
func (s *Store) DeleteToken(ctx context.Context, account string) error {
	_, err := s.DB.ExecContext(ctx, "DELETE FROM tokens WHERE account_name = ?", account)
	return err
}
