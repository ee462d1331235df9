package repository

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// BookCursor allows stable pagination by created_at/id.
type BookCursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

// EncodeCursor renders the opaque token handed back to clients.
func EncodeCursor(c BookCursor) (string, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(payload), nil
}

// DecodeCursor parses a cursor token into a BookCursor.
func DecodeCursor(token string) (*BookCursor, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	var cursor BookCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, fmt.Errorf("invalid cursor payload: %w", err)
	}
	if cursor.ID == "" || cursor.CreatedAt.IsZero() {
		return nil, fmt.Errorf("invalid cursor payload: missing position")
	}
	return &cursor, nil
}

func nextCursor(n, limit int, last BookCursor) (*string, error) {
	if n < limit {
		return nil, nil
	}
	token, err := EncodeCursor(last)
	if err != nil {
		return nil, err
	}
	return &token, nil
}
