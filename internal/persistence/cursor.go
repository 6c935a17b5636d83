// Package persistence contains helpers shared by store drivers.
package persistence

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"example.com/stravasync/internal/domain"
)

// EncodeCursor serialises the cursor to an opaque token.
func EncodeCursor(c *domain.Cursor) string {
	if c == nil {
		return ""
	}
	raw := fmt.Sprintf("%s|%d", c.StartDate.UTC().Format(time.RFC3339Nano), c.ActivityID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor. Blank tokens decode to nil.
func DecodeCursor(token string) (*domain.Cursor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor id: %w", err)
	}
	return &domain.Cursor{StartDate: ts, ActivityID: id}, nil
}

// NextCursor returns the cursor that continues after page when it is full.
func NextCursor(page []domain.Activity, limit int) *domain.Cursor {
	if limit <= 0 || len(page) < limit {
		return nil
	}
	last := page[len(page)-1]
	return &domain.Cursor{StartDate: last.StartDate, ActivityID: last.ActivityID}
}

// Before reports whether a sorts after the cursor position in
// (StartDate DESC, ActivityID DESC) order.
func Before(a domain.Activity, c *domain.Cursor) bool {
	if c == nil {
		return true
	}
	if a.StartDate.Equal(c.StartDate) {
		return a.ActivityID < c.ActivityID
	}
	return a.StartDate.Before(c.StartDate)
}
