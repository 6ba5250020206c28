package meetings

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"scribe/internal/services"
	"scribe/internal/sqlstore"
)

// User is a person tasks can be assigned to.
type User struct {
	ID          string    `json:"id" yaml:"id"`
	DisplayName string    `json:"display_name" yaml:"display_name"`
	Email       string    `json:"email,omitempty" yaml:"email,omitempty"`
	VoiceSample string    `json:"voice_sample,omitempty" yaml:"voice_sample,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

func nameKey(displayName string) string {
	return strings.ToLower(strings.Join(strings.Fields(displayName), " "))
}

// RegisterVoiceProfile upserts the user named displayName (matched
// case-insensitively) and records its voice sample path.
func (s *Store) RegisterVoiceProfile(ctx context.Context, displayName, samplePath string) (User, error) {
	name := strings.Join(strings.Fields(displayName), " ")
	if name == "" {
		return User{}, services.Wrap(services.ErrValidation, "meetings", "register voice", "display name is required", nil)
	}
	now := s.timestamp()
	var (
		user    User
		sample  sql.NullString
		created string
	)
	err := s.db.QueryRowContext(ctx, `
INSERT INTO users (id, display_name, name_key, voice_sample, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(name_key) DO UPDATE SET
    display_name = excluded.display_name,
    voice_sample = COALESCE(excluded.voice_sample, users.voice_sample),
    updated_at = excluded.updated_at
RETURNING id, display_name, voice_sample, created_at`,
		s.newID(), name, nameKey(name), sqlstore.NullableString(samplePath), now, now,
	).Scan(&user.ID, &user.DisplayName, &sample, &created)
	if err != nil {
		return User{}, fmt.Errorf("register voice profile: %w", err)
	}
	user.VoiceSample = sample.String
	user.CreatedAt = sqlstore.ParseTime(created)
	return user, nil
}

// ListUsers returns users ordered by display name.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, display_name, COALESCE(email, ''), COALESCE(voice_sample, ''), created_at FROM users ORDER BY name_key`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		var (
			user    User
			created string
		)
		if err := rows.Scan(&user.ID, &user.DisplayName, &user.Email, &user.VoiceSample, &created); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		user.CreatedAt = sqlstore.ParseTime(created)
		out = append(out, user)
	}
	return out, rows.Err()
}
