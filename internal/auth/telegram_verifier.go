package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const defaultMaxAuthAge = 24 * time.Hour

var (
	ErrMissingBotToken     = errors.New("telegram verifier: bot token required")
	ErrMissingLoginHash    = errors.New("telegram verifier: login hash required")
	ErrInvalidLoginHash    = errors.New("telegram verifier: login hash mismatch")
	ErrExpiredLoginPayload = errors.New("telegram verifier: login payload expired")
	ErrMissingLoginSubject = errors.New("telegram verifier: user id required")
)

// TelegramLoginPayload mirrors the fields delivered by the Telegram login widget.
type TelegramLoginPayload struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	PhotoURL  string `json:"photo_url"`
	AuthDate  int64  `json:"auth_date"`
	Hash      string `json:"hash"`
}

// TelegramClaims is the verified identity extracted from a login payload.
type TelegramClaims struct {
	Subject     string
	Username    string
	DisplayName string
	AvatarURL   string
}

// TelegramVerifierConfig configures Telegram login verification.
type TelegramVerifierConfig struct {
	BotToken   string
	MaxAuthAge time.Duration
	Clock      func() time.Time
}

// TelegramVerifier checks the HMAC signature Telegram attaches to login
// widget payloads. The key is SHA256 of the bot token; the message is the
// sorted key=value lines of every present field except the hash itself.
type TelegramVerifier struct {
	secretKey  []byte
	maxAuthAge time.Duration
	clock      func() time.Time
}

// NewTelegramVerifier constructs a verifier for the given bot token.
func NewTelegramVerifier(cfg TelegramVerifierConfig) (*TelegramVerifier, error) {
	token := strings.TrimSpace(cfg.BotToken)
	if token == "" {
		return nil, ErrMissingBotToken
	}
	maxAge := cfg.MaxAuthAge
	if maxAge <= 0 {
		maxAge = defaultMaxAuthAge
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	key := sha256.Sum256([]byte(token))
	return &TelegramVerifier{
		secretKey:  key[:],
		maxAuthAge: maxAge,
		clock:      clock,
	}, nil
}

// Verify validates the payload signature and freshness and returns the claims.
func (v *TelegramVerifier) Verify(payload TelegramLoginPayload) (TelegramClaims, error) {
	if strings.TrimSpace(payload.Hash) == "" {
		return TelegramClaims{}, ErrMissingLoginHash
	}
	if payload.ID == 0 {
		return TelegramClaims{}, ErrMissingLoginSubject
	}

	expected := v.signature(payload)
	provided := strings.ToLower(strings.TrimSpace(payload.Hash))
	if subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) != 1 {
		return TelegramClaims{}, ErrInvalidLoginHash
	}

	authTime := time.Unix(payload.AuthDate, 0)
	if v.clock().Sub(authTime) > v.maxAuthAge {
		return TelegramClaims{}, ErrExpiredLoginPayload
	}

	return TelegramClaims{
		Subject:     strconv.FormatInt(payload.ID, 10),
		Username:    strings.TrimSpace(payload.Username),
		DisplayName: displayName(payload),
		AvatarURL:   strings.TrimSpace(payload.PhotoURL),
	}, nil
}

func (v *TelegramVerifier) signature(payload TelegramLoginPayload) string {
	fields := map[string]string{
		"id":        strconv.FormatInt(payload.ID, 10),
		"auth_date": strconv.FormatInt(payload.AuthDate, 10),
	}
	if payload.FirstName != "" {
		fields["first_name"] = payload.FirstName
	}
	if payload.LastName != "" {
		fields["last_name"] = payload.LastName
	}
	if payload.Username != "" {
		fields["username"] = payload.Username
	}
	if payload.PhotoURL != "" {
		fields["photo_url"] = payload.PhotoURL
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("%s=%s", key, fields[key]))
	}

	mac := hmac.New(sha256.New, v.secretKey)
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}

func displayName(payload TelegramLoginPayload) string {
	name := strings.TrimSpace(strings.TrimSpace(payload.FirstName) + " " + strings.TrimSpace(payload.LastName))
	if name != "" {
		return name
	}
	if payload.Username != "" {
		return payload.Username
	}
	return strconv.FormatInt(payload.ID, 10)
}
