package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/sparkpilot/sparkpilot/internal/domain"
	infraerrors "github.com/sparkpilot/sparkpilot/internal/pkg/errors"
)

const maxIdempotencyKeyLen = 255

var (
	ErrIdempotencyKeyRequired = infraerrors.BadRequest("IDEMPOTENCY_KEY_REQUIRED", "Idempotency-Key header is required.")
	ErrIdempotencyKeyTooLong  = infraerrors.BadRequest("IDEMPOTENCY_KEY_TOO_LONG", "Idempotency-Key must be at most 255 bytes.")
	ErrIdempotencyKeyConflict = infraerrors.Conflict("IDEMPOTENCY_KEY_CONFLICT", "Idempotency-Key already used with a different request body.")
)

type IdempotencyRepository interface {
	GetByScopeAndKey(ctx context.Context, scope, key string) (*domain.IdempotencyRecord, error)
	Insert(ctx context.Context, record *domain.IdempotencyRecord) error
}

// CommandOutcome is what a wrapped command produces on first execution.
type CommandOutcome struct {
	StatusCode   int
	Body         any
	ResourceType string
	ResourceID   string
}

// IdempotentResult is the response to serve, replayed or fresh.
type IdempotentResult struct {
	StatusCode int
	Body       []byte
	Replayed   bool
}

// IdempotencyCoordinator dedupes write requests by (scope, key). A repeated
// key with a matching payload fingerprint replays the stored response; a
// mismatched fingerprint is a conflict. The record is persisted in the same
// transaction as the command's effects.
type IdempotencyCoordinator struct {
	repo IdempotencyRepository
	tx   TxRunner
}

func NewIdempotencyCoordinator(repo IdempotencyRepository, tx TxRunner) *IdempotencyCoordinator {
	return &IdempotencyCoordinator{repo: repo, tx: tx}
}

// NormalizeIdempotencyKey trims the raw header value and enforces presence
// and the 255-byte cap.
func NormalizeIdempotencyKey(raw string) (string, error) {
	key := strings.TrimSpace(raw)
	if key == "" {
		return "", ErrIdempotencyKeyRequired
	}
	if len(key) > maxIdempotencyKeyLen {
		return "", ErrIdempotencyKeyTooLong
	}
	return key, nil
}

// Fingerprint hashes a canonical JSON encoding of the payload: round-tripped
// through an untyped value so map keys marshal sorted, compact separators,
// UTF-8.
func Fingerprint(payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", infraerrors.BadRequest("IDEMPOTENCY_PAYLOAD_INVALID", "failed to normalize request payload").WithCause(err)
	}
	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return "", infraerrors.BadRequest("IDEMPOTENCY_PAYLOAD_INVALID", "failed to normalize request payload").WithCause(err)
	}
	canonical, err := json.Marshal(normalized)
	if err != nil {
		return "", infraerrors.BadRequest("IDEMPOTENCY_PAYLOAD_INVALID", "failed to normalize request payload").WithCause(err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Execute wraps a command: replay on a seen (scope, key) with a matching
// fingerprint, conflict on mismatch, otherwise run the command once and store
// its response atomically with the command's writes.
func (c *IdempotencyCoordinator) Execute(
	ctx context.Context,
	scope, rawKey string,
	payload any,
	execute func(ctx context.Context) (*CommandOutcome, error),
) (*IdempotentResult, error) {
	key, err := NormalizeIdempotencyKey(rawKey)
	if err != nil {
		return nil, err
	}
	fingerprint, err := Fingerprint(payload)
	if err != nil {
		return nil, err
	}

	existing, err := c.repo.GetByScopeAndKey(ctx, scope, key)
	if err != nil {
		return nil, infraerrors.FromError(err)
	}
	if existing != nil {
		if existing.Fingerprint != fingerprint {
			return nil, ErrIdempotencyKeyConflict
		}
		return &IdempotentResult{
			StatusCode: existing.StatusCode,
			Body:       []byte(existing.ResponseJSON),
			Replayed:   true,
		}, nil
	}

	var result *IdempotentResult
	err = c.tx.WithinTx(ctx, func(txCtx context.Context) error {
		outcome, execErr := execute(txCtx)
		if execErr != nil {
			return execErr
		}
		body, marshalErr := json.Marshal(outcome.Body)
		if marshalErr != nil {
			return infraerrors.InternalServer("IDEMPOTENCY_RESPONSE_MARSHAL", "failed to encode response").WithCause(marshalErr)
		}
		record := &domain.IdempotencyRecord{
			ID:           uuid.NewString(),
			Scope:        scope,
			Key:          key,
			Fingerprint:  fingerprint,
			ResponseJSON: string(body),
			StatusCode:   outcome.StatusCode,
			ResourceType: outcome.ResourceType,
			ResourceID:   outcome.ResourceID,
		}
		if insertErr := c.repo.Insert(txCtx, record); insertErr != nil {
			return infraerrors.FromError(insertErr)
		}
		result = &IdempotentResult{StatusCode: outcome.StatusCode, Body: body}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
