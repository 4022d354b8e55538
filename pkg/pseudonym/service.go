package pseudonym

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/diagnoml/platform/pkg/common/logger"
	"github.com/diagnoml/platform/pkg/common/models"
)

// CollisionError reports two distinct identities mapping to the same PID.
// This halts ingestion for the affected record pending manual review: it
// indicates either a broken salt scheme or a duplicate-identity data entry,
// and the audit vault lets an operator tell the two apart.
type CollisionError struct {
	PID string
}

func (e CollisionError) Error() string {
	return fmt.Sprintf("pseudonym collision on %s: distinct identity already mapped", e.PID)
}

func IsCollisionError(err error) bool {
	var ce CollisionError
	return errors.As(err, &ce)
}

var ErrEmptyIdentity = errors.New("identity has no usable fields")

// Service derives stable pseudonymous identifiers. The mapping is
// deterministic within one study and one-directional: the PID is an HMAC
// of the canonical identity under the study salt, and the salt never
// leaves the intake boundary.
type Service struct {
	salt  []byte
	vault AuditStore
}

func NewService(salt string, vault AuditStore) *Service {
	return &Service{salt: []byte(salt), vault: vault}
}

// Pseudonymize returns the PID for an identity, creating the audit mapping
// on first sight. Repeated calls for the same identity return the same PID.
func (s *Service) Pseudonymize(ctx context.Context, identity models.Identity) (string, error) {
	canonical := canonicalize(identity)
	if canonical == "||" {
		return "", ErrEmptyIdentity
	}

	pid := s.derivePID(canonical)
	fingerprint := fingerprint(canonical)

	existing, err := s.vault.GetByPID(ctx, pid)
	if err != nil && !errors.Is(err, ErrMappingNotFound) {
		return "", err
	}
	if err == nil {
		if existing.IdentityFingerprint != fingerprint {
			logger.Log.WithField("pid", pid).Error("pseudonym collision detected")
			return "", CollisionError{PID: pid}
		}
		return pid, nil
	}

	if err := s.vault.Save(ctx, Mapping{PID: pid, IdentityFingerprint: fingerprint}); err != nil {
		return "", fmt.Errorf("persisting audit mapping: %w", err)
	}
	return pid, nil
}

// derivePID keeps only the first 12 hex characters of the HMAC. The audit
// vault catches the (astronomically unlikely) truncation collisions.
func (s *Service) derivePID(canonical string) string {
	mac := hmac.New(sha256.New, s.salt)
	mac.Write([]byte(canonical))
	digest := hex.EncodeToString(mac.Sum(nil))
	return "PID-" + strings.ToUpper(digest[:12])
}

func canonicalize(identity models.Identity) string {
	normalize := func(v string) string {
		return strings.ToLower(strings.Join(strings.Fields(v), " "))
	}
	return normalize(identity.FirstName) + "|" + normalize(identity.LastName) + "|" + normalize(identity.DateOfBirth)
}

// fingerprint identifies an identity inside the vault without storing it.
// Unsalted on purpose: it must stay stable across salt rotation so that
// duplicate entries remain distinguishable from scheme breakage.
func fingerprint(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
