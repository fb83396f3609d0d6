package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
)

// AdmissionGate verifies identity on connect and decides whether a physical
// connection may enter the registry. It never auto-joins a room; joining is
// a separate, explicit client action.
type AdmissionGate struct {
	Verifier   core.CredentialVerifier
	Moderation core.Moderation
	Profiles   core.ProfileStore
	Registry   *Registry
}

// Admit verifies the credential, rejects identity spoofing, consults
// moderation, and on success registers the connection with no room. The
// returned profile is what the transport echoes back in the admitted event.
func (g *AdmissionGate) Admit(ctx context.Context, cid core.ConnID, token string, claimed domain.UserID, fingerprint string) (*domain.User, error) {
	if token == "" {
		return nil, &core.AdmissionError{Reason: "missing credential"}
	}
	identity, err := g.Verifier.VerifyCredential(ctx, token)
	if err != nil {
		log.Warn().Str("module", "app.admission").Str("conn", string(cid)).Err(err).Msg("credential rejected")
		return nil, &core.AdmissionError{Reason: "invalid credential"}
	}
	// A caller-supplied identity claim must agree with the verified one.
	if claimed != "" && claimed != identity.UserID {
		log.Warn().Str("module", "app.admission").Str("claimed", string(claimed)).Str("verified", string(identity.UserID)).Msg("identity mismatch")
		return nil, &core.AdmissionError{Reason: "identity mismatch"}
	}

	status, err := g.Moderation.Status(ctx, identity.UserID)
	if err != nil {
		// Moderation unreachable: fail closed on admission.
		return nil, &core.AdmissionError{Reason: "moderation check failed"}
	}
	if status.Blocked {
		return nil, &core.BlockedError{Reason: status.Reason}
	}
	if status.Banned {
		return nil, &core.BlockedError{Reason: status.Reason, Until: status.Until}
	}

	profile, err := g.Profiles.GetUserProfile(ctx, identity.UserID)
	if err != nil || profile == nil {
		// Registry creates a placeholder and repairs it on next read.
		log.Warn().Str("module", "app.admission").Str("user", string(identity.UserID)).Err(err).Msg("profile fetch failed, using placeholder")
		profile = nil
	}
	g.Registry.Register(identity.UserID, cid, profile)

	if fingerprint != "" {
		// Best-effort, never blocks admission.
		go func() {
			if err := g.Profiles.PersistFingerprint(context.Background(), identity.UserID, fingerprint); err != nil {
				log.Debug().Str("module", "app.admission").Err(err).Msg("fingerprint persist failed")
			}
		}()
	}

	snap, ok := g.Registry.Snapshot(identity.UserID)
	if !ok {
		return nil, errors.New("registry entry vanished during admission")
	}
	log.Info().Str("module", "app.admission").Str("user", string(identity.UserID)).Str("conn", string(cid)).Msg("admitted")
	return snap.User, nil
}
