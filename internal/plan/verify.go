package plan

import (
	"encoding/json"
	"fmt"
)

// Verification error codes.
const (
	// ErrHashMismatch is reported when a recorded digest disagrees with the
	// digest recomputed from the plan contents.
	ErrHashMismatch = "HASH_MISMATCH"

	// ErrMissingHash is reported when a digest required for verification is
	// absent from the plan or the attestation.
	ErrMissingHash = "MISSING_HASH"
)

// VerifyError describes a failed plan verification.
type VerifyError struct {
	Code string
	msg  string
}

func (e *VerifyError) Error() string { return e.msg }

func verifyErr(code, format string, args ...any) *VerifyError {
	return &VerifyError{Code: code, msg: fmt.Sprintf(format, args...)}
}

// Attestation is the digest record an executed run leaves behind, matched
// against a plan file during verification.
type Attestation struct {
	PlanHash   string `json:"planHash"`
	PolicyHash string `json:"policyHash,omitempty"`
}

// ParseAttestation decodes an attestation from an artifact JSON document. The
// digest fields are read from the top level; unrelated fields are ignored.
func ParseAttestation(data []byte) (*Attestation, error) {
	var a Attestation
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse attestation: %w", err)
	}
	return &a, nil
}

// Verify recomputes the plan's canonical digest and checks it against both
// the plan's own meta.planHash and the attestation's planHash. When both
// sides carry a policy digest, those must agree as well. A nil error means
// the attestation genuinely describes this plan.
func Verify(p *Plan, att *Attestation) error {
	computed, err := Hash(p)
	if err != nil {
		return err
	}

	if p.Meta == nil || p.Meta.PlanHash == "" {
		return verifyErr(ErrMissingHash, "plan is missing meta.planHash")
	}
	if p.Meta.PlanHash != computed {
		return verifyErr(ErrHashMismatch, "plan meta.planHash %s does not match computed %s", p.Meta.PlanHash, computed)
	}

	if att.PlanHash == "" {
		return verifyErr(ErrMissingHash, "artifact is missing planHash")
	}
	if att.PlanHash != computed {
		return verifyErr(ErrHashMismatch, "artifact planHash %s does not match computed %s", att.PlanHash, computed)
	}

	if p.Meta.PolicyHash != "" && att.PolicyHash != "" && p.Meta.PolicyHash != att.PolicyHash {
		return verifyErr(ErrHashMismatch, "policy hash mismatch: plan %s, artifact %s", p.Meta.PolicyHash, att.PolicyHash)
	}

	return nil
}
