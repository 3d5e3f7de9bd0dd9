// Package signature converts raw signer output into the canonical encoding a
// target chain expects.
package signature

// Rule selects a chain's canonical signature encoding.
type Rule int

const (
	// RuleNone leaves the signature untouched (ed25519).
	RuleNone Rule = iota
	// RuleEVM maps the trailing recovery byte into {27, 28}.
	RuleEVM
	// RuleCosmos drops the recovery byte, leaving the compact 64-byte r||s.
	RuleCosmos
)

func (r Rule) String() string {
	switch r {
	case RuleEVM:
		return "evm"
	case RuleCosmos:
		return "cosmos"
	default:
		return "none"
	}
}

// Result pairs the signer's output with its chain-canonical form.
type Result struct {
	Raw        []byte
	Normalized []byte
}

// Normalize applies rule to raw and returns a new slice; raw is never modified.
// It is total: inputs too short for the rule are returned as a copy.
func Normalize(raw []byte, rule Rule) []byte {
	out := make([]byte, len(raw))
	copy(out, raw)

	switch rule {
	case RuleEVM:
		if len(out) == 0 {
			return out
		}
		out[len(out)-1] = evmRecoveryByte(out[len(out)-1])
	case RuleCosmos:
		if len(out) > 64 {
			out = out[:64]
		}
	}
	return out
}

// New runs Normalize and keeps both forms.
func New(raw []byte, rule Rule) Result {
	r := make([]byte, len(raw))
	copy(r, raw)
	return Result{Raw: r, Normalized: Normalize(raw, rule)}
}

// evmRecoveryByte folds any recovery encoding into 27 + parity. Values below
// 27 are the bare parity (0/1) and get 27 added; larger values, including
// EIP-155 style v, keep only their parity relative to 27.
func evmRecoveryByte(v byte) byte {
	if v < 27 {
		return 27 + v%2
	}
	return 27 + (v-27)%2
}
