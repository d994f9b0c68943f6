package oracle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"
)

var (
	ErrSignerNotAllowed = errors.New("signer not allowed")
	ErrBadSignature     = errors.New("bad signature")
	ErrStaleNonce       = errors.New("stale nonce")
	ErrExpired          = errors.New("recommendation expired")
	ErrFeeTooHigh       = errors.New("fee exceeds cap")
)

// MaxFeeBps caps oracle-recommended fees at 10%.
const MaxFeeBps = 1000

// Recommendation is a signed fee recommendation for one pool. The signature
// covers the keccak256 digest of (pool, feeBps, nonce, deadline).
type Recommendation struct {
	Pool     common.Address `json:"pool"`
	FeeBps   uint32         `json:"fee_bps"`
	Nonce    uint64         `json:"nonce"`
	Deadline time.Time      `json:"deadline"`
	Sig      []byte         `json:"sig"`
}

// Digest returns the 32-byte message the signer commits to.
func (r Recommendation) Digest() common.Hash {
	buf := make([]byte, 0, common.AddressLength+4+8+8)
	buf = append(buf, r.Pool.Bytes()...)
	buf = binary.BigEndian.AppendUint32(buf, r.FeeBps)
	buf = binary.BigEndian.AppendUint64(buf, r.Nonce)
	buf = binary.BigEndian.AppendUint64(buf, uint64(r.Deadline.Unix()))
	return crypto.Keccak256Hash(buf)
}

// Verifier checks recommendations against an allow-list of signers and a
// strictly increasing per-signer nonce, so a captured recommendation cannot
// be replayed after a newer one lands.
type Verifier struct {
	mu      sync.Mutex
	signers map[common.Address]bool
	nonces  map[common.Address]uint64

	now func() time.Time
}

// NewVerifier creates a verifier trusting the given signers.
func NewVerifier(signers ...common.Address) *Verifier {
	v := &Verifier{
		signers: make(map[common.Address]bool, len(signers)),
		nonces:  make(map[common.Address]uint64),
		now:     time.Now,
	}
	for _, s := range signers {
		v.signers[s] = true
	}
	return v
}

// AllowSigner adds a signer to the allow-list.
func (v *Verifier) AllowSigner(signer common.Address) {
	v.mu.Lock()
	v.signers[signer] = true
	v.mu.Unlock()

	log.Info().Str("signer", signer.Hex()).Msg("oracle signer allowed")
}

// RevokeSigner removes a signer. Its nonce watermark is kept so re-adding
// the signer does not reopen replay of old recommendations.
func (v *Verifier) RevokeSigner(signer common.Address) {
	v.mu.Lock()
	delete(v.signers, signer)
	v.mu.Unlock()

	log.Info().Str("signer", signer.Hex()).Msg("oracle signer revoked")
}

// SignerAllowed reports whether a signer is on the allow-list.
func (v *Verifier) SignerAllowed(signer common.Address) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.signers[signer]
}

// Verify validates a recommendation and, on success, advances the signer's
// nonce watermark. It returns the recovered signer.
func (v *Verifier) Verify(rec Recommendation) (common.Address, error) {
	if rec.FeeBps > MaxFeeBps {
		return common.Address{}, fmt.Errorf("%w: %d > %d", ErrFeeTooHigh, rec.FeeBps, MaxFeeBps)
	}

	signer, err := recoverSigner(rec)
	if err != nil {
		return common.Address{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.signers[signer] {
		return common.Address{}, fmt.Errorf("%w: %s", ErrSignerNotAllowed, signer.Hex())
	}
	if !v.now().Before(rec.Deadline) {
		return common.Address{}, fmt.Errorf("%w: deadline=%s", ErrExpired, rec.Deadline.Format(time.RFC3339))
	}
	if rec.Nonce <= v.nonces[signer] {
		return common.Address{}, fmt.Errorf("%w: nonce=%d watermark=%d", ErrStaleNonce, rec.Nonce, v.nonces[signer])
	}
	v.nonces[signer] = rec.Nonce

	return signer, nil
}

// Nonce returns the signer's current nonce watermark.
func (v *Verifier) Nonce(signer common.Address) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.nonces[signer]
}

func recoverSigner(rec Recommendation) (common.Address, error) {
	if len(rec.Sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: signature length %d", ErrBadSignature, len(rec.Sig))
	}

	sig := make([]byte, crypto.SignatureLength)
	copy(sig, rec.Sig)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(rec.Digest().Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
