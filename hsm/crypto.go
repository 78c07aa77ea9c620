package hsm

import (
	"crypto/ed25519"
	"crypto/rand"

	bls "github.com/herumi/bls-eth-go-binary/bls"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/anya-org/anya-core/pkg/apperr"
)

var blsInit = false

func ensureBLS() error {
	if blsInit {
		return nil
	}
	if err := bls.Init(bls.BLS12_381); err != nil {
		return apperr.Wrap(apperr.Security, apperr.CodeHardwareError, err, "bls init")
	}
	bls.SetETHmode(bls.EthModeDraft07)
	blsInit = true
	return nil
}

// generateEd25519 returns a fresh ed25519 keypair.
func generateEd25519() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.Security, apperr.CodeHardwareError, err, "generate ed25519 key")
	}
	return pub, priv, nil
}

func signEd25519(priv ed25519.PrivateKey, digest []byte) []byte {
	return ed25519.Sign(priv, digest)
}

func verifyEd25519(pub ed25519.PublicKey, digest, sig []byte) bool {
	return ed25519.Verify(pub, digest, sig)
}

// generateBLS returns a fresh BLS12-381 keypair.
func generateBLS() (bls.PublicKey, bls.SecretKey, error) {
	if err := ensureBLS(); err != nil {
		return bls.PublicKey{}, bls.SecretKey{}, err
	}
	var sk bls.SecretKey
	sk.SetByCSPRNG()
	return *sk.GetPublicKey(), sk, nil
}

func signBLS(sk bls.SecretKey, digest []byte) []byte {
	sig := sk.SignHash(digest)
	return sig.Serialize()
}

func verifyBLS(pub bls.PublicKey, digest, sigBytes []byte) bool {
	var sig bls.Sign
	if err := sig.Deserialize(sigBytes); err != nil {
		return false
	}
	return sig.VerifyHash(&pub, digest)
}

// aggregateBLS combines member BLS signatures into one aggregate signature.
// No provider or adapter VerifyProof in this repository calls it.
func aggregateBLS(sigs [][]byte) ([]byte, error) {
	agg := bls.Sign{}
	for i, raw := range sigs {
		var s bls.Sign
		if err := s.Deserialize(raw); err != nil {
			return nil, apperr.New(apperr.Validation, apperr.CodeMalformedProof, "malformed bls signature share")
		}
		if i == 0 {
			agg = s
			continue
		}
		agg.Add(&s)
	}
	return agg.Serialize(), nil
}

// encryptXChaCha20Poly1305 seals plaintext under key (32 bytes), prefixing
// the random nonce to the ciphertext.
func encryptXChaCha20Poly1305(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, apperr.Wrap(apperr.Security, apperr.CodeHardwareError, err, "init aead")
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, apperr.Wrap(apperr.Security, apperr.CodeHardwareError, err, "generate nonce")
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptXChaCha20Poly1305(key, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, apperr.Wrap(apperr.Security, apperr.CodeHardwareError, err, "init aead")
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, apperr.New(apperr.Validation, apperr.CodeInvalidParams, "ciphertext too short")
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.Security, apperr.CodeAuthFailed, err, "decrypt")
	}
	return plain, nil
}
