package cache

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	turboerrors "github.com/AlexRogalskiy/turborepo/internal/errors"
)

// Signer tags artifacts with an HMAC-SHA256 over the fingerprint, the team
// ID and the artifact bytes.
type Signer struct {
	key    []byte
	teamID string
}

// NewSigner creates a signer for a team.
func NewSigner(key, teamID string) *Signer {
	return &Signer{key: []byte(key), teamID: teamID}
}

func (s *Signer) mac(fp string, artifact []byte) []byte {
	m := hmac.New(sha256.New, s.key)
	m.Write([]byte(fp))
	m.Write([]byte(s.teamID))
	m.Write(artifact)
	return m.Sum(nil)
}

// Sign returns the base64 tag of an artifact.
func (s *Signer) Sign(fp string, artifact []byte) string {
	return base64.StdEncoding.EncodeToString(s.mac(fp, artifact))
}

// Verify checks tag against the artifact. Failures are cache integrity errors.
func (s *Signer) Verify(fp string, artifact []byte, tag string) error {
	if tag == "" {
		return turboerrors.CacheIntegrity(fp, "artifact has no signature tag")
	}
	got, err := base64.StdEncoding.DecodeString(tag)
	if err != nil {
		return turboerrors.CacheIntegrity(fp, "signature tag is not valid base64")
	}
	if !hmac.Equal(got, s.mac(fp, artifact)) {
		return turboerrors.CacheIntegrity(fp, "signature does not match artifact")
	}
	return nil
}
