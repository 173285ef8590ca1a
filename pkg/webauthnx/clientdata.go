package webauthnx

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-webauthn/webauthn/protocol"
)

// ClientData is the decoded clientDataJSON of a proof.
type ClientData struct {
	Type      protocol.CeremonyType
	Challenge []byte
	Origin    string
}

// ParseClientData decodes clientDataJSON. Callers use the returned
// challenge to find the stored ceremony before anything is verified.
func ParseClientData(raw []byte) (ClientData, error) {
	if len(raw) == 0 {
		return ClientData{}, fmt.Errorf("%w: empty client data", ErrMalformedProof)
	}

	var collected protocol.CollectedClientData
	if err := json.Unmarshal(raw, &collected); err != nil {
		return ClientData{}, fmt.Errorf("%w: client data: %v", ErrMalformedProof, err)
	}

	// Clients should omit padding but some add it anyway.
	challenge, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(collected.Challenge, "="))
	if err != nil || len(challenge) == 0 {
		return ClientData{}, fmt.Errorf("%w: client data challenge", ErrMalformedProof)
	}

	return ClientData{
		Type:      collected.Type,
		Challenge: challenge,
		Origin:    collected.Origin,
	}, nil
}
