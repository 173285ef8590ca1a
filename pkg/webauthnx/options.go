package webauthnx

import (
	"time"

	"github.com/go-webauthn/webauthn/protocol"
)

// User describes the account a credential is being created for.
type User struct {
	Handle      []byte // opaque, stable user handle
	Name        string
	DisplayName string
}

// CreationOptions builds the navigator.credentials.create payload.
func CreationOptions(rpID, rpName string, user User, challenge []byte, exclude [][]byte, timeout time.Duration, requireUV, direct bool) protocol.PublicKeyCredentialCreationOptions {
	params := make([]protocol.CredentialParameter, 0, len(SupportedAlgorithms))
	for _, alg := range SupportedAlgorithms {
		params = append(params, protocol.CredentialParameter{
			Type:      protocol.PublicKeyCredentialType,
			Algorithm: alg,
		})
	}

	attestation := protocol.PreferNoAttestation
	if direct {
		attestation = protocol.PreferDirectAttestation
	}

	return protocol.PublicKeyCredentialCreationOptions{
		RelyingParty: protocol.RelyingPartyEntity{
			CredentialEntity: protocol.CredentialEntity{Name: rpName},
			ID:               rpID,
		},
		User: protocol.UserEntity{
			CredentialEntity: protocol.CredentialEntity{Name: user.Name},
			DisplayName:      user.DisplayName,
			ID:               protocol.URLEncodedBase64(user.Handle),
		},
		Challenge:             challenge,
		Parameters:            params,
		Timeout:               int(timeout.Milliseconds()),
		CredentialExcludeList: descriptors(exclude, nil),
		AuthenticatorSelection: protocol.AuthenticatorSelection{
			ResidentKey:      protocol.ResidentKeyRequirementPreferred,
			UserVerification: verification(requireUV),
		},
		Attestation: attestation,
	}
}

// RequestOptions builds the navigator.credentials.get payload. An empty
// allow list asks the client for a discoverable credential.
func RequestOptions(rpID string, challenge []byte, allow [][]byte, transports [][]string, timeout time.Duration, requireUV bool) protocol.PublicKeyCredentialRequestOptions {
	return protocol.PublicKeyCredentialRequestOptions{
		Challenge:          challenge,
		Timeout:            int(timeout.Milliseconds()),
		RelyingPartyID:     rpID,
		AllowedCredentials: descriptors(allow, transports),
		UserVerification:   verification(requireUV),
	}
}

func descriptors(ids [][]byte, transports [][]string) []protocol.CredentialDescriptor {
	if len(ids) == 0 {
		return nil
	}
	out := make([]protocol.CredentialDescriptor, 0, len(ids))
	for i, id := range ids {
		d := protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: id,
		}
		if i < len(transports) {
			for _, t := range transports[i] {
				d.Transport = append(d.Transport, protocol.AuthenticatorTransport(t))
			}
		}
		out = append(out, d)
	}
	return out
}

func verification(required bool) protocol.UserVerificationRequirement {
	if required {
		return protocol.VerificationRequired
	}
	return protocol.VerificationPreferred
}
