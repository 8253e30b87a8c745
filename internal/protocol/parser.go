package protocol

import (
	"fmt"

	pk "github.com/Tnze/go-mc/net/packet"
)

// EncryptionRequest is the payload of the clientbound 0x01 login packet.
type EncryptionRequest struct {
	ServerID    string
	PublicKey   []byte // DER encoded PKIX
	VerifyToken []byte
}

// ParseEncryptionRequest decodes an encryption request.
// Format: [server_id:string][public_key:bytearray][verify_token:bytearray]
func ParseEncryptionRequest(p pk.Packet) (*EncryptionRequest, error) {
	var (
		serverID pk.String
		pubKey   pk.ByteArray
		token    pk.ByteArray
	)
	if err := p.Scan(&serverID, &pubKey, &token); err != nil {
		return nil, fmt.Errorf("failed to parse encryption request: %w", err)
	}
	return &EncryptionRequest{
		ServerID:    string(serverID),
		PublicKey:   pubKey,
		VerifyToken: token,
	}, nil
}

// ParseDisconnect decodes the reason carried by a login or play disconnect.
// The reason is a JSON chat component in string form.
func ParseDisconnect(p pk.Packet) (string, error) {
	var reason pk.String
	if err := p.Scan(&reason); err != nil {
		return "", fmt.Errorf("failed to parse disconnect: %w", err)
	}
	return string(reason), nil
}

// ParseSetCompression decodes the compression threshold.
func ParseSetCompression(p pk.Packet) (int, error) {
	var threshold pk.VarInt
	if err := p.Scan(&threshold); err != nil {
		return 0, fmt.Errorf("failed to parse set compression: %w", err)
	}
	return int(threshold), nil
}

// ParseKeepAlive decodes the keep alive id sent by the server.
func ParseKeepAlive(p pk.Packet) (int32, error) {
	var id pk.VarInt
	if err := p.Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to parse keep alive: %w", err)
	}
	return int32(id), nil
}
