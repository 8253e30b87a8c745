package protocol

import (
	pk "github.com/Tnze/go-mc/net/packet"
)

// BuildHandshake creates the handshake packet (0x00).
// Format: [version:varint][host:string][port:ushort][next_state:varint]
func BuildHandshake(version int32, host string, port uint16) pk.Packet {
	return pk.Marshal(
		PktHandshake,
		pk.VarInt(version),
		pk.String(host),
		pk.UnsignedShort(port),
		pk.VarInt(nextStateLogin),
	)
}

// BuildLoginStart creates the login start packet (0x00).
// Format: [name:string]
func BuildLoginStart(name string) pk.Packet {
	return pk.Marshal(PktLoginStart, pk.String(name))
}

// BuildEncryptionResponse creates the encryption response packet (0x01).
// Both fields are RSA encrypted with the server's public key.
// Format: [shared_secret:bytearray][verify_token:bytearray]
func BuildEncryptionResponse(encryptedSecret, encryptedToken []byte) pk.Packet {
	return pk.Marshal(
		PktEncryptionResponse,
		pk.ByteArray(encryptedSecret),
		pk.ByteArray(encryptedToken),
	)
}

// BuildKeepAlive creates the serverbound keep alive packet (0x00) echoing id.
func BuildKeepAlive(id int32) pk.Packet {
	return pk.Marshal(PktKeepAliveServer, pk.VarInt(id))
}
