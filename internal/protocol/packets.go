// Package protocol implements the client side of the Minecraft Java Edition
// login sequence (protocol 47, 1.8.x) far enough to learn whether a server
// admits an account: handshake, login start, encryption, compression and the
// play state up to Join Game. Framing, compression and the CFB8 stream cipher
// come from go-mc; the state machine lives here.
package protocol

// ProtocolVersion1_8 is the protocol number of Minecraft 1.8.x.
const ProtocolVersion1_8 int32 = 47

// Handshake next-state values.
const (
	nextStateStatus int32 = 1
	nextStateLogin  int32 = 2
)

// Serverbound packet IDs.
const (
	PktHandshake          int32 = 0x00 // handshaking state
	PktLoginStart         int32 = 0x00 // login state
	PktEncryptionResponse int32 = 0x01 // login state
	PktKeepAliveServer    int32 = 0x00 // play state
)

// Clientbound packet IDs, login state.
const (
	PktLoginDisconnect     int32 = 0x00
	PktEncryptionRequest   int32 = 0x01
	PktLoginSuccess        int32 = 0x02
	PktLoginSetCompression int32 = 0x03
)

// Clientbound packet IDs, play state.
const (
	PktKeepAliveClient    int32 = 0x00
	PktJoinGame           int32 = 0x01
	PktPlayDisconnect     int32 = 0x40
	PktPlaySetCompression int32 = 0x46
)

// SharedSecretSize is the length of the AES key negotiated during login.
const SharedSecretSize = 16

// connState is the protocol state of a login session.
type connState int

const (
	stateLogin connState = iota
	statePlay
)

func (s connState) String() string {
	switch s {
	case stateLogin:
		return "login"
	case statePlay:
		return "play"
	default:
		return "unknown"
	}
}
