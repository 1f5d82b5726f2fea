package domain

// ConnectionState is the lifecycle state of a streaming channel.
type ConnectionState string

const (
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
	ConnectionError        ConnectionState = "error"
	ConnectionClosed       ConnectionState = "closed"
)

// IsActive reports whether the channel holds or is acquiring a transport.
func (s ConnectionState) IsActive() bool {
	return s == ConnectionConnecting || s == ConnectionConnected
}
