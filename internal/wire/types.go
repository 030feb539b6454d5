// Package wire implements the newline-delimited JSON protocol exchanged
// between the engine and bot child processes over their standard I/O.
package wire

// MessageType enumerates the kinds of messages that can appear on the wire.
// Values match the string tags used by the bot-side client library, so they
// must not be renamed without a corresponding change on the bot side.
type MessageType string

const (
	HeartbeatRequest  MessageType = "heartbeat_request"
	HeartbeatResponse MessageType = "heartbeat_response"
	BotLog            MessageType = "bot_log"
	StateSync         MessageType = "state_sync"
	MemoryDownload    MessageType = "memory_download"
	MemoryUpload      MessageType = "memory_upload"
	Command           MessageType = "command"
	CommandResult     MessageType = "command_result"
)

// Valid reports whether t is one of the known wire message types.
func (t MessageType) Valid() bool {
	switch t {
	case HeartbeatRequest, HeartbeatResponse, BotLog, StateSync, MemoryDownload, MemoryUpload, Command, CommandResult:
		return true
	default:
		return false
	}
}
