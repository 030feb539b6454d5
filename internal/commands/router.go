// Package commands implements the tag-dispatched command router bots use to
// request game actions (move, split, merge) over the wire protocol, mirroring
// Router in the original Python engine's codeborn_engine.commands package.
package commands

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakubTesarek/codeborn/internal/agent"
	"github.com/JakubTesarek/codeborn/internal/wire"
)

// Handler processes one command message and returns the response payload to
// send back, or nil to send nothing. Returning an error is equivalent to
// returning an error_response built from err.Error().
type Handler func(ctx context.Context, ag agent.BotAgent, msg wire.Message) (map[string]any, error)

// ErrorResponse builds the standard {"status":"error","reason":...} payload.
func ErrorResponse(reason string) map[string]any {
	return map[string]any{
		"status": "error",
		"reason": reason,
	}
}

// SuccessResponse builds the standard {"status":"success", ...} payload,
// merging in extra fields such as the dumped army or location.
func SuccessResponse(extra map[string]any) map[string]any {
	resp := map[string]any{"status": "success"}
	for k, v := range extra {
		resp[k] = v
	}
	return resp
}

// Router matches an incoming command message's payload["command"] field
// against registered handlers, falling through to child routers if no route
// matches locally.
type Router struct {
	logger   *zap.Logger
	routes   map[string]Handler
	children []*Router
}

// NewRouter creates an empty Router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		logger: logger.Named("command_router"),
		routes: make(map[string]Handler),
	}
}

// Route registers a handler for the given command name.
func (r *Router) Route(command string, h Handler) {
	r.routes[command] = h
}

// AddRouter attaches a child router consulted when no local route matches.
func (r *Router) AddRouter(child *Router) {
	r.children = append(r.children, child)
}

// Match dispatches msg (expected to be a Command message) to the handler
// registered for its payload's "command" field. Returns true if some
// handler — local or in a child router — claimed the command.
func (r *Router) Match(ctx context.Context, ag agent.BotAgent, msg wire.Message) bool {
	command, _ := msg.Payload["command"].(string)

	if h, ok := r.routes[command]; ok {
		resp, err := h(ctx, ag, msg)
		if err != nil {
			resp = ErrorResponse(err.Error())
		}
		if resp != nil {
			r.respond(ag, msg, resp)
		}
		return true
	}

	for _, child := range r.children {
		if child.Match(ctx, ag, msg) {
			return true
		}
	}
	return false
}

// respond wraps payload in a command_result message correlated to msg via
// response_to, and sends it back to the originating agent.
func (r *Router) respond(ag agent.BotAgent, msg wire.Message, payload map[string]any) {
	response := wire.New(ag.Bot().GID, wire.CommandResult, payload)
	responseTo := msg.GID
	response.ResponseTo = &responseTo

	if err := ag.SendMessage(response); err != nil {
		r.logger.Warn("failed to send command response", zap.Error(err))
	}
}

// errInvalidPayload is returned by the field-specific parse helpers in
// army.go.
func errInvalidPayload(field string) error {
	return fmt.Errorf("invalid or missing %q in command payload", field)
}
