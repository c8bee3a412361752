package canvas

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"genesis/internal/bus"
	"genesis/internal/models"
)

// ToolName is the agent tool whose calls arrive as native canvas events.
const ToolName = "canvas_update"

// Router turns decoded commands into surface-scoped bus events. Malformed
// commands are logged and dropped; they never fail a chat turn.
type Router struct {
	bus    bus.Bus
	log    *zap.Logger
	unsubs []bus.Unsubscribe
}

func NewRouter(b bus.Bus, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{bus: b, log: log.Named("canvas")}
}

func (r *Router) Attach() {
	r.unsubs = append(r.unsubs,
		r.bus.Listen(models.EventNativeCanvas, func(ev bus.Event) { r.HandleNative(ev.Payload) }),
		r.bus.Listen(models.EventCanvasSplit, func(ev bus.Event) { r.HandleSplit(ev.Payload) }),
		bus.On(r.bus, r.log, models.EventMessageFinalized, func(m models.Message) { r.HandleFinalized(m) }),
	)
}

func (r *Router) Detach() {
	for _, u := range r.unsubs {
		u()
	}
	r.unsubs = nil
}

// HandleNative dispatches every command in a native payload and returns how
// many were sent.
func (r *Router) HandleNative(raw json.RawMessage) int {
	cmds, err := DecodeNative(raw)
	if err != nil {
		r.log.Warn("dropping native canvas command", zap.ByteString("payload", raw), zap.Error(err))
	}
	return r.dispatchAll(cmds)
}

func (r *Router) HandleSplit(raw json.RawMessage) int {
	cmd, err := DecodeSplit(raw)
	if err != nil {
		r.log.Warn("dropping canvas split", zap.ByteString("payload", raw), zap.Error(err))
		return 0
	}
	return r.dispatchAll([]Command{cmd})
}

// HandleFinalized runs the text fallback over a closed assistant message.
// Messages whose commands already came through the tool are not re-parsed.
func (r *Router) HandleFinalized(msg models.Message) int {
	if msg.Role != models.RoleAssistant || msg.Streaming {
		return 0
	}
	for _, tc := range msg.ToolCalls {
		if tc.Name == ToolName {
			return 0
		}
	}
	cmds, err := ParseText(msg.DisplayContent)
	if err != nil {
		r.log.Warn("dropping canvas command from text", zap.String("message", msg.ID), zap.Error(err))
	}
	return r.dispatchAll(cmds)
}

// Dispatch emits cmd on its surface's event.
func (r *Router) Dispatch(cmd Command) error {
	if !cmd.Target.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTarget, cmd.Target)
	}
	r.log.Debug("dispatch", zap.Stringer("command", cmd))
	r.bus.Emit(CommandEvent(cmd.Target), cmd)
	return nil
}

func (r *Router) dispatchAll(cmds []Command) int {
	n := 0
	for _, cmd := range cmds {
		if err := r.Dispatch(cmd); err != nil {
			r.log.Warn("dropping canvas command", zap.Stringer("command", cmd), zap.Error(err))
			continue
		}
		n++
	}
	return n
}
