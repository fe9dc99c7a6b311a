package satellite

import (
	"context"

	"github.com/stellarops/core/internal/clock"
)

// msgKind enumerates the actor inbox message types. Each carries a reply
// channel so callers get a synchronous request/reply feel over an
// asynchronous, strictly-FIFO inbox.
type msgKind int

const (
	msgGetState msgKind = iota
	msgUpdateEnergy
	msgUpdateMemory
	msgSetMode
	msgUpdatePosition
	msgSetTLE
	msgStop
)

type actorMsg struct {
	kind     msgKind
	energyDelta float64
	memoryAbs   float64
	mode        Mode
	position    Position
	tle         *TLE
	reply       chan actorReply
}

type actorReply struct {
	state State
	ok    bool
}

// actor owns one satellite's mutable state exclusively; all mutation
// happens on the goroutine reading inbox, so no lock is needed around
// state itself.
type actor struct {
	inbox chan actorMsg
	done  chan struct{}
	clk   clock.Clock
}

const actorInboxSize = 64

func newActor(initial State, clk clock.Clock) *actor {
	a := &actor{
		inbox: make(chan actorMsg, actorInboxSize),
		done:  make(chan struct{}),
		clk:   clk,
	}
	go a.run(initial)
	return a
}

func (a *actor) run(state State) {
	defer close(a.done)
	for msg := range a.inbox {
		switch msg.kind {
		case msgGetState:
			msg.reply <- actorReply{state: state, ok: true}

		case msgUpdateEnergy:
			state.Energy = clampPercent(state.Energy + msg.energyDelta)
			if !state.ModeOverridden {
				state.Mode = deriveMode(state.Mode, state.Energy)
			}
			state.UpdatedAt = a.clk.Now()
			msg.reply <- actorReply{state: state, ok: true}

		case msgUpdateMemory:
			state.MemoryUsed = clampPercent(msg.memoryAbs)
			state.UpdatedAt = a.clk.Now()
			msg.reply <- actorReply{state: state, ok: true}

		case msgSetMode:
			state.Mode = msg.mode
			state.ModeOverridden = true
			state.UpdatedAt = a.clk.Now()
			msg.reply <- actorReply{state: state, ok: true}

		case msgUpdatePosition:
			state.Position = msg.position
			state.UpdatedAt = a.clk.Now()
			msg.reply <- actorReply{state: state, ok: true}

		case msgSetTLE:
			state.TLE = msg.tle
			state.UpdatedAt = a.clk.Now()
			msg.reply <- actorReply{state: state, ok: true}

		case msgStop:
			msg.reply <- actorReply{state: state, ok: true}
			return
		}
	}
}

// send delivers msg to the actor's inbox and waits for its reply, bounded
// by ctx. Lookups and mutations both go through this path; a lookup waits
// only behind this actor's own serialized inbox, never another actor's
// mutation.
func (a *actor) send(ctx context.Context, msg actorMsg) (State, bool) {
	msg.reply = make(chan actorReply, 1)
	select {
	case a.inbox <- msg:
	case <-ctx.Done():
		return State{}, false
	case <-a.done:
		return State{}, false
	}
	select {
	case r := <-msg.reply:
		return r.state, r.ok
	case <-ctx.Done():
		return State{}, false
	}
}

func (a *actor) stop(ctx context.Context) {
	a.send(ctx, actorMsg{kind: msgStop})
	close(a.inbox)
	<-a.done
}
