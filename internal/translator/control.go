package translator

import "github.com/stitchvm/stitch/internal/wasm"

type controlFrameKind uint8

const (
	frameBlock controlFrameKind = iota
	frameLoop
	frameIf
)

// controlFrame tracks one open block, loop or if during translation.
type controlFrame struct {
	kind controlFrameKind
	// root marks the frame modeling the function body itself.
	root      bool
	blockType *wasm.FunctionType
	// stackHeight is the operand-stack height at entry, after the block's
	// parameters were claimed. Branch landings start here.
	stackHeight int
	// continuation is the branch target of this frame: the end label for
	// blocks and ifs, the header label for loops.
	continuation labelRef
	// elseLabel and elseSeen are meaningful for frameIf only.
	elseLabel labelRef
	elseSeen  bool
	reachable bool
}

// copyCount returns how many values a branch to this frame delivers: the
// result count for blocks and ifs, the parameter count for loops (loop
// branches re-enter the header and re-supply its parameters).
func (f *controlFrame) copyCount() int {
	if f.kind == frameLoop {
		return len(f.blockType.Params)
	}
	return len(f.blockType.Results)
}

// controlStack is the LIFO of open control frames. The bottom frame is
// always the function's root frame until its end is translated.
type controlStack struct {
	frames []controlFrame
}

func (c *controlStack) push(f controlFrame) {
	c.frames = append(c.frames, f)
}

func (c *controlStack) numberOfFrames() int {
	return len(c.frames)
}

// top returns the innermost frame, or an error after the root end.
func (c *controlStack) top() (*controlFrame, error) {
	if len(c.frames) == 0 {
		return nil, errf(ErrControlMismatch, "unexpected trailing instruction after the function end")
	}
	return &c.frames[len(c.frames)-1], nil
}

func (c *controlStack) pop() (controlFrame, error) {
	if len(c.frames) == 0 {
		return controlFrame{}, errf(ErrControlMismatch, "end with no open control frame")
	}
	f := c.frames[len(c.frames)-1]
	c.frames = c.frames[:len(c.frames)-1]
	return f, nil
}

// branchTarget returns the frame addressed by a branch's relative depth.
func (c *controlStack) branchTarget(depth uint32) (*controlFrame, error) {
	if int(depth) >= len(c.frames) {
		return nil, errf(ErrIndexOutOfRange,
			"relative depth %d exceeds the %d open control frames", depth, len(c.frames))
	}
	return &c.frames[len(c.frames)-1-int(depth)], nil
}

// markUnreachable clears the top frame's reachability.
func (c *controlStack) markUnreachable() error {
	f, err := c.top()
	if err != nil {
		return err
	}
	f.reachable = false
	return nil
}

// parentReachable returns the reachability of the frame below the top, which
// is the baseline an else arm resumes at. The parent's bit cannot change
// while an inner frame is open, so it still reflects the state at entry.
func (c *controlStack) parentReachable() bool {
	if len(c.frames) < 2 {
		return true
	}
	return c.frames[len(c.frames)-2].reachable
}
