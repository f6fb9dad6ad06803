// Package dialogue holds the single-slot pending operation for an operator
// session. At most one interactive step - draft approval, asset request,
// visual confirmation or post confirmation - may await a reply at a time;
// opening a second one is an invalid transition.
package dialogue

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/linconhq/lincon/internal/lifecycle"
)

var (
	// ErrInvalidTransition covers both opening a slot while one is active
	// and resolving a slot that isn't open (e.g. a duplicate confirm).
	ErrInvalidTransition = errors.New("invalid pending-operation transition")
	// ErrUnrecognizedReply means the reply didn't match the active slot's
	// vocabulary. The slot stays open.
	ErrUnrecognizedReply = errors.New("reply not understood for pending operation")
)

// Kind tags the PendingOperation union.
type Kind int

const (
	KindNone Kind = iota
	KindApproval
	KindAssetRequest
	KindVisualConfirm
	KindPostConfirm
)

func (k Kind) String() string {
	switch k {
	case KindApproval:
		return "approval"
	case KindAssetRequest:
		return "asset_request"
	case KindVisualConfirm:
		return "visual_confirmation"
	case KindPostConfirm:
		return "post_confirmation"
	default:
		return "none"
	}
}

// PendingOperation is the one in-flight interactive step. Exactly the
// fields relevant to its Kind are populated.
type PendingOperation struct {
	Kind         Kind
	Draft        *lifecycle.Draft // approval
	ItemID       string           // asset request, visual confirm, post confirm
	Instructions string           // asset request
	ProposedTime time.Time        // post confirm
	OpenedAt     time.Time
}

// Coordinator is a strict single-slot holder for one operator session.
type Coordinator struct {
	mu   sync.Mutex
	slot PendingOperation
}

// New creates an empty coordinator.
func New() *Coordinator {
	return &Coordinator{}
}

// Active returns the kind of the currently open slot, KindNone when idle.
func (c *Coordinator) Active() Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot.Kind
}

// Peek returns a copy of the open operation without clearing it.
func (c *Coordinator) Peek() (PendingOperation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot, c.slot.Kind != KindNone
}

// Open installs a pending operation. Fails with ErrInvalidTransition when
// a slot is already active - the caller must resolve it first.
func (c *Coordinator) Open(op PendingOperation) error {
	if op.Kind == KindNone {
		return fmt.Errorf("%w: cannot open an empty operation", ErrInvalidTransition)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.slot.Kind != KindNone {
		return fmt.Errorf("%w: %s already pending", ErrInvalidTransition, c.slot.Kind)
	}

	op.OpenedAt = time.Now()
	c.slot = op
	return nil
}

// Resolve atomically takes and clears the open slot if it matches kind.
// A second resolve for the same confirmation fails with
// ErrInvalidTransition, which is what makes confirmations at-most-once.
func (c *Coordinator) Resolve(kind Kind) (PendingOperation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.slot.Kind != kind {
		return PendingOperation{}, fmt.Errorf("%w: expected %s, have %s", ErrInvalidTransition, kind, c.slot.Kind)
	}

	op := c.slot
	c.slot = PendingOperation{}
	return op, nil
}

// Reopen restores an operation after a failed sub-step (e.g. no attachment
// found), so the operator can retry. The slot must be empty.
func (c *Coordinator) Reopen(op PendingOperation) error {
	return c.Open(op)
}

// Reply is an inbound operator message reduced to what routing needs.
type Reply struct {
	Text           string
	HasAttachments bool
}

// Verb is the normalized operator intent for the active slot.
type Verb string

const (
	VerbApprove    Verb = "approve"
	VerbRevise     Verb = "revise"
	VerbReject     Verb = "reject"
	VerbSkip       Verb = "skip"
	VerbAttach     Verb = "attach"
	VerbDone       Verb = "done"
	VerbConfirm    Verb = "confirm"
	VerbReschedule Verb = "reschedule"
	VerbCancel     Verb = "cancel"
)

// Match checks an incoming reply against the active slot's expected
// vocabulary. Unmatched input is rejected with ErrUnrecognizedReply and the
// slot stays open; when no slot is active the caller falls through to the
// default store-as-memory behavior.
func (c *Coordinator) Match(r Reply) (Verb, error) {
	c.mu.Lock()
	kind := c.slot.Kind
	c.mu.Unlock()

	word := ""
	if fields := strings.Fields(r.Text); len(fields) > 0 {
		word = strings.ToLower(fields[0])
	}

	switch kind {
	case KindApproval:
		switch word {
		case "approve":
			return VerbApprove, nil
		case "revise":
			return VerbRevise, nil
		case "reject":
			return VerbReject, nil
		}
	case KindAssetRequest:
		if r.HasAttachments {
			return VerbAttach, nil
		}
		if word == "skip" {
			return VerbSkip, nil
		}
	case KindVisualConfirm:
		if word == "done" {
			return VerbDone, nil
		}
	case KindPostConfirm:
		switch word {
		case "confirm":
			return VerbConfirm, nil
		case "reschedule":
			return VerbReschedule, nil
		case "cancel":
			return VerbCancel, nil
		}
	case KindNone:
		return "", fmt.Errorf("%w: no operation pending", ErrInvalidTransition)
	}

	return "", fmt.Errorf("%w: %q while %s pending", ErrUnrecognizedReply, r.Text, kind)
}
