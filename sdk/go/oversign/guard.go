package oversign

import (
	"context"
	"encoding/json"
	"errors"
)

// ToolFunc is the function signature that Wrap guards. The caller
// provides an Action describing the intended operation.
type ToolFunc func(ctx context.Context, action Action) (any, error)

// Wrap returns a ToolFunc that submits each action for review before
// calling fn. A rejection returns a *DeniedError without calling fn; a
// modification calls fn with the reviewer's replacement substituted into
// the action. Request options apply to every action proposed through
// this wrapper.
func (c *Client) Wrap(fn ToolFunc, opts ...RequestOption) ToolFunc {
	return func(ctx context.Context, action Action) (any, error) {
		out, err := c.proposeAction(ctx, action, opts)
		if err != nil {
			return nil, err
		}

		switch out.Status {
		case Rejected:
			return nil, &DeniedError{
				RequestID:  out.RequestID,
				ActionType: actionType(action),
				Notes:      out.Notes,
			}
		case Modified:
			action = applyModification(action, out.Modified)
		}

		return fn(ctx, action)
	}
}

// proposeAction routes an action through the matching proposal call so
// command classification and diff rendering behave the same as direct
// proposals.
func (c *Client) proposeAction(ctx context.Context, a Action, opts []RequestOption) (Outcome, error) {
	switch actionType(a) {
	case ActionCommand:
		return c.ProposeCommand(ctx, a.Command, a.Description, opts...)
	case ActionFileEdit:
		return c.ProposeFileEdit(ctx, a.Path, a.Before, a.After, a.Description, opts...)
	case "":
		return Outcome{}, errors.New("oversign: action needs a type, a command, or a path")
	default:
		return c.Propose(ctx, a.Type, a.Payload, a.Description, opts...)
	}
}

// actionType resolves the effective type, inferring it from the filled
// fields when the caller left Type empty.
func actionType(a Action) string {
	switch {
	case a.Type != "":
		return a.Type
	case a.Command != "":
		return ActionCommand
	case a.Path != "":
		return ActionFileEdit
	default:
		return ""
	}
}

// applyModification substitutes the reviewer's replacement payload into
// the action the inner tool receives. Replacements arrive as typed
// structs from in-process reviewers and as generic maps after a queue
// round trip; both decode through JSON.
func applyModification(a Action, modified any) Action {
	raw, err := json.Marshal(modified)
	if err != nil {
		return a
	}

	switch actionType(a) {
	case ActionCommand:
		var v struct {
			Command string `json:"command"`
		}
		if json.Unmarshal(raw, &v) == nil && v.Command != "" {
			a.Command = v.Command
		}
	case ActionFileEdit:
		var v struct {
			Path    string `json:"file_path"`
			Content string `json:"content"`
		}
		if json.Unmarshal(raw, &v) == nil {
			if v.Path != "" {
				a.Path = v.Path
			}
			if v.Content != "" {
				a.After = v.Content
			}
		}
	default:
		a.Payload = modified
	}
	return a
}
