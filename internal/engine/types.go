package engine

import (
	"github.com/TimurManjosov/decider/internal/rules"
	"github.com/TimurManjosov/decider/internal/targeting"
	"github.com/TimurManjosov/decider/internal/value"
)

// outcome is a three-valued match result. unknown means the predicate read a
// field the context does not carry; it stays unknown under not and only a
// definite answer from a sibling can override it.
type outcome uint8

const (
	no outcome = iota
	yes
	unknown
)

func outcomeOf(b bool) outcome {
	if b {
		return yes
	}
	return no
}

// node is one compiled predicate.
type node interface {
	match(in *Input) outcome
}

type leafNode struct {
	path     []string
	op       rules.Operator
	handler  OperatorHandler
	prepared any
}

func (n *leafNode) match(in *Input) outcome {
	v, err := in.ctx.GetPath(n.path)
	if err != nil {
		// exists is the one operator that answers for absent fields.
		if n.op == rules.OpExists {
			return outcomeOf(!n.prepared.(bool))
		}
		return unknown
	}
	return outcomeOf(n.handler.Check(v, n.prepared))
}

type allNode []node

func (n allNode) match(in *Input) outcome {
	out := yes
	for _, c := range n {
		switch c.match(in) {
		case no:
			return no
		case unknown:
			out = unknown
		}
	}
	return out
}

type anyNode []node

func (n anyNode) match(in *Input) outcome {
	out := no
	for _, c := range n {
		switch c.match(in) {
		case yes:
			return yes
		case unknown:
			out = unknown
		}
	}
	return out
}

type notNode struct{ child node }

func (n notNode) match(in *Input) outcome {
	switch n.child.match(in) {
	case yes:
		return no
	case no:
		return yes
	}
	return unknown
}

// celNode treats evaluation errors, absent keys included, as unknown.
type celNode struct{ p *targeting.CEL }

func (n celNode) match(in *Input) outcome {
	ok, err := n.p.EvalData(in.celData())
	if err != nil {
		return unknown
	}
	return outcomeOf(ok)
}

type jsonLogicNode struct{ p *targeting.JSONLogic }

func (n jsonLogicNode) match(in *Input) outcome {
	if n.p.Missing(in.ctx) {
		return unknown
	}
	data, err := in.jsonData()
	if err != nil {
		return unknown
	}
	ok, err := n.p.Apply(data)
	if err != nil {
		return unknown
	}
	return outcomeOf(ok)
}

// Input is one evaluation's view of a decision context. The encodings used
// by CEL and JSON Logic predicates are built on first use and shared by every
// matcher evaluated against the same Input. An Input is not safe for
// concurrent use.
type Input struct {
	ctx value.Value

	cel     map[string]any
	json    []byte
	jsonErr error
	hasJSON bool
}

// NewInput wraps ctx for evaluation.
func NewInput(ctx value.Value) *Input {
	return &Input{ctx: ctx}
}

func (in *Input) celData() map[string]any {
	if in.cel == nil {
		in.cel = targeting.ContextData(in.ctx)
	}
	return in.cel
}

func (in *Input) jsonData() ([]byte, error) {
	if !in.hasJSON {
		in.json, in.jsonErr = targeting.EncodeContext(in.ctx)
		in.hasJSON = true
	}
	return in.json, in.jsonErr
}
