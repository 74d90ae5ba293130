package intake

import (
	"context"
	"fmt"

	"call-orchestrator/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
)

// Step runs one node against the shared state. A non-nil error is the node's
// rejection reason; it is written to the state's error slot and the pipeline
// follows the node's failure edge.
type Step func(ctx context.Context, st *State) error

// Node is a pipeline vertex with explicit success and failure edges.
// An empty edge ends the run.
type Node struct {
	Name      string
	Run       Step
	OnSuccess string
	OnFailure string
}

// Pipeline is a small fixed graph of nodes run from an entry node.
type Pipeline struct {
	entry string
	nodes map[string]Node
}

func NewPipeline(entry string, nodes ...Node) (*Pipeline, error) {
	p := &Pipeline{entry: entry, nodes: make(map[string]Node, len(nodes))}
	for _, n := range nodes {
		if n.Name == "" || n.Run == nil {
			return nil, fmt.Errorf("intake: node %q needs a name and a run func", n.Name)
		}
		if _, dup := p.nodes[n.Name]; dup {
			return nil, fmt.Errorf("intake: duplicate node %q", n.Name)
		}
		p.nodes[n.Name] = n
	}
	if _, ok := p.nodes[entry]; !ok {
		return nil, fmt.Errorf("intake: unknown entry node %q", entry)
	}
	for _, n := range p.nodes {
		for _, next := range []string{n.OnSuccess, n.OnFailure} {
			if next == "" {
				continue
			}
			if _, ok := p.nodes[next]; !ok {
				return nil, fmt.Errorf("intake: node %q points at unknown node %q", n.Name, next)
			}
		}
	}
	return p, nil
}

// Run walks the graph and returns the names of the visited nodes.
// A run visits at most len(nodes) nodes, so a cyclic graph stops with an error.
func (p *Pipeline) Run(ctx context.Context, st *State) ([]string, error) {
	var visited []string
	for name := p.entry; name != ""; {
		if len(visited) >= len(p.nodes) {
			return visited, fmt.Errorf("intake: pipeline exceeded %d steps at %q", len(p.nodes), name)
		}
		n := p.nodes[name]
		visited = append(visited, name)

		stepCtx, span := tracing.Start(ctx, "intake."+name, attribute.String(tracing.StepKey, name))
		err := n.Run(stepCtx, st)
		if err != nil {
			tracing.SetError(span, err)
			if st.Error == "" {
				st.Error = err.Error()
			}
			name = n.OnFailure
		} else {
			name = n.OnSuccess
		}
		span.End()
	}
	return visited, nil
}
