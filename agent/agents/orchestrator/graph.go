package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/knearme/portfolio-agent/agent/contract"
)

func (o *Orchestrator) compileTurnGraph(
	ctx context.Context,
) (compose.Runnable[contractx.OrchestrateInput, contractx.OrchestrateResult], error) {
	graph := compose.NewGraph[contractx.OrchestrateInput, contractx.OrchestrateResult]()

	if err := graph.AddLambdaNode("validate_turn",
		compose.InvokableLambda(func(ctx context.Context, in contractx.OrchestrateInput) (contractx.OrchestrateInput, error) {
			if !in.Phase.Valid() {
				return contractx.OrchestrateInput{}, fmt.Errorf("%w: %q", ErrInvalidPhase, in.Phase)
			}
			in.Message = strings.TrimSpace(in.Message)
			in.State.Recompute()
			return in, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_turn: %w", err)
	}

	if err := graph.AddLambdaNode("run_extraction",
		compose.InvokableLambda(func(ctx context.Context, in contractx.OrchestrateInput) (contractx.OrchestrateResult, error) {
			return o.runExtraction(ctx, in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node run_extraction: %w", err)
	}

	if err := graph.AddLambdaNode("run_generation",
		compose.InvokableLambda(func(ctx context.Context, in contractx.OrchestrateInput) (contractx.OrchestrateResult, error) {
			return o.runGeneration(ctx, in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node run_generation: %w", err)
	}

	if err := graph.AddLambdaNode("run_finishing",
		compose.InvokableLambda(func(ctx context.Context, in contractx.OrchestrateInput) (contractx.OrchestrateResult, error) {
			return o.runFinishing(ctx, in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node run_finishing: %w", err)
	}

	branch := compose.NewGraphBranch(
		func(ctx context.Context, in contractx.OrchestrateInput) (string, error) {
			switch in.Phase {
			case contractx.PhaseGathering:
				return "run_extraction", nil
			case contractx.PhaseGenerating:
				return "run_generation", nil
			case contractx.PhaseReady:
				return "run_finishing", nil
			default:
				return "", fmt.Errorf("%w: %q", ErrInvalidPhase, in.Phase)
			}
		},
		map[string]bool{
			"run_extraction": true,
			"run_generation": true,
			"run_finishing":  true,
		},
	)

	if err := graph.AddEdge(compose.START, "validate_turn"); err != nil {
		return nil, fmt.Errorf("add edge start->validate_turn: %w", err)
	}
	if err := graph.AddBranch("validate_turn", branch); err != nil {
		return nil, fmt.Errorf("add phase branch: %w", err)
	}
	for _, node := range []string{"run_extraction", "run_generation", "run_finishing"} {
		if err := graph.AddEdge(node, compose.END); err != nil {
			return nil, fmt.Errorf("add edge %s->end: %w", node, err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.turn"))
	if err != nil {
		return nil, fmt.Errorf("compile orchestrator graph: %w", err)
	}
	return runner, nil
}
