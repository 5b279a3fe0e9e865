package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	orchestratorx "github.com/knearme/portfolio-agent/agent/agents/orchestrator"
	subagentx "github.com/knearme/portfolio-agent/agent/agents/subagent"
	llmx "github.com/knearme/portfolio-agent/agent/llm"
	projectx "github.com/knearme/portfolio-agent/agent/project"
	promptx "github.com/knearme/portfolio-agent/agent/prompt"
	statex "github.com/knearme/portfolio-agent/agent/state"
	toolx "github.com/knearme/portfolio-agent/agent/tool"
	"github.com/knearme/portfolio-agent/gateway"
	configx "github.com/knearme/portfolio-agent/pkg/config"
	"github.com/knearme/portfolio-agent/pkg/identity"
	_ "github.com/knearme/portfolio-agent/pkg/logger/autoload"
	openrouterx "github.com/knearme/portfolio-agent/pkg/openrouter"
	"github.com/knearme/portfolio-agent/pkg/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	llmCfg := configx.MustNew[llmx.Config]("LLM")
	redisCfg := configx.MustNew[statex.RedisConfig]("UPSTASH_REDIS")
	projectCfg := configx.MustNew[projectx.Config]("POSTGRES")
	identityCfg := configx.MustNew[identity.Config]("IDENTITY")
	gatewayCfg := configx.MustNew[gateway.Config]("GATEWAY")

	sessions, err := statex.NewRedisSessionStore(*redisCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("session store init failed")
	}

	projects, err := projectx.NewStore(*projectCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("project store init failed")
	}
	defer projects.Close()

	verifier := identity.MustNew(*identityCfg)

	prompts := promptx.LoadPromptSet()
	sink := telemetry.NewPrometheusSink(prometheus.DefaultRegisterer)

	deps := gateway.Deps{
		Verifier:     verifier,
		ToolDeps:     toolx.Deps{Sessions: sessions, Projects: projects},
		Projects:     projects,
		Sessions:     sessions,
		Sink:         sink,
		SystemPrompt: prompts.Assistant,
	}

	// Without an API key the service still starts so /health and /metrics
	// stay up; /chat answers 503 until a backend is configured.
	if llmCfg.Configured() {
		subagents, err := subagentx.NewRegistry(ctx, *llmCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("sub-agent registry init failed")
		}

		orch, err := orchestratorx.New(subagents)
		if err != nil {
			log.Fatal().Err(err).Msg("orchestrator init failed")
		}

		client := openrouterx.NewClient(llmCfg.OpenRouterFor(""))
		runner, err := gateway.NewOpenAIRunner(client, llmCfg.Model, int64(llmCfg.MaxCompletionToken), float64(llmCfg.Temperature))
		if err != nil {
			log.Fatal().Err(err).Msg("model runner init failed")
		}

		deps.Runner = runner
		deps.ToolDeps.Orchestrator = orch
		deps.ToolDeps.Subagents = subagents
	} else {
		log.Warn().Msg("no LLM api key configured, chat endpoint will answer 503")
	}

	srv, err := gateway.NewServer(*gatewayCfg, deps)
	if err != nil {
		log.Fatal().Err(err).Msg("gateway init failed")
	}

	go func() {
		if err := srv.Start(); err != nil {
			log.Info().Err(err).Msg("gateway stopped")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
		os.Exit(1)
	}
}
