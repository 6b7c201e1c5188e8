package ai

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/feedwise/analysis-back/internal/domain"
	"github.com/feedwise/analysis-back/internal/lang"
)

// RouteTarget names the provider and model a stage/language pair resolves to.
type RouteTarget struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// ModelRouterConfig carries the built-in policy; an optional YAML routes file
// overrides individual (stage, language) cells. The mapping table, not code,
// is the extension point.
type ModelRouterConfig struct {
	DefaultProvider  string
	DefaultModel     string
	ChineseModel     string
	PreliminaryModel string
	RoutesFile       string
}

type routesFile struct {
	Stages map[string]map[string]RouteTarget `yaml:"stages"`
}

// ModelRouter maps (stage, detected language) to a model. Policy: Chinese
// content goes to a cost-efficient Chinese-tuned model, Latin languages to a
// fast general model, everything else to the general fallback; the
// preliminary stage always uses the cheapest tier.
type ModelRouter struct {
	config ModelRouterConfig
	routes map[domain.AnalysisStage]map[string]RouteTarget
}

func NewModelRouter(config ModelRouterConfig) (*ModelRouter, error) {
	if strings.TrimSpace(config.DefaultProvider) == "" {
		config.DefaultProvider = "openai"
	}
	if strings.TrimSpace(config.DefaultModel) == "" {
		config.DefaultModel = "gpt-4.1-mini"
	}
	if strings.TrimSpace(config.ChineseModel) == "" {
		config.ChineseModel = "qwen-plus"
	}
	if strings.TrimSpace(config.PreliminaryModel) == "" {
		config.PreliminaryModel = "gpt-4.1-nano"
	}

	router := &ModelRouter{
		config: config,
		routes: make(map[domain.AnalysisStage]map[string]RouteTarget),
	}

	if strings.TrimSpace(config.RoutesFile) != "" {
		if err := router.loadRoutesFile(config.RoutesFile); err != nil {
			return nil, err
		}
	}
	return router, nil
}

func (r *ModelRouter) loadRoutesFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read model routes file %s: %w", path, err)
	}

	var parsed routesFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("parse model routes file %s: %w", path, err)
	}

	for stageName, byLanguage := range parsed.Stages {
		stage := domain.AnalysisStage(strings.ToLower(strings.TrimSpace(stageName)))
		switch stage {
		case domain.StagePreliminary, domain.StageAnalysis, domain.StageReflection:
		default:
			return fmt.Errorf("model routes file %s: unknown stage %q", path, stageName)
		}
		for languageName, target := range byLanguage {
			if strings.TrimSpace(target.Model) == "" {
				return fmt.Errorf("model routes file %s: stage %s language %s has no model", path, stage, languageName)
			}
			if strings.TrimSpace(target.Provider) == "" {
				target.Provider = r.config.DefaultProvider
			}
			if r.routes[stage] == nil {
				r.routes[stage] = make(map[string]RouteTarget)
			}
			r.routes[stage][strings.ToLower(strings.TrimSpace(languageName))] = target
		}
	}
	return nil
}

// Route resolves the model for a stage and language. File overrides win,
// then the stage/language policy defaults.
func (r *ModelRouter) Route(stage domain.AnalysisStage, language lang.Language) RouteTarget {
	if byLanguage, ok := r.routes[stage]; ok {
		if target, ok := byLanguage[string(language)]; ok {
			return target
		}
		if target, ok := byLanguage["default"]; ok {
			return target
		}
	}

	if stage == domain.StagePreliminary {
		return RouteTarget{Provider: r.config.DefaultProvider, Model: r.config.PreliminaryModel}
	}
	if language == lang.Chinese {
		return RouteTarget{Provider: r.config.DefaultProvider, Model: r.config.ChineseModel}
	}
	return RouteTarget{Provider: r.config.DefaultProvider, Model: r.config.DefaultModel}
}

// Validate checks every routed target against available credentials so a bad
// mapping fails at startup instead of per-job at runtime.
func (r *ModelRouter) Validate(hasCredentials func(provider string) bool) error {
	targets := map[string]RouteTarget{}

	stages := []domain.AnalysisStage{domain.StagePreliminary, domain.StageAnalysis, domain.StageReflection}
	languages := []lang.Language{
		lang.Chinese, lang.Korean, lang.Japanese, lang.English, lang.Spanish,
		lang.French, lang.German, lang.Portuguese, lang.Italian, lang.Russian, lang.Other,
	}
	for _, stage := range stages {
		for _, language := range languages {
			target := r.Route(stage, language)
			targets[target.Provider+"/"+target.Model] = target
		}
	}

	missing := make([]string, 0)
	for key, target := range targets {
		if !hasCredentials(target.Provider) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("model routes without usable credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}
