package infra

import (
	"fmt"
	"os"
	"time"

	"learn-gateway/middleware/ratelimit/domain"

	"gopkg.in/yaml.v3"
)

// policyFile é o formato YAML da tabela de políticas:
//
//	default:
//	  max_requests: 60
//	  window: 1m
//	routes:
//	  /api/chat:
//	    max_requests: 30
//	    window: 1m
type policyFile struct {
	Default *limitFile           `yaml:"default"`
	Routes  map[string]limitFile `yaml:"routes"`
}

type limitFile struct {
	MaxRequests int    `yaml:"max_requests"`
	Window      string `yaml:"window"`
}

func (l limitFile) toDomain() (domain.RouteLimit, error) {
	d, err := time.ParseDuration(l.Window)
	if err != nil {
		return domain.RouteLimit{}, fmt.Errorf("window %q: %w", l.Window, err)
	}
	return domain.RouteLimit{MaxRequests: l.MaxRequests, Window: d}, nil
}

// LoadPolicyFile lê a tabela de um arquivo YAML.
func LoadPolicyFile(path string) (domain.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy parte da DefaultPolicy e sobrescreve o que o YAML trouxer.
// Rotas embutidas que o arquivo não menciona continuam valendo.
func ParsePolicy(data []byte) (domain.Policy, error) {
	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return domain.Policy{}, fmt.Errorf("parse policy: %w", err)
	}

	p := domain.DefaultPolicy()
	if pf.Default != nil {
		l, err := pf.Default.toDomain()
		if err != nil {
			return domain.Policy{}, fmt.Errorf("default: %w", err)
		}
		p.Default = l
	}
	for route, lf := range pf.Routes {
		l, err := lf.toDomain()
		if err != nil {
			return domain.Policy{}, fmt.Errorf("route %q: %w", route, err)
		}
		p.Routes[route] = l
	}

	if err := p.Validate(); err != nil {
		return domain.Policy{}, err
	}
	return p, nil
}
