package middleware

import "github.com/aretw0/scenaria/pkg/ports"

// Middleware allows wrapping a ScenarioRepository to add behavior.
type Middleware func(ports.ScenarioRepository) ports.ScenarioRepository

// Chain wraps repo with mws. The first middleware is the outermost.
func Chain(repo ports.ScenarioRepository, mws ...Middleware) ports.ScenarioRepository {
	for i := len(mws) - 1; i >= 0; i-- {
		repo = mws[i](repo)
	}
	return repo
}
