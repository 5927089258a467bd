package internal

import "github.com/starford/ansuz/internal/classifier"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config     *Config
	classifier classifier.Client
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithClassifier overrides the Gemini-backed classifier client. Used by
// tests and by deployments with an alternative model endpoint.
func WithClassifier(c classifier.Client) Option {
	return func(a *application) {
		a.classifier = c
	}
}
