// Package config loads the application configuration: which agents
// exist, which models they use, and how to reach the provider.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultModel is used for any agent without an explicit model.
const DefaultModel = "openai/gpt-4o-mini"

const chatSystemPrompt = `You are a support assistant. Help the user work through their request,
asking follow-up questions until you understand the issue well enough for
it to be turned into a ticket.`

const ticketSystemPrompt = `You create tickets in the ticket system. Extract the relevant
information from the chat transcript you are given. Leave fields you
cannot fill from the transcript empty instead of inventing content.`

// Agent configures one participating agent.
type Agent struct {
	Name         string `yaml:"name"`
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
}

// Config is the application configuration.
type Config struct {
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	ChatAgent   Agent  `yaml:"chat_agent"`
	TicketAgent Agent  `yaml:"ticket_agent"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Model: DefaultModel,
		ChatAgent: Agent{
			Name:         "Dieter",
			SystemPrompt: chatSystemPrompt,
		},
		TicketAgent: Agent{
			Name:         "Uschi",
			SystemPrompt: ticketSystemPrompt,
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	cfg.normalize()
	return cfg, nil
}

// normalize fills per-agent models from the top-level model.
func (c *Config) normalize() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.ChatAgent.Model == "" {
		c.ChatAgent.Model = c.Model
	}
	if c.TicketAgent.Model == "" {
		c.TicketAgent.Model = c.Model
	}
}
