// Package config loads relay and agent settings from the environment, an optional
// .env file and, for the agent, an optional YAML file.
package config
