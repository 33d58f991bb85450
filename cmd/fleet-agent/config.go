package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log         LogConfig
	Coordinator CoordinatorConfig
	Agent       AgentConfig
}

type CoordinatorConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type AgentConfig struct {
	ID                  string `mapstructure:"id"`
	CredentialFile      string `mapstructure:"credential_file"`
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds"`
}

var config Config

func InitConfig() {
	var err error

	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/fleet-agent")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("coordinator.url", "COORDINATOR_URL")
	_ = viper.BindEnv("agent.id", "AGENT_ID")

	if err := viper.ReadInConfig(); err != nil {
		panic(err)
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		panic(err)
	}

	// An unset agent ID falls back to the machine's hostname.
	if config.Agent.ID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			panic(fmt.Errorf("agent id not configured and hostname unavailable: %w", err))
		}
		config.Agent.ID = hostname
	}

	// Initialize logger with configured log level
	initLogger(config.Log.Level)

	// Pretty print config as JSON (only at DEBUG level)
	if strings.ToUpper(config.Log.Level) == LOG_LEVEL_DEBUG {
		configJSON, err := json.MarshalIndent(config, "", "  ")
		if err == nil {
			fmt.Println("Config loaded:")
			fmt.Println(string(configJSON))
		}
	}
}
