// Package config loads the daemon configuration from the environment.
package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"splitsteal/arena"
	"splitsteal/server"
)

// Config is the full daemon configuration. Ledger settings have no
// defaults: results must land somewhere, so a missing endpoint or
// credential is a startup error rather than a silent no-op.
type Config struct {
	ListenAddr string
	Datadir    string
	LogLevel   string

	LedgerEndpoint     string
	LedgerContract     string
	OperatorCredential string

	NegotiationWindow time.Duration
	ChoiceWindow      time.Duration
	ChallengeTTL      time.Duration

	CohortCapacity     int
	CohortMinimum      int
	RegistrationWindow time.Duration
	TournamentRounds   int
}

func (c *Config) String() string {
	masked := *c
	masked.OperatorCredential = "***"
	b, err := json.MarshalIndent(masked, "", "  ")
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(b)
}

// DBPath returns the archive database location under the datadir.
func (c *Config) DBPath() string {
	return filepath.Join(c.Datadir, "archive.db")
}

var (
	ListenAddr         = "LISTEN_ADDR"
	Datadir            = "DATADIR"
	LogLevel           = "LOG_LEVEL"
	LedgerEndpoint     = "LEDGER_ENDPOINT"
	LedgerContract     = "LEDGER_CONTRACT"
	OperatorCredential = "OPERATOR_CREDENTIAL"
	NegotiationWindow  = "NEGOTIATION_WINDOW"
	ChoiceWindow       = "CHOICE_WINDOW"
	ChallengeTTL       = "CHALLENGE_TTL"
	CohortCapacity     = "COHORT_CAPACITY"
	CohortMinimum      = "COHORT_MINIMUM"
	RegistrationWindow = "REGISTRATION_WINDOW"
	TournamentRounds   = "TOURNAMENT_ROUNDS"

	defaultListenAddr = ":8080"
	defaultDatadir    = "."
	defaultLogLevel   = "info"
)

// Load reads the configuration from SPLITSTEAL_* environment variables,
// applying defaults for everything except the ledger collaborator.
func Load() (*Config, error) {
	viper.SetEnvPrefix("SPLITSTEAL")
	viper.AutomaticEnv()

	viper.SetDefault(ListenAddr, defaultListenAddr)
	viper.SetDefault(Datadir, defaultDatadir)
	viper.SetDefault(LogLevel, defaultLogLevel)
	viper.SetDefault(NegotiationWindow, arena.DefaultNegotiationWindow)
	viper.SetDefault(ChoiceWindow, arena.DefaultChoiceWindow)
	viper.SetDefault(ChallengeTTL, server.DefaultChallengeTTL)
	viper.SetDefault(CohortCapacity, arena.DefaultCohortCapacity)
	viper.SetDefault(CohortMinimum, arena.DefaultCohortMinimum)
	viper.SetDefault(RegistrationWindow, arena.DefaultRegistrationWindow)
	viper.SetDefault(TournamentRounds, 0) // 0: derive from cohort size

	cfg := &Config{
		ListenAddr:         viper.GetString(ListenAddr),
		Datadir:            viper.GetString(Datadir),
		LogLevel:           viper.GetString(LogLevel),
		LedgerEndpoint:     viper.GetString(LedgerEndpoint),
		LedgerContract:     viper.GetString(LedgerContract),
		OperatorCredential: viper.GetString(OperatorCredential),
		NegotiationWindow:  viper.GetDuration(NegotiationWindow),
		ChoiceWindow:       viper.GetDuration(ChoiceWindow),
		ChallengeTTL:       viper.GetDuration(ChallengeTTL),
		CohortCapacity:     viper.GetInt(CohortCapacity),
		CohortMinimum:      viper.GetInt(CohortMinimum),
		RegistrationWindow: viper.GetDuration(RegistrationWindow),
		TournamentRounds:   viper.GetInt(TournamentRounds),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("missing listen address")
	}
	if c.LedgerEndpoint == "" {
		return fmt.Errorf("missing ledger endpoint")
	}
	if c.LedgerContract == "" {
		return fmt.Errorf("missing ledger contract address")
	}
	if c.OperatorCredential == "" {
		return fmt.Errorf("missing operator credential")
	}
	if c.CohortMinimum > c.CohortCapacity {
		return fmt.Errorf("cohort minimum %d exceeds capacity %d", c.CohortMinimum, c.CohortCapacity)
	}
	return nil
}
