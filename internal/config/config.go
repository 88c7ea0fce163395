// Package config loads the attestor configuration from ATTESTOR_*
// environment variables and assembles the engine policies from it.
package config

import (
	"math/big"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/apd/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"

	"github.com/trufnetwork/fdc-attestor/workflow"
)

// Config is the full attestor configuration.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	AttestationKind string `env:"ATTESTATION_TYPE" envDefault:"Web2Json"`
	SourceID        string `env:"SOURCE_ID" envDefault:"PublicWeb2"`

	Verifier VerifierConfig `envPrefix:"VERIFIER_"`
	DALayer  DALayerConfig  `envPrefix:"DA_LAYER_"`
	Ledger   LedgerConfig   `envPrefix:"LEDGER_"`
	Engine   EngineConfig   `envPrefix:"ENGINE_"`
}

type VerifierConfig struct {
	URL     string        `env:"URL"`
	APIKey  string        `env:"API_KEY"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`
	// RetryMax is the transport-level retry count; the engine retries
	// preparation itself, so this defaults to 0.
	RetryMax int `env:"RETRY_MAX" envDefault:"0"`
}

type DALayerConfig struct {
	URL            string        `env:"URL"`
	APIKey         string        `env:"API_KEY"`
	Timeout        time.Duration `env:"TIMEOUT" envDefault:"30s"`
	HealthInterval time.Duration `env:"HEALTH_INTERVAL" envDefault:"30s"`
	HealthRetryMax int           `env:"HEALTH_RETRY_MAX" envDefault:"3"`
}

type LedgerConfig struct {
	RPCURL     string `env:"RPC_URL"`
	PrivateKey string `env:"PRIVATE_KEY,unset"`

	// Contract addresses; empty ones are resolved through the registry.
	RegistryAddress       string `env:"REGISTRY_ADDRESS"`
	FdcHubAddress         string `env:"FDC_HUB_ADDRESS"`
	FeeConfigAddress      string `env:"FEE_CONFIG_ADDRESS"`
	RelayAddress          string `env:"RELAY_ADDRESS"`
	SystemsManagerAddress string `env:"SYSTEMS_MANAGER_ADDRESS"`

	// RequestFee is a decimal amount of native token, e.g. "0.5". Empty means
	// the fee is read from the fee configuration contract.
	RequestFee string `env:"REQUEST_FEE"`

	// Static voting round schedule; when unset it is read from
	// FlareSystemsManager.
	FirstVotingRoundStartTs    uint64 `env:"FIRST_VOTING_ROUND_START_TS"`
	VotingEpochDurationSeconds uint64 `env:"VOTING_EPOCH_DURATION_SECONDS"`

	ProtocolID      uint64        `env:"PROTOCOL_ID" envDefault:"200"`
	ExplorerURL     string        `env:"EXPLORER_URL"`
	ReceiptAttempts uint          `env:"RECEIPT_ATTEMPTS" envDefault:"60"`
	ReceiptDelay    time.Duration `env:"RECEIPT_DELAY" envDefault:"1s"`
}

type EngineConfig struct {
	RetryMaxAttempts       int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"5"`
	RetryInitialDelay      time.Duration `env:"RETRY_INITIAL_DELAY" envDefault:"1s"`
	RetryMaxDelay          time.Duration `env:"RETRY_MAX_DELAY" envDefault:"30s"`
	RetryBackoffMultiplier float64       `env:"RETRY_BACKOFF_MULTIPLIER" envDefault:"2"`

	PollCheckInterval time.Duration `env:"POLL_CHECK_INTERVAL" envDefault:"10s"`
	PollMaxWaitTime   time.Duration `env:"POLL_MAX_WAIT_TIME" envDefault:"15m"`
	MaxCheckInterval  time.Duration `env:"MAX_CHECK_INTERVAL" envDefault:"60s"`
	SettleDelay       time.Duration `env:"SETTLE_DELAY" envDefault:"30s"`

	CacheEnabled bool          `env:"CACHE_ENABLED" envDefault:"true"`
	CacheTTL     time.Duration `env:"CACHE_TTL" envDefault:"1h"`

	Concurrency int `env:"CONCURRENCY" envDefault:"4"`
}

// Policies is the engine configuration in the form the workflow package
// consumes.
type Policies struct {
	Retry        workflow.RetryPolicy
	Polling      workflow.PollingPolicy
	CacheEnabled bool
	CacheTTL     time.Duration
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	return load(env.Options{Prefix: EnvPrefix})
}

// LoadFromMap reads the configuration from vars instead of the process
// environment. Keys carry the ATTESTOR_ prefix.
func LoadFromMap(vars map[string]string) (*Config, error) {
	return load(env.Options{Prefix: EnvPrefix, Environment: vars})
}

func load(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, &workflow.ConfigError{Field: "environment", Reason: err.Error()}
	}
	return &cfg, nil
}

// Policies returns the retry, polling and cache settings.
func (c *Config) Policies() Policies {
	return Policies{
		Retry: workflow.RetryPolicy{
			MaxAttempts:       c.Engine.RetryMaxAttempts,
			InitialDelay:      c.Engine.RetryInitialDelay,
			MaxDelay:          c.Engine.RetryMaxDelay,
			BackoffMultiplier: c.Engine.RetryBackoffMultiplier,
		},
		Polling: workflow.PollingPolicy{
			CheckInterval: c.Engine.PollCheckInterval,
			MaxWaitTime:   c.Engine.PollMaxWaitTime,
		},
		CacheEnabled: c.Engine.CacheEnabled,
		CacheTTL:     c.Engine.CacheTTL,
	}
}

// Validate checks everything that does not require network access.
func (c *Config) Validate() error {
	for field, raw := range map[string]string{
		FieldVerifierURL:  c.Verifier.URL,
		FieldDALayerURL:   c.DALayer.URL,
		FieldLedgerRPCURL: c.Ledger.RPCURL,
	} {
		if err := validateURL(field, raw); err != nil {
			return err
		}
	}
	if c.Ledger.PrivateKey == "" {
		return &workflow.ConfigError{Field: FieldPrivateKey, Reason: ErrMsgEmptyRequired}
	}

	for _, name := range []struct{ field, value string }{
		{FieldAttestationKind, c.AttestationKind},
		{FieldSourceID, c.SourceID},
	} {
		if name.value == "" {
			return &workflow.ConfigError{Field: name.field, Reason: ErrMsgEmptyRequired}
		}
		if len(name.value) > common.HashLength {
			return &workflow.ConfigError{Field: name.field, Reason: ErrMsgTooLong}
		}
	}

	addresses := []string{
		c.Ledger.RegistryAddress,
		c.Ledger.FdcHubAddress,
		c.Ledger.FeeConfigAddress,
		c.Ledger.RelayAddress,
		c.Ledger.SystemsManagerAddress,
	}
	if bad, found := lo.Find(addresses, func(a string) bool { return a != "" && !common.IsHexAddress(a) }); found {
		return &workflow.ConfigError{Field: FieldContractAddress, Reason: ErrMsgInvalidAddress + ": " + bad}
	}

	if _, err := c.RequestFeeWei(); err != nil {
		return err
	}
	if (c.Ledger.FirstVotingRoundStartTs == 0) != (c.Ledger.VotingEpochDurationSeconds == 0) {
		return &workflow.ConfigError{Field: FieldProtocolParams, Reason: ErrMsgPartialSchedule}
	}

	switch c.LogFormat {
	case "json", "console":
	default:
		return &workflow.ConfigError{Field: FieldLogFormat, Reason: "must be json or console"}
	}
	if c.Engine.Concurrency <= 0 {
		return &workflow.ConfigError{Field: FieldConcurrency, Reason: "must be positive"}
	}
	if c.Engine.MaxCheckInterval <= 0 {
		return &workflow.ConfigError{Field: FieldMaxCheckInterval, Reason: "must be positive"}
	}

	p := c.Policies()
	if err := p.Retry.Validate(); err != nil {
		return err
	}
	return p.Polling.Validate()
}

func validateURL(field, raw string) error {
	if raw == "" {
		return &workflow.ConfigError{Field: field, Reason: ErrMsgEmptyRequired}
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return &workflow.ConfigError{Field: field, Reason: ErrMsgInvalidURL}
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
		return nil
	default:
		return &workflow.ConfigError{Field: field, Reason: ErrMsgInvalidURL}
	}
}

// HasStaticSchedule reports whether the voting round schedule is configured
// rather than read from chain.
func (c *Config) HasStaticSchedule() bool {
	return c.Ledger.VotingEpochDurationSeconds != 0
}

var weiPerToken = apd.New(1, NativeTokenDecimals)

// RequestFeeWei converts Ledger.RequestFee to wei. It returns nil when no fee
// is configured.
func (c *Config) RequestFeeWei() (*big.Int, error) {
	if c.Ledger.RequestFee == "" {
		return nil, nil
	}
	return ToWei(c.Ledger.RequestFee)
}

// ToWei converts a decimal native token amount to wei. Amounts with more than
// 18 fractional digits or a negative sign are rejected.
func ToWei(amount string) (*big.Int, error) {
	d, _, err := apd.NewFromString(amount)
	if err != nil || d.Negative || d.Form != apd.Finite {
		return nil, &workflow.ConfigError{Field: FieldRequestFee, Reason: ErrMsgInvalidFee}
	}

	ctx := apd.BaseContext.WithPrecision(apdPrecision)
	var wei, whole apd.Decimal
	if _, err := ctx.Mul(&wei, d, weiPerToken); err != nil {
		return nil, &workflow.ConfigError{Field: FieldRequestFee, Reason: err.Error()}
	}
	cond, err := ctx.Quantize(&whole, &wei, 0)
	if err != nil || cond.Inexact() {
		return nil, &workflow.ConfigError{Field: FieldRequestFee, Reason: ErrMsgInvalidFee}
	}
	return whole.Coeff.MathBigInt(), nil
}
