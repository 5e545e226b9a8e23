// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Engine() EngineConfig
	Detection() DetectionConfig
	Policies() PoliciesConfig
	Throttle() ThrottleConfig
	Reward() RewardConfig
	Verify() VerifyConfig
	Ledger() LedgerConfig
	Feed() FeedConfig
	Metrics() MetricsConfig

	// Feed Setters
	SetFeedPath(string)
	SetFeedFollow(bool)
	SetFeedCommandsPath(string)

	// Ledger Setters
	SetLedgerEnabled(bool)

	// Metrics Setters
	SetMetricsAddr(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	EngineCfg    EngineConfig    `mapstructure:"engine" yaml:"engine"`
	DetectionCfg DetectionConfig `mapstructure:"detection" yaml:"detection"`
	PoliciesCfg  PoliciesConfig  `mapstructure:"policies" yaml:"policies"`
	ThrottleCfg  ThrottleConfig  `mapstructure:"throttle" yaml:"throttle"`
	RewardCfg    RewardConfig    `mapstructure:"reward" yaml:"reward"`
	VerifyCfg    VerifyConfig    `mapstructure:"verify" yaml:"verify"`
	LedgerCfg    LedgerConfig    `mapstructure:"ledger" yaml:"ledger"`
	FeedCfg      FeedConfig      `mapstructure:"feed" yaml:"feed"`
	MetricsCfg   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Engine() EngineConfig       { return c.EngineCfg }
func (c *Config) Detection() DetectionConfig { return c.DetectionCfg }
func (c *Config) Policies() PoliciesConfig   { return c.PoliciesCfg }
func (c *Config) Throttle() ThrottleConfig   { return c.ThrottleCfg }
func (c *Config) Reward() RewardConfig       { return c.RewardCfg }
func (c *Config) Verify() VerifyConfig       { return c.VerifyCfg }
func (c *Config) Ledger() LedgerConfig       { return c.LedgerCfg }
func (c *Config) Feed() FeedConfig           { return c.FeedCfg }
func (c *Config) Metrics() MetricsConfig     { return c.MetricsCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetFeedPath(p string)         { c.FeedCfg.Path = p }
func (c *Config) SetFeedFollow(b bool)         { c.FeedCfg.Follow = b }
func (c *Config) SetFeedCommandsPath(p string) { c.FeedCfg.CommandsPath = p }
func (c *Config) SetLedgerEnabled(b bool)      { c.LedgerCfg.Enabled = b }
func (c *Config) SetMetricsAddr(a string)      { c.MetricsCfg.Addr = a }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// EngineConfig tunes the pacing of the cycle engine.
type EngineConfig struct {
	// ClickSettle is the wait after a successful click before the flow continues.
	ClickSettle time.Duration `mapstructure:"click_settle" yaml:"click_settle"`
	// BackSettle is the wait after every navigate-back.
	BackSettle time.Duration `mapstructure:"back_settle" yaml:"back_settle"`
	// ScrollCadence paces the idle-scroll step.
	ScrollCadence time.Duration `mapstructure:"scroll_cadence" yaml:"scroll_cadence"`
	// ClickMaxHops bounds the climb to a clickable ancestor (the element itself counts).
	ClickMaxHops int `mapstructure:"click_max_hops" yaml:"click_max_hops"`
	// SignInKeyword is the daily sign-in button text.
	SignInKeyword string `mapstructure:"sign_in_keyword" yaml:"sign_in_keyword"`
	// SignInDoneKeyword marks that today's sign-in already happened.
	SignInDoneKeyword string `mapstructure:"sign_in_done_keyword" yaml:"sign_in_done_keyword"`
}

// DetectionConfig parameterizes the candidate extraction channels.
type DetectionConfig struct {
	GoKeywords    []string `mapstructure:"go_keywords" yaml:"go_keywords"`
	ClaimKeywords []string `mapstructure:"claim_keywords" yaml:"claim_keywords"`
	// ExcludeKeywords suppresses keyword matches on already-finished markers
	// such as "已领取", which contains the claim keyword "领取".
	ExcludeKeywords []string `mapstructure:"exclude_keywords" yaml:"exclude_keywords"`
	// RightRegionRatio is the fraction of screen width left of the spatial channel's region.
	RightRegionRatio float64 `mapstructure:"right_region_ratio" yaml:"right_region_ratio"`
	// MinSiblingTitleRunes is the title length the spatial channel requires beside a button.
	MinSiblingTitleRunes int `mapstructure:"min_sibling_title_runes" yaml:"min_sibling_title_runes"`
	// OCRMinLabelRunes is the minimum length of an OCR label.
	OCRMinLabelRunes int `mapstructure:"ocr_min_label_runes" yaml:"ocr_min_label_runes"`
	// OCRMaxVerticalOffset bounds the centre-line distance between button and label.
	OCRMaxVerticalOffset int `mapstructure:"ocr_max_vertical_offset" yaml:"ocr_max_vertical_offset"`
	// OCRHorizontalWeight weighs the horizontal gap in the label score.
	OCRHorizontalWeight float64 `mapstructure:"ocr_horizontal_weight" yaml:"ocr_horizontal_weight"`
	// LabelMaxClimb is how many extra ancestor levels the label resolver may climb
	// when the row only yields the button's own keyword.
	LabelMaxClimb int `mapstructure:"label_max_climb" yaml:"label_max_climb"`
}

// StepPolicyConfig is shared by the policies that browse for a while and then return.
type StepPolicyConfig struct {
	Patterns []string      `mapstructure:"patterns" yaml:"patterns"`
	Duration time.Duration `mapstructure:"duration" yaml:"duration"`
	Backs    int           `mapstructure:"backs" yaml:"backs"`
}

// CrossAppPolicyConfig describes tasks that jump into another app and back.
type CrossAppPolicyConfig struct {
	Patterns []string `mapstructure:"patterns" yaml:"patterns"`
	// ForeignPackages are case-insensitive substrings identifying the target app.
	ForeignPackages []string      `mapstructure:"foreign_packages" yaml:"foreign_packages"`
	HomePackage     string        `mapstructure:"home_package" yaml:"home_package"`
	SwitchTimeout   time.Duration `mapstructure:"switch_timeout" yaml:"switch_timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Settle          time.Duration `mapstructure:"settle" yaml:"settle"`
	MaxBacks        int           `mapstructure:"max_backs" yaml:"max_backs"`
	BackInterval    time.Duration `mapstructure:"back_interval" yaml:"back_interval"`
}

// RedpacketPolicyConfig describes the fixed-reward lucky red packet task.
type RedpacketPolicyConfig struct {
	Patterns        []string      `mapstructure:"patterns" yaml:"patterns"`
	SecondaryButton string        `mapstructure:"secondary_button" yaml:"secondary_button"`
	Duration        time.Duration `mapstructure:"duration" yaml:"duration"`
	Backs           int           `mapstructure:"backs" yaml:"backs"`
	FixedReward     int           `mapstructure:"fixed_reward" yaml:"fixed_reward"`
}

// PoliciesConfig is the task policy table.
type PoliciesConfig struct {
	Disallow       []string              `mapstructure:"disallow" yaml:"disallow"`
	Browse         StepPolicyConfig      `mapstructure:"browse" yaml:"browse"`
	CrossApp       CrossAppPolicyConfig  `mapstructure:"cross_app" yaml:"cross_app"`
	Search         StepPolicyConfig      `mapstructure:"search" yaml:"search"`
	LuckyRedpacket RedpacketPolicyConfig `mapstructure:"lucky_redpacket" yaml:"lucky_redpacket"`
	Generic        StepPolicyConfig      `mapstructure:"generic" yaml:"generic"`
}

// ThrottleConfig bounds the fallback scroll rate.
type ThrottleConfig struct {
	Window time.Duration `mapstructure:"window" yaml:"window"`
}

// RewardConfig bounds parsed amounts and the display estimate.
type RewardConfig struct {
	Min         int `mapstructure:"min" yaml:"min"`
	Max         int `mapstructure:"max" yaml:"max"`
	EstimateMin int `mapstructure:"estimate_min" yaml:"estimate_min"`
	EstimateMax int `mapstructure:"estimate_max" yaml:"estimate_max"`
}

// VerifyConfig configures the completion verifier.
type VerifyConfig struct {
	Keywords []string `mapstructure:"keywords" yaml:"keywords"`
	// MaxParked bounds the queue of rewards waiting for verification.
	MaxParked int `mapstructure:"max_parked" yaml:"max_parked"`
}

// LedgerConfig configures reward persistence.
type LedgerConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
}

// FeedConfig configures the snapshot event feed and the command sink.
type FeedConfig struct {
	// Path is a JSONL file where the device bridge appends one snapshot per screen change.
	Path   string `mapstructure:"path" yaml:"path"`
	Follow bool   `mapstructure:"follow" yaml:"follow"`
	// Poll watches the file by polling instead of inotify.
	Poll bool `mapstructure:"poll" yaml:"poll"`
	// CommandsPath receives effector commands as JSONL. Empty means dry run.
	CommandsPath string `mapstructure:"commands_path" yaml:"commands_path"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "taskpilot")
	v.SetDefault("logger.log_file", "taskpilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Engine --
	v.SetDefault("engine.click_settle", "1200ms")
	v.SetDefault("engine.back_settle", "600ms")
	v.SetDefault("engine.scroll_cadence", "3s")
	v.SetDefault("engine.click_max_hops", 5)
	v.SetDefault("engine.sign_in_keyword", "签到")
	v.SetDefault("engine.sign_in_done_keyword", "明日再来")

	// -- Detection --
	v.SetDefault("detection.go_keywords", []string{"去完成", "去完成任务"})
	v.SetDefault("detection.claim_keywords", []string{"领取奖励", "去领取", "收下奖励", "领取"})
	v.SetDefault("detection.exclude_keywords", []string{"已领取", "今日已领"})
	v.SetDefault("detection.right_region_ratio", 2.0/3.0)
	v.SetDefault("detection.min_sibling_title_runes", 6)
	v.SetDefault("detection.ocr_min_label_runes", 4)
	v.SetDefault("detection.ocr_max_vertical_offset", 120)
	v.SetDefault("detection.ocr_horizontal_weight", 0.2)
	v.SetDefault("detection.label_max_climb", 2)

	// -- Policies --
	v.SetDefault("policies.disallow", []string{"购买宝贝", "发布一件新宝贝", "收藏三个"})
	v.SetDefault("policies.browse.patterns", []string{"浏览指定频道好物"})
	v.SetDefault("policies.browse.duration", "20s")
	v.SetDefault("policies.browse.backs", 1)
	v.SetDefault("policies.cross_app.patterns", []string{"蚂蚁庄园", "蚂蚁森林", "八八农场", "水果"})
	v.SetDefault("policies.cross_app.foreign_packages", []string{"alipay"})
	v.SetDefault("policies.cross_app.home_package", "com.taobao.idlefish")
	v.SetDefault("policies.cross_app.switch_timeout", "8s")
	v.SetDefault("policies.cross_app.poll_interval", "500ms")
	v.SetDefault("policies.cross_app.settle", "2s")
	v.SetDefault("policies.cross_app.max_backs", 5)
	v.SetDefault("policies.cross_app.back_interval", "800ms")
	v.SetDefault("policies.search.patterns", []string{"搜一搜推荐商品"})
	v.SetDefault("policies.search.duration", "20s")
	v.SetDefault("policies.search.backs", 2)
	v.SetDefault("policies.lucky_redpacket.patterns", []string{"拼手气红包"})
	v.SetDefault("policies.lucky_redpacket.secondary_button", "做任务参与")
	v.SetDefault("policies.lucky_redpacket.duration", "20s")
	v.SetDefault("policies.lucky_redpacket.backs", 3)
	v.SetDefault("policies.lucky_redpacket.fixed_reward", 500)
	v.SetDefault("policies.generic.duration", "10s")
	v.SetDefault("policies.generic.backs", 1)

	// -- Throttle --
	v.SetDefault("throttle.window", "3s")

	// -- Reward --
	v.SetDefault("reward.min", 1)
	v.SetDefault("reward.max", 2000)
	v.SetDefault("reward.estimate_min", 1)
	v.SetDefault("reward.estimate_max", 5)

	// -- Verify --
	v.SetDefault("verify.keywords", []string{"已完成", "已领取", "奖励到账", "明日再来"})
	v.SetDefault("verify.max_parked", 8)

	// -- Ledger --
	v.SetDefault("ledger.enabled", false)
	v.SetDefault("ledger.url", "")

	// -- Feed --
	v.SetDefault("feed.path", "")
	v.SetDefault("feed.follow", true)
	v.SetDefault("feed.poll", false)
	v.SetDefault("feed.commands_path", "")

	// -- Metrics --
	v.SetDefault("metrics.addr", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("ledger.url", "TASKPILOT_LEDGER_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the URL if Unmarshal didn't pick it up
	if cfg.LedgerCfg.Enabled && cfg.LedgerCfg.URL == "" {
		cfg.LedgerCfg.URL = os.Getenv("TASKPILOT_LEDGER_URL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.EngineCfg.ClickMaxHops <= 0 {
		return fmt.Errorf("engine.click_max_hops must be a positive integer")
	}
	if c.EngineCfg.ScrollCadence <= 0 {
		return fmt.Errorf("engine.scroll_cadence must be a positive duration")
	}
	if err := c.DetectionCfg.Validate(); err != nil {
		return fmt.Errorf("detection configuration invalid: %w", err)
	}
	if err := c.PoliciesCfg.Validate(); err != nil {
		return fmt.Errorf("policies configuration invalid: %w", err)
	}
	if c.ThrottleCfg.Window < 0 {
		return fmt.Errorf("throttle.window must not be negative")
	}
	if err := c.RewardCfg.Validate(); err != nil {
		return fmt.Errorf("reward configuration invalid: %w", err)
	}
	if c.VerifyCfg.MaxParked < 0 {
		return fmt.Errorf("verify.max_parked must not be negative")
	}
	if err := c.LedgerCfg.Validate(); err != nil {
		return fmt.Errorf("ledger configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the detection settings.
func (d *DetectionConfig) Validate() error {
	if len(d.GoKeywords) == 0 && len(d.ClaimKeywords) == 0 {
		return fmt.Errorf("at least one go or claim keyword is required")
	}
	if d.RightRegionRatio < 0 || d.RightRegionRatio >= 1 {
		return fmt.Errorf("right_region_ratio must be in [0, 1)")
	}
	if d.OCRMaxVerticalOffset < 0 {
		return fmt.Errorf("ocr_max_vertical_offset must not be negative")
	}
	return nil
}

// Validate checks the policy table settings.
func (p *PoliciesConfig) Validate() error {
	for name, backs := range map[string]int{
		"browse.backs":          p.Browse.Backs,
		"search.backs":          p.Search.Backs,
		"generic.backs":         p.Generic.Backs,
		"lucky_redpacket.backs": p.LuckyRedpacket.Backs,
		"cross_app.max_backs":   p.CrossApp.MaxBacks,
	} {
		if backs < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if p.LuckyRedpacket.FixedReward <= 0 {
		return fmt.Errorf("lucky_redpacket.fixed_reward must be a positive integer")
	}
	if len(p.CrossApp.Patterns) > 0 {
		if len(p.CrossApp.ForeignPackages) == 0 || p.CrossApp.HomePackage == "" {
			return fmt.Errorf("cross_app.foreign_packages and cross_app.home_package are required")
		}
		if p.CrossApp.PollInterval <= 0 {
			return fmt.Errorf("cross_app.poll_interval must be a positive duration")
		}
	}
	return nil
}

// Validate checks the reward bounds.
func (r *RewardConfig) Validate() error {
	if r.Min <= 0 || r.Max < r.Min {
		return fmt.Errorf("reward bounds must satisfy 0 < min <= max")
	}
	if r.EstimateMin <= 0 || r.EstimateMax < r.EstimateMin {
		return fmt.Errorf("estimate bounds must satisfy 0 < estimate_min <= estimate_max")
	}
	return nil
}

// Validate checks the ledger settings.
func (l *LedgerConfig) Validate() error {
	if !l.Enabled {
		return nil
	}
	if l.URL == "" {
		return fmt.Errorf("ledger url is required but not found. Ensure TASKPILOT_LEDGER_URL is set")
	}
	return nil
}
