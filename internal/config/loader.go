package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// === DECEPTION LAYER ===

type HoneypotTemplate struct {
	Name        string `json:"name"`
	Protocol    string `json:"protocol"`
	Port        int    `json:"port"`
	Banner      string `json:"banner,omitempty"`
	Sensitivity string `json:"sensitivity"` // low, medium, high
}

type DeceptionConfig struct {
	Honeypots       map[string]HoneypotTemplate `json:"honeypots"`
	PostureTable    map[string][]string         `json:"posture_table"`
	EventBufferSize int                         `json:"event_buffer_size"`
	LogCapacity     int                         `json:"log_capacity"`
	SendGraceMS     int                         `json:"send_grace_ms"`
}

// === SCORING ===

type ScoringConfig struct {
	BaseScores          map[string]float64 `json:"base_scores"`
	RepeatStep          float64            `json:"repeat_step"`
	RepeatCap           int                `json:"repeat_cap"`
	SurgeStep           float64            `json:"surge_step"`
	SurgeThreshold      int                `json:"surge_threshold"`
	RepeatWindowSeconds int                `json:"repeat_window_seconds"`
}

// === RESPONSE ===

type PolicyRow struct {
	Actions []string `json:"actions"`
}

type ResponseConfig struct {
	Workers              int                  `json:"workers"`
	ActionTimeoutSeconds int                  `json:"action_timeout_seconds"`
	IncidentLogCapacity  int                  `json:"incident_log_capacity"`
	Policies             map[string]PolicyRow `json:"policies"`
	Categories           map[string]string    `json:"categories"`
	CategoryPolicies     map[string]PolicyRow `json:"category_policies"`
}

// === NOTIFICATIONS ===

type WebhookEndpoint struct {
	URL       string `json:"url"`
	AuthToken string `json:"auth_token,omitempty"`
}

type WebhooksConfig struct {
	Enabled        bool              `json:"enabled"`
	Endpoints      []WebhookEndpoint `json:"endpoints"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	RetryCount     int               `json:"retry_count"`
}

type SlackConfig struct {
	Enabled        bool   `json:"enabled"`
	WebhookURL     string `json:"webhook_url"`
	Channel        string `json:"channel"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type NotificationRules struct {
	AlertOnCritical bool `json:"alert_on_critical"`
	AlertOnHigh     bool `json:"alert_on_high"`
	AlertOnMedium   bool `json:"alert_on_medium"`
	AlertOnLow      bool `json:"alert_on_low"`
}

type NotificationsConfig struct {
	Rules    NotificationRules `json:"rules"`
	Webhooks WebhooksConfig    `json:"webhooks"`
	Slack    SlackConfig       `json:"slack"`
}

// === PERSISTENCE / API / SYSTEM ===

type DatabaseConfig struct {
	Path string `json:"path"`
}

type APIConfig struct {
	Enabled    bool   `json:"enabled"`
	ListenAddr string `json:"listen_addr"`
}

type LogRotationConfig struct {
	MaxSizeMB  int  `json:"max_size_mb"`
	MaxBackups int  `json:"max_backups"`
	MaxAgeDays int  `json:"max_age_days"`
	Compress   bool `json:"compress"`
}

type SystemConfig struct {
	LogDir   string `json:"log_dir"`
	LogLevel string `json:"log_level"`
	Debug    bool   `json:"debug"`
}

// === MAIN CONFIG STRUCTURE ===

type Config struct {
	System        SystemConfig        `json:"system"`
	Database      DatabaseConfig      `json:"database"`
	Deception     DeceptionConfig     `json:"deception"`
	Scoring       ScoringConfig       `json:"scoring"`
	Response      ResponseConfig      `json:"response"`
	Notifications NotificationsConfig `json:"notifications"`
	API           APIConfig           `json:"api"`
	LogRotation   LogRotationConfig   `json:"log_rotation"`
}

// === LOADER FUNCTIONS ===

func Load(configPath string) (*Config, error) {
	var data []byte
	var err error

	if configPath != "" {
		data, err = os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		// Try common locations
		locations := []string{
			"./config/default.json",
			"/etc/mirage/config.json",
			os.Getenv("MIRAGE_CONFIG"),
		}

		for _, loc := range locations {
			if loc == "" {
				continue
			}
			if d, err := os.ReadFile(loc); err == nil {
				data = d
				fmt.Printf("Loaded config from: %s\n", loc)
				break
			}
		}
	}

	// If no config found, use defaults
	if data == nil {
		fmt.Println("No config file found, using defaults")
		return getDefaults(), nil
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		fmt.Printf("Warning: Failed to parse config: %v, using defaults\n", err)
		return getDefaults(), nil
	}

	applyDefaults(&config)
	expandEnvVars(&config)

	return &config, nil
}

// expandEnvVars replaces ${VAR_NAME} with environment variables
func expandEnvVars(cfg *Config) {
	cfg.Database.Path = os.ExpandEnv(cfg.Database.Path)
	cfg.Notifications.Slack.WebhookURL = os.ExpandEnv(cfg.Notifications.Slack.WebhookURL)
	for i := range cfg.Notifications.Webhooks.Endpoints {
		ep := &cfg.Notifications.Webhooks.Endpoints[i]
		ep.URL = os.ExpandEnv(ep.URL)
		ep.AuthToken = os.ExpandEnv(ep.AuthToken)
	}
}

func getDefaults() *Config {
	cfg := &Config{
		System: SystemConfig{
			LogDir:   "logs",
			LogLevel: "info",
		},
		Database: DatabaseConfig{
			Path: "data/mirage.db",
		},
		API: APIConfig{
			Enabled:    true,
			ListenAddr: ":8070",
		},
		LogRotation: LogRotationConfig{
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.System.LogDir == "" {
		cfg.System.LogDir = "logs"
	}
	if cfg.System.LogLevel == "" {
		cfg.System.LogLevel = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/mirage.db"
	}
	if cfg.API.ListenAddr == "" {
		cfg.API.ListenAddr = ":8070"
	}
	if cfg.LogRotation.MaxSizeMB == 0 {
		cfg.LogRotation.MaxSizeMB = 50
	}
	if cfg.LogRotation.MaxBackups == 0 {
		cfg.LogRotation.MaxBackups = 5
	}
	if cfg.LogRotation.MaxAgeDays == 0 {
		cfg.LogRotation.MaxAgeDays = 30
	}

	applyDeceptionDefaults(&cfg.Deception)
	applyScoringDefaults(&cfg.Scoring)
	applyResponseDefaults(&cfg.Response)
	applyNotificationDefaults(&cfg.Notifications)
}

func applyDeceptionDefaults(d *DeceptionConfig) {
	if d.EventBufferSize == 0 {
		d.EventBufferSize = 256
	}
	if d.LogCapacity == 0 {
		d.LogCapacity = 500
	}
	if d.SendGraceMS == 0 {
		d.SendGraceMS = 250
	}
	if len(d.Honeypots) == 0 {
		d.Honeypots = map[string]HoneypotTemplate{
			"fake_ssh": {
				Name:        "Fake SSH Server",
				Protocol:    "ssh",
				Port:        2222,
				Banner:      "SSH-2.0-OpenSSH_8.9p1 Ubuntu-3ubuntu0.1",
				Sensitivity: "high",
			},
			"fake_web": {
				Name:        "Fake Web Admin Panel",
				Protocol:    "http",
				Port:        8088,
				Banner:      "HTTP/1.1 200 OK\r\nServer: Apache/2.4.41 (Ubuntu)\r\n\r\n",
				Sensitivity: "medium",
			},
			"fake_db": {
				Name:        "Fake MySQL Database",
				Protocol:    "mysql",
				Port:        3307,
				Banner:      "5.7.35 MySQL Community Server",
				Sensitivity: "high",
			},
			"fake_ftp": {
				Name:        "Fake FTP Server",
				Protocol:    "ftp",
				Port:        2121,
				Banner:      "220 ProFTPD 1.3.5 Server ready.",
				Sensitivity: "medium",
			},
			"fake_telnet": {
				Name:        "Fake Telnet Service",
				Protocol:    "telnet",
				Port:        2323,
				Banner:      "Ubuntu 20.04 LTS\r\nlogin: ",
				Sensitivity: "high",
			},
		}
	}
	if len(d.PostureTable) == 0 {
		d.PostureTable = map[string][]string{
			"OFF":      {},
			"LOW":      {"fake_web"},
			"MEDIUM":   {"fake_ssh", "fake_web"},
			"HIGH":     {"fake_ssh", "fake_web", "fake_db"},
			"PARANOID": {"fake_ssh", "fake_web", "fake_db", "fake_ftp", "fake_telnet"},
		}
	}
}

func applyScoringDefaults(s *ScoringConfig) {
	if len(s.BaseScores) == 0 {
		s.BaseScores = map[string]float64{
			"deception_trap_triggered": 0.6,
			"ssh_auth_attempt":         0.65,
			"bruteforce":               0.7,
			"malware":                  0.9,
			"data_exfil":               0.85,
			"scanning":                 0.4,
			"web_request":              0.3,
			"connection_attempt":       0.35,
			"test_threat":              0.5,
		}
	}
	if s.RepeatStep == 0 {
		s.RepeatStep = 0.1
	}
	if s.RepeatCap == 0 {
		s.RepeatCap = 3
	}
	if s.SurgeStep == 0 {
		s.SurgeStep = 0.05
	}
	if s.SurgeThreshold == 0 {
		s.SurgeThreshold = 10
	}
	if s.RepeatWindowSeconds == 0 {
		s.RepeatWindowSeconds = 300
	}
}

func applyResponseDefaults(r *ResponseConfig) {
	if r.Workers == 0 {
		r.Workers = 8
	}
	if r.ActionTimeoutSeconds == 0 {
		r.ActionTimeoutSeconds = 30
	}
	if r.IncidentLogCapacity == 0 {
		r.IncidentLogCapacity = 200
	}
	if len(r.Policies) == 0 {
		r.Policies = map[string]PolicyRow{
			"ssh_auth_attempt":         {Actions: []string{"BLOCK_IP", "ALERT_ADMIN"}},
			"bruteforce":               {Actions: []string{"BLOCK_IP", "ALERT_ADMIN"}},
			"deception_trap_triggered": {Actions: []string{"BLOCK_IP", "ALERT_ADMIN"}},
			"malware":                  {Actions: []string{"ISOLATE_NETWORK", "BACKUP_DATA", "ALERT_ADMIN"}},
			"data_exfil":               {Actions: []string{"ISOLATE_NETWORK", "BACKUP_DATA", "ALERT_ADMIN"}},
		}
	}
	if len(r.Categories) == 0 {
		r.Categories = map[string]string{
			"scanning":           "scanning",
			"web_request":        "scanning",
			"connection_attempt": "scanning",
		}
	}
	if len(r.CategoryPolicies) == 0 {
		r.CategoryPolicies = map[string]PolicyRow{
			"scanning": {Actions: []string{"ALERT_ADMIN", "INCREASE_MONITORING"}},
		}
	}
}

func applyNotificationDefaults(n *NotificationsConfig) {
	// Default rules: alert on medium and above
	if !n.Rules.AlertOnCritical && !n.Rules.AlertOnHigh && !n.Rules.AlertOnMedium && !n.Rules.AlertOnLow {
		n.Rules.AlertOnCritical = true
		n.Rules.AlertOnHigh = true
		n.Rules.AlertOnMedium = true
	}
	if n.Webhooks.TimeoutSeconds == 0 {
		n.Webhooks.TimeoutSeconds = 10
	}
	if n.Webhooks.RetryCount == 0 {
		n.Webhooks.RetryCount = 3
	}
	if n.Slack.TimeoutSeconds == 0 {
		n.Slack.TimeoutSeconds = 10
	}
}
