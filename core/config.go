package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Debug           bool
		TestMode        bool
		AppName         string
		Env             string
		Build           string
		SecretKey       string
		FrontendBaseURL string
		WorkDir         string
		RollbarToken    string

		Server        ServerConfig
		Database      DatabaseConfig
		Mail          MailConfig
		Notifications NotificationsConfig
		Delivery      DeliveryConfig
		Automation    AutomationConfig
		RateLimit     RateLimitConfig
		Client        ClientConfig
	}

	ServerConfig struct {
		Host               string
		DebugHost          string
		ShutdownTimeout    time.Duration
		RequestTimeout     time.Duration
		JWTExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string // postgres | sqlite
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		Path          string // sqlite only
	}

	MailConfig struct {
		Backend          string // console | sendgrid | smtp
		DefaultFromName  string
		DefaultFromEmail string
		SendgridApiKey   string
		SMTPHost         string
		SMTPPort         int
		SMTPUser         string
		SMTPPassword     string
	}

	NotificationsConfig struct {
		DefaultPageSize int
		MaxPageSize     int
		SweepInterval   time.Duration
	}

	DeliveryConfig struct {
		OutboxSize   int
		WriteTimeout time.Duration
		PingInterval time.Duration
	}

	AutomationConfig struct {
		RuleCacheTTL time.Duration
		EventTimeout time.Duration
		SeedDefaults bool
	}

	RateLimitConfig struct {
		RPS   float64
		Burst int
	}

	ClientConfig struct {
		BaseURL      string
		PollInterval time.Duration
		MaxAttempts  int
	}
)

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, db.Port)
}

func (conf *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: conf.Mail.DefaultFromName, Address: conf.Mail.DefaultFromEmail}
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Masomo")
	v.SetDefault("build", "dev")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", "0.0.0.0:8000")
	v.SetDefault("server.debugHost", "0.0.0.0:4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.requestTimeout", 10*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "masomo")
	v.SetDefault("database.user", "masomo")
	v.SetDefault("database.password", "masomo")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.path", "masomo.db")

	v.SetDefault("mail.backend", "console")
	v.SetDefault("mail.defaultFromName", "Masomo")
	v.SetDefault("mail.defaultFromEmail", "noreply@localhost")
	v.SetDefault("mail.sendgridApiKey", "")
	v.SetDefault("mail.smtpHost", "localhost")
	v.SetDefault("mail.smtpPort", 1025)
	v.SetDefault("mail.smtpUser", "")
	v.SetDefault("mail.smtpPassword", "")

	v.SetDefault("notifications.defaultPageSize", 20)
	v.SetDefault("notifications.maxPageSize", 100)
	v.SetDefault("notifications.sweepInterval", time.Hour)

	v.SetDefault("delivery.outboxSize", 32)
	v.SetDefault("delivery.writeTimeout", 10*time.Second)
	v.SetDefault("delivery.pingInterval", 30*time.Second)

	v.SetDefault("automation.ruleCacheTTL", time.Minute)
	v.SetDefault("automation.eventTimeout", 30*time.Second)
	v.SetDefault("automation.seedDefaults", false)

	v.SetDefault("rateLimit.rps", 5.0)
	v.SetDefault("rateLimit.burst", 20)

	v.SetDefault("client.baseURL", "http://localhost:8000")
	v.SetDefault("client.pollInterval", 2*time.Minute)
	v.SetDefault("client.maxAttempts", 3)
}

// NewConfig loads the app configuration from defaults, `config/.env.<env>` and environment variables.
// Environment variables are prefixed with the current ENV, e.g. `PROD_DATABASE_HOST`.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	case "QA", "PROD":
		v.SetDefault("debug", false)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Debug:           v.GetBool("debug"),
		TestMode:        v.GetBool("testMode"),
		AppName:         v.GetString("appName"),
		Env:             env,
		Build:           v.GetString("build"),
		SecretKey:       v.GetString("secretKey"),
		FrontendBaseURL: v.GetString("frontendBaseURL"),
		WorkDir:         wd,
		RollbarToken:    v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			DebugHost:          v.GetString("server.debugHost"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			RequestTimeout:     v.GetDuration("server.requestTimeout"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			Path:          v.GetString("database.path"),
		},
		Mail: MailConfig{
			Backend:          v.GetString("mail.backend"),
			DefaultFromName:  v.GetString("mail.defaultFromName"),
			DefaultFromEmail: v.GetString("mail.defaultFromEmail"),
			SendgridApiKey:   v.GetString("mail.sendgridApiKey"),
			SMTPHost:         v.GetString("mail.smtpHost"),
			SMTPPort:         v.GetInt("mail.smtpPort"),
			SMTPUser:         v.GetString("mail.smtpUser"),
			SMTPPassword:     v.GetString("mail.smtpPassword"),
		},
		Notifications: NotificationsConfig{
			DefaultPageSize: v.GetInt("notifications.defaultPageSize"),
			MaxPageSize:     v.GetInt("notifications.maxPageSize"),
			SweepInterval:   v.GetDuration("notifications.sweepInterval"),
		},
		Delivery: DeliveryConfig{
			OutboxSize:   v.GetInt("delivery.outboxSize"),
			WriteTimeout: v.GetDuration("delivery.writeTimeout"),
			PingInterval: v.GetDuration("delivery.pingInterval"),
		},
		Automation: AutomationConfig{
			RuleCacheTTL: v.GetDuration("automation.ruleCacheTTL"),
			EventTimeout: v.GetDuration("automation.eventTimeout"),
			SeedDefaults: v.GetBool("automation.seedDefaults"),
		},
		RateLimit: RateLimitConfig{
			RPS:   v.GetFloat64("rateLimit.rps"),
			Burst: v.GetInt("rateLimit.burst"),
		},
		Client: ClientConfig{
			BaseURL:      v.GetString("client.baseURL"),
			PollInterval: v.GetDuration("client.pollInterval"),
			MaxAttempts:  v.GetInt("client.maxAttempts"),
		},
	}
}

// NewTestConfig returns the default configuration in TEST mode without touching the environment.
func NewTestConfig() *Config {
	v := viper.New()
	setDefaults(v)
	v.Set("testMode", true)
	v.Set("debug", false)

	conf := &Config{
		Debug:           false,
		TestMode:        true,
		AppName:         v.GetString("appName"),
		Env:             "TEST",
		Build:           "test",
		SecretKey:       v.GetString("secretKey"),
		FrontendBaseURL: v.GetString("frontendBaseURL"),
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			RequestTimeout:     v.GetDuration("server.requestTimeout"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
		},
		Database: DatabaseConfig{Engine: "sqlite", Path: ":memory:"},
		Mail: MailConfig{
			Backend:          "console",
			DefaultFromName:  v.GetString("mail.defaultFromName"),
			DefaultFromEmail: v.GetString("mail.defaultFromEmail"),
		},
		Notifications: NotificationsConfig{
			DefaultPageSize: v.GetInt("notifications.defaultPageSize"),
			MaxPageSize:     v.GetInt("notifications.maxPageSize"),
			SweepInterval:   v.GetDuration("notifications.sweepInterval"),
		},
		Delivery: DeliveryConfig{
			OutboxSize:   v.GetInt("delivery.outboxSize"),
			WriteTimeout: v.GetDuration("delivery.writeTimeout"),
			PingInterval: v.GetDuration("delivery.pingInterval"),
		},
		Automation: AutomationConfig{
			RuleCacheTTL: v.GetDuration("automation.ruleCacheTTL"),
			EventTimeout: v.GetDuration("automation.eventTimeout"),
		},
		RateLimit: RateLimitConfig{
			RPS:   v.GetFloat64("rateLimit.rps"),
			Burst: v.GetInt("rateLimit.burst"),
		},
		Client: ClientConfig{
			BaseURL:      v.GetString("client.baseURL"),
			PollInterval: v.GetDuration("client.pollInterval"),
			MaxAttempts:  v.GetInt("client.maxAttempts"),
		},
	}
	return conf
}
