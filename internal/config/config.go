package config

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Bot          BotConfig
	Panel        PanelConfig
	Registration RegistrationConfig
	Catalog      CatalogConfig
	API          APIConfig
}

type ServerConfig struct {
	Port int
	Env  string // "development", "production"
}

type DatabaseConfig struct {
	Host    string
	Port    string
	Name    string
	User    string
	Pass    string
	Charset string
}

type RedisConfig struct {
	Addr string
	Pass string
	DB   int
}

type BotConfig struct {
	Token      string
	WebhookURL string
	Username   string
	AdminIDs   []int64
	// StateTTL bounds how long an abandoned conversation flow keeps its slot.
	StateTTL time.Duration
}

type PanelConfig struct {
	BaseURL  string
	Username string
	Password string
	// TokenLifetime is how long an admin token is trusted before
	// re-authenticating. Marzban tokens live longer server-side, but
	// refreshing early avoids racing the expiry.
	TokenLifetime time.Duration
	Timeout       time.Duration
}

type RegistrationConfig struct {
	UsernameMinLength int
	UsernameMaxLength int
	TrialDays         int
	DefaultProtocols  []string
	DataLimitGB       float64 // 0 = unlimited
}

type CatalogConfig struct {
	PlansFile          string
	PaymentMethodsFile string
}

type APIConfig struct {
	Key string
}

// Load reads configuration from .env file and environment variables.
func Load() (*Config, error) {
	// Load .env file (ignore error if missing)
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("APP_PORT", 8080)
	viper.SetDefault("APP_ENV", "production")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "3306")
	viper.SetDefault("DB_CHARSET", "utf8mb4")
	viper.SetDefault("REDIS_ADDR", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("BOT_STATE_TTL", "30m")
	viper.SetDefault("PANEL_TOKEN_LIFETIME", "25m")
	viper.SetDefault("PANEL_TIMEOUT", "30s")
	viper.SetDefault("USERNAME_MIN_LENGTH", 4)
	viper.SetDefault("USERNAME_MAX_LENGTH", 32)
	viper.SetDefault("TRIAL_DAYS", 3)
	viper.SetDefault("DEFAULT_PROTOCOLS", "vless")
	viper.SetDefault("DATA_LIMIT_GB", 0)
	viper.SetDefault("PLANS_FILE", "plans.json")
	viper.SetDefault("PAYMENT_METHODS_FILE", "payment_methods.json")

	adminIDs, err := parseAdminIDs(viper.GetString("BOT_ADMIN_IDS"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetInt("APP_PORT"),
			Env:  viper.GetString("APP_ENV"),
		},
		Database: DatabaseConfig{
			Host:    viper.GetString("DB_HOST"),
			Port:    viper.GetString("DB_PORT"),
			Name:    viper.GetString("DB_NAME"),
			User:    viper.GetString("DB_USER"),
			Pass:    viper.GetString("DB_PASS"),
			Charset: viper.GetString("DB_CHARSET"),
		},
		Redis: RedisConfig{
			Addr: viper.GetString("REDIS_ADDR"),
			Pass: viper.GetString("REDIS_PASS"),
			DB:   viper.GetInt("REDIS_DB"),
		},
		Bot: BotConfig{
			Token:      viper.GetString("BOT_TOKEN"),
			WebhookURL: viper.GetString("BOT_WEBHOOK_URL"),
			Username:   viper.GetString("BOT_USERNAME"),
			AdminIDs:   adminIDs,
			StateTTL:   viper.GetDuration("BOT_STATE_TTL"),
		},
		Panel: PanelConfig{
			BaseURL:       strings.TrimRight(viper.GetString("PANEL_URL"), "/"),
			Username:      viper.GetString("PANEL_USERNAME"),
			Password:      viper.GetString("PANEL_PASSWORD"),
			TokenLifetime: viper.GetDuration("PANEL_TOKEN_LIFETIME"),
			Timeout:       viper.GetDuration("PANEL_TIMEOUT"),
		},
		Registration: RegistrationConfig{
			UsernameMinLength: viper.GetInt("USERNAME_MIN_LENGTH"),
			UsernameMaxLength: viper.GetInt("USERNAME_MAX_LENGTH"),
			TrialDays:         viper.GetInt("TRIAL_DAYS"),
			DefaultProtocols:  splitList(viper.GetString("DEFAULT_PROTOCOLS")),
			DataLimitGB:       viper.GetFloat64("DATA_LIMIT_GB"),
		},
		Catalog: CatalogConfig{
			PlansFile:          viper.GetString("PLANS_FILE"),
			PaymentMethodsFile: viper.GetString("PAYMENT_METHODS_FILE"),
		},
		API: APIConfig{
			Key: viper.GetString("API_KEY"),
		},
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	var missing []string
	if c.Bot.Token == "" {
		missing = append(missing, "BOT_TOKEN")
	}
	if c.Panel.BaseURL == "" {
		missing = append(missing, "PANEL_URL")
	}
	if c.Panel.Username == "" {
		missing = append(missing, "PANEL_USERNAME")
	}
	if c.Panel.Password == "" {
		missing = append(missing, "PANEL_PASSWORD")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if len(c.Bot.AdminIDs) == 0 {
		log.Println("WARNING: BOT_ADMIN_IDS is empty, payment claims cannot be approved")
	}
	if c.Database.Name == "" {
		log.Println("WARNING: DB_NAME is not set")
	}
	return nil
}

// IsAdmin reports whether the chat ID belongs to a configured administrator.
func (c *Config) IsAdmin(chatID int64) bool {
	for _, id := range c.Bot.AdminIDs {
		if id == chatID {
			return true
		}
	}
	return false
}

func parseAdminIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid admin ID %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// DSN returns the MySQL DSN string for GORM.
func (d *DatabaseConfig) DSN() string {
	return d.User + ":" + d.Pass + "@tcp(" + d.Host + ":" + d.Port + ")/" + d.Name + "?charset=" + d.Charset + "&parseTime=True&loc=Local"
}
