package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LoadConfig loads config.json from the working directory, creating it with defaults
// when missing. Values from a .env file and the environment override the file.
func LoadConfig() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Printf("Warning: failed to load .env file: %v\n", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()
	viper.BindEnv("mint_authority_secret", "MINT_AUTHORITY_SECRET_KEY")
	viper.BindEnv("github_token", "GITHUB_TOKEN")

	env := viper.GetString("ENV")
	if env == "" {
		env = "development"
		viper.Set("ENV", env)
	}
	setDefaults(viper.GetViper(), env)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createDefaultConfig(env)
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// setDefaults sets default configuration values based on the environment
func setDefaults(v *viper.Viper, env string) {
	if env == "development" {
		v.SetDefault("rpc_endpoint", "https://api.devnet.solana.com")
		v.SetDefault("allowed_origin", "http://localhost:3000")
		v.SetDefault("db_path", "./dev_claims.db")
		v.SetDefault("log_file", "./claimd.log")
	} else if env == "production" {
		v.SetDefault("rpc_endpoint", "https://api.mainnet-beta.solana.com")
		v.SetDefault("allowed_origin", "https://my-production-site.com")
		v.SetDefault("db_path", "/var/lib/claimd/claims.db")
		v.SetDefault("log_file", "/var/log/claimd/claimd.log")
	}

	v.SetDefault("mint_address", "H4bLS9gYGfrHL2CfbtqRf4HhixyXqEXoinFExBdvMrkT")
	v.SetDefault("mint_decimals", 9)
	v.SetDefault("mint_authority_secret", "")
	v.SetDefault("mint_authority_keyfile", "")
	v.SetDefault("mint_authority_passphrase", "")
	v.SetDefault("commitment", "confirmed")
	v.SetDefault("confirm_timeout", "60s")
	v.SetDefault("confirm_poll_interval", "2s")
	v.SetDefault("db_driver", "sqlite")
	v.SetDefault("db_dsn", "")
	v.SetDefault("api_port", 9003)
	v.SetDefault("jwt_keys_dir", "./jwtkeys")
	v.SetDefault("refresh_interval", "10m")
	v.SetDefault("github_token", "")
	v.SetDefault("github_user", "")
	v.SetDefault("github_repos", []string{})
	v.SetDefault("events_file", "")
}

// createDefaultConfig creates a new configuration file if it doesn't exist. The file
// holds defaults only; values from the environment stay in memory.
func createDefaultConfig(env string) error {
	defaults := viper.New()
	defaults.SetConfigName("config")
	defaults.SetConfigType("json")
	defaults.AddConfigPath(".")
	defaults.Set("ENV", env)
	setDefaults(defaults, env)

	err := defaults.SafeWriteConfig()
	if err != nil {
		if os.IsExist(err) {
			err = defaults.WriteConfig()
			if err != nil {
				return fmt.Errorf("error writing config file: %w", err)
			}
		} else {
			return fmt.Errorf("error creating config file: %w", err)
		}
	}

	fmt.Println("Created default configuration file")
	return nil
}

// Settings is the typed view of the loaded configuration.
type Settings struct {
	RPCEndpoint             string
	MintAddress             string
	MintDecimals            uint8
	MintAuthoritySecret     string
	MintAuthorityKeyfile    string
	MintAuthorityPassphrase string
	Commitment              string
	ConfirmTimeout          time.Duration
	ConfirmPollInterval     time.Duration
	DBDriver                string
	DBPath                  string
	DBDSN                   string
	APIPort                 int
	AllowedOrigin           string
	JWTKeysDir              string
	RefreshInterval         time.Duration
	LogFile                 string
	GitHubToken             string
	GitHubUser              string
	GitHubRepos             []string
	EventsFile              string
}

// Current reads the settings from viper.
func Current() Settings {
	return Settings{
		RPCEndpoint:             viper.GetString("rpc_endpoint"),
		MintAddress:             strings.TrimSpace(viper.GetString("mint_address")),
		MintDecimals:            uint8(viper.GetUint("mint_decimals")),
		MintAuthoritySecret:     viper.GetString("mint_authority_secret"),
		MintAuthorityKeyfile:    viper.GetString("mint_authority_keyfile"),
		MintAuthorityPassphrase: viper.GetString("mint_authority_passphrase"),
		Commitment:              viper.GetString("commitment"),
		ConfirmTimeout:          viper.GetDuration("confirm_timeout"),
		ConfirmPollInterval:     viper.GetDuration("confirm_poll_interval"),
		DBDriver:                viper.GetString("db_driver"),
		DBPath:                  viper.GetString("db_path"),
		DBDSN:                   viper.GetString("db_dsn"),
		APIPort:                 viper.GetInt("api_port"),
		AllowedOrigin:           viper.GetString("allowed_origin"),
		JWTKeysDir:              viper.GetString("jwt_keys_dir"),
		RefreshInterval:         viper.GetDuration("refresh_interval"),
		LogFile:                 viper.GetString("log_file"),
		GitHubToken:             viper.GetString("github_token"),
		GitHubUser:              viper.GetString("github_user"),
		GitHubRepos:             viper.GetStringSlice("github_repos"),
		EventsFile:              viper.GetString("events_file"),
	}
}

// DatabaseDSN returns the connection string for the configured driver.
func (s Settings) DatabaseDSN() string {
	if s.DBDriver == "postgres" {
		return s.DBDSN
	}
	return s.DBPath
}

// Validate checks the settings every claim needs. The mint authority is checked
// separately when it is loaded.
func (s Settings) Validate() error {
	var missing []string
	if strings.TrimSpace(s.RPCEndpoint) == "" {
		missing = append(missing, "rpc_endpoint")
	}
	if s.MintAddress == "" {
		missing = append(missing, "mint_address")
	}
	switch s.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("invalid commitment %q", s.Commitment)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}
