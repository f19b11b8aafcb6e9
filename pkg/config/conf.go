package config

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

const (
	configFileName = "config.yaml"
	envFileName    = ".env"
	dirMode        = 0700
	fileMode       = 0600

	driverSQLite   = "sqlite"
	driverPostgres = "postgres"

	// KeyringService is the OS keychain service the database password is stored under.
	KeyringService = "forecast"

	defaultPort     = 8080
	defaultPGPort   = 5432
	defaultSSLMode  = "disable"
	defaultLogLevel = "info"
)

// Config represents app config object.
type Config struct {
	DB       DBConfig     `yaml:"db"`
	Server   ServerConfig `yaml:"server"`
	LogLevel string       `yaml:"log_level"`
}

// DBConfig selects and locates the database.
type DBConfig struct {
	Driver  string `yaml:"driver"`
	Path    string `yaml:"path,omitempty"`
	DSN     string `yaml:"dsn,omitempty"`
	Host    string `yaml:"host,omitempty"`
	Port    int    `yaml:"port,omitempty"`
	Name    string `yaml:"name,omitempty"`
	User    string `yaml:"user,omitempty"`
	SSLMode string `yaml:"sslmode,omitempty"`

	// password never touches the config file
	password string
}

// ServerConfig configures the local API server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

func getDefaultConfig(dirPath string) *Config {
	return &Config{
		DB: DBConfig{
			Driver: driverSQLite,
			Path:   filepath.Join(dirPath, "data.db"),
		},
		Server:   ServerConfig{Port: defaultPort},
		LogLevel: defaultLogLevel,
	}
}

// Save writes the config to the config file in dirPath.
func Save(dirPath string, c *Config) error {
	if dirPath == "" {
		return errors.New("config directory required")
	}
	if c == nil {
		return errors.New("config required")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	path := filepath.Join(dirPath, configFileName)
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return errors.Wrapf(err, "failed to write config file: %s", configFileName)
	}
	return nil
}

// ReadOrCreate reads app config from directory or creates a new one.
func ReadOrCreate(dirPath string) (*Config, error) {
	if dirPath == "" {
		return nil, errors.New("config directory required")
	}

	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		err := os.MkdirAll(dirPath, dirMode)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create dir: %s", dirPath)
		}
	}

	path := filepath.Join(dirPath, configFileName)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := Save(dirPath, getDefaultConfig(dirPath)); err != nil {
			return nil, errors.Wrap(err, "failed to create default config")
		}
	}

	j, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening config file: %s", path)
	}
	defer j.Close()

	b, err := io.ReadAll(j)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading config file %s", path)
	}

	c := getDefaultConfig(dirPath)
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, errors.Wrapf(err, "error unmarshalling config file %s", path)
	}
	return c, nil
}

// Load reads the config in dirPath and applies overrides from a .env file
// in dirPath or the working directory and from the environment.
func Load(dirPath string) (*Config, error) {
	c, err := ReadOrCreate(dirPath)
	if err != nil {
		return nil, err
	}

	for _, p := range []string{filepath.Join(dirPath, envFileName), envFileName} {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		// existing environment variables win over .env values
		if err := godotenv.Load(p); err != nil {
			return nil, errors.Wrapf(err, "error loading env file: %s", p)
		}
		slog.Debug("env file loaded", "path", p)
	}

	if err := c.ApplyEnv(); err != nil {
		return nil, err
	}
	return c, nil
}

// ApplyEnv overrides config values with FORECAST_* and DB_* environment variables.
func (c *Config) ApplyEnv() error {
	setString(&c.DB.Driver, "FORECAST_DB_DRIVER")
	setString(&c.DB.Path, "FORECAST_DB_PATH")
	setString(&c.DB.DSN, "FORECAST_DB_DSN", "DB_CONNECTION_STRING")
	setString(&c.DB.Host, "DB_HOST")
	setString(&c.DB.Name, "DB_NAME")
	setString(&c.DB.User, "DB_USER")
	setString(&c.DB.SSLMode, "DB_SSLMODE")
	setString(&c.DB.password, "DB_PASSWORD")
	setString(&c.LogLevel, "FORECAST_LOG_LEVEL")

	if err := setInt(&c.DB.Port, "DB_PORT"); err != nil {
		return err
	}
	if err := setInt(&c.Server.Port, "FORECAST_PORT"); err != nil {
		return err
	}

	// DB_HOST without an explicit driver selects postgres
	if os.Getenv("DB_HOST") != "" && os.Getenv("FORECAST_DB_DRIVER") == "" {
		c.DB.Driver = driverPostgres
	}
	return nil
}

func setString(target *string, keys ...string) {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			*target = v
			return
		}
	}
}

func setInt(target *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return errors.Wrapf(err, "invalid %s value: %s", key, v)
	}
	*target = i
	return nil
}

// Source returns the driver and data source name to open the database with.
func (c *Config) Source() (driver, dsn string, err error) {
	switch c.DB.Driver {
	case driverSQLite, "":
		if c.DB.Path == "" {
			return "", "", errors.New("sqlite database path required")
		}
		return driverSQLite, c.DB.Path, nil
	case driverPostgres:
		dsn, err := c.DB.postgresDSN()
		if err != nil {
			return "", "", err
		}
		return driverPostgres, dsn, nil
	default:
		return "", "", errors.Errorf("unsupported database driver: %s", c.DB.Driver)
	}
}

func (d *DBConfig) postgresDSN() (string, error) {
	if d.DSN != "" {
		return d.DSN, nil
	}
	if d.Host == "" || d.Name == "" || d.User == "" {
		return "", errors.New("postgres requires either dsn or host, name and user")
	}

	port := d.Port
	if port == 0 {
		port = defaultPGPort
	}
	mode := d.SSLMode
	if mode == "" {
		mode = defaultSSLMode
	}

	u := &url.URL{
		Scheme:   "postgres",
		Host:     fmt.Sprintf("%s:%d", d.Host, port),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": []string{mode}}.Encode(),
	}

	pwd := d.password
	if pwd == "" {
		var err error
		if pwd, err = GetPassword(d.User); err != nil {
			slog.Debug("no database password in keychain", "user", d.User, "error", err)
		}
	}
	if pwd != "" {
		u.User = url.UserPassword(d.User, pwd)
	} else {
		u.User = url.User(d.User)
	}

	return u.String(), nil
}

// SavePassword stores the database password for user in the OS keychain.
func SavePassword(user, password string) error {
	if user == "" || password == "" {
		return errors.New("user and password required")
	}
	if err := keyring.Set(KeyringService, user, password); err != nil {
		return errors.Wrap(err, "failed to save password to keychain")
	}
	return nil
}

// GetPassword reads the database password for user from the OS keychain.
func GetPassword(user string) (string, error) {
	pwd, err := keyring.Get(KeyringService, user)
	if err != nil {
		return "", errors.Wrap(err, "failed to read password from keychain")
	}
	return pwd, nil
}

// DeletePassword removes the database password for user from the OS keychain.
func DeletePassword(user string) error {
	if err := keyring.Delete(KeyringService, user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return errors.Wrap(err, "failed to delete password from keychain")
	}
	return nil
}

// GetOrCreateHomeDir returns the home directory for the current user.
// The create flag is set to true if the directory was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, errors.Wrap(err, "failed to get user home dir")
	}
	slog.Debug("home dir", "path", home)

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dir)
		err := os.Mkdir(dir, dirMode)
		if err != nil {
			return "", false, errors.Wrapf(err, "failed to create dir: %s", dir)
		}
		created = true
	}
	return dir, created, nil
}
