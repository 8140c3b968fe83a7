// Package config loads the imapbox account file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Accounts map[string]Account `yaml:"accounts"`
}

// Account is one IMAP login. AccessToken selects XOAUTH2 instead of
// LOGIN with Password.
type Account struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	AccessToken   string `yaml:"accessToken"`
	SkipTLSVerify bool   `yaml:"skipTLSVerify"`
}

// UsesOAuth2 reports whether the account authenticates with XOAUTH2.
func (a Account) UsesOAuth2() bool {
	return a.AccessToken != ""
}

// LoadFile loads the configuration from the file
func LoadFile(fileName string) (*Config, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	return Load(file)
}

// Load reads and validates a configuration, closing reader.
func Load(reader io.ReadCloser) (*Config, error) {
	defer reader.Close()
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)
	config := &Config{}
	if err := decoder.Decode(config); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty configuration")
		}
		return nil, err
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	if len(c.Accounts) == 0 {
		return errors.New("no account defined")
	}
	for name, account := range c.Accounts {
		if account.Host == "" {
			return fmt.Errorf("account %q: missing host", name)
		}
		if account.Username == "" {
			return fmt.Errorf("account %q: missing username", name)
		}
		if account.Password == "" && account.AccessToken == "" {
			return fmt.Errorf("account %q: either password or accessToken is required", name)
		}
		if account.Password != "" && account.AccessToken != "" {
			return fmt.Errorf("account %q: password and accessToken are mutually exclusive", name)
		}
		if account.Port < 0 || account.Port > 65535 {
			return fmt.Errorf("account %q: invalid port %d", name, account.Port)
		}
	}
	return nil
}

// Account returns the named account.
func (c *Config) Account(name string) (Account, error) {
	account, ok := c.Accounts[name]
	if !ok {
		return Account{}, fmt.Errorf("account not found: %s", name)
	}
	return account, nil
}
