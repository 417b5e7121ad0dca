package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Account is the credential bundle for one destination account.
type Account struct {
	Name            string `yaml:"name"`
	Host            string `yaml:"host,omitempty"`
	Identifier      string `yaml:"identifier"`
	Password        string `yaml:"password"`
	AuthFactorToken string `yaml:"auth_factor_token,omitempty"`
}

// Accounts holds credentials keyed by account name.
type Accounts map[string]Account

// LoadAccounts reads the accounts file. Passwords may reference an
// environment variable with the "env:NAME" form.
func LoadAccounts(path string) (Accounts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading accounts: %w", err)
	}
	var doc struct {
		Accounts []Account `yaml:"accounts"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing accounts %s: %w", path, err)
	}

	out := make(Accounts, len(doc.Accounts))
	for i, a := range doc.Accounts {
		if a.Name == "" {
			return nil, fmt.Errorf("account %d: name is required", i)
		}
		if _, dup := out[a.Name]; dup {
			return nil, fmt.Errorf("account %q: duplicate name", a.Name)
		}
		a.Password = expandEnv(a.Password)
		a.AuthFactorToken = expandEnv(a.AuthFactorToken)
		out[a.Name] = a
	}
	return out, nil
}

// Lookup returns the credentials for name.
func (a Accounts) Lookup(name string) (Account, error) {
	acct, ok := a[name]
	if !ok {
		return Account{}, fmt.Errorf("no credentials for account %q", name)
	}
	if acct.Identifier == "" || acct.Password == "" {
		return Account{}, fmt.Errorf("account %q: identifier and password are required", name)
	}
	return acct, nil
}

func expandEnv(v string) string {
	if name, ok := strings.CutPrefix(v, "env:"); ok {
		return os.Getenv(name)
	}
	return v
}
