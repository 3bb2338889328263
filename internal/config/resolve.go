package config

import (
	"fmt"
	"os"
)

// ResolveDomain determines which domain directory mxlctl should operate
// against. Precedence:
//  1. flagDomain (from --domain flag)
//  2. envDomain (from MXL_DOMAIN env var)
//  3. .mxlrc walk-up from cwd
//  4. config.toml default_domain
func ResolveDomain(flagDomain, envDomain string) (string, error) {
	if flagDomain != "" {
		return flagDomain, nil
	}
	if envDomain != "" {
		return envDomain, nil
	}

	cwd, err := os.Getwd()
	if err == nil {
		if rcPath, err := FindMXLRC(cwd); err == nil && rcPath != "" {
			if domain, err := ReadMXLRC(rcPath); err == nil {
				return domain, nil
			}
		}
	}

	cfg, err := Load()
	if err == nil && cfg.DefaultDomain != "" {
		return cfg.DefaultDomain, nil
	}

	return "", fmt.Errorf("no domain configured; use --domain, set MXL_DOMAIN, create .mxlrc, or set default_domain in %s", ConfigPath())
}
