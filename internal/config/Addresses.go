package config

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

// Protocol account overrides loaded from environment variables.
// A zero address means the deployment's own default is kept.
var (
	// GovernanceAddress may change the allowlist, parameters, partners and ranking size.
	GovernanceAddress common.Address
	// TreasuryAddress receives the treasury share and rounding dust.
	TreasuryAddress common.Address
	// EcosystemAddress receives the ecosystem share.
	EcosystemAddress common.Address
	// CustodyAddress is the distributor account that receives claims and emissions.
	CustodyAddress common.Address
)

// loadAddressConfig loads the protocol account overrides.
// This function is called by LoadConfig() in General.go.
func loadAddressConfig() error {
	var err error

	if GovernanceAddress, err = getEnvAsAddress("VOTESNAP_GOVERNANCE"); err != nil {
		return err
	}
	if TreasuryAddress, err = getEnvAsAddress("VOTESNAP_TREASURY"); err != nil {
		return err
	}
	if EcosystemAddress, err = getEnvAsAddress("VOTESNAP_ECOSYSTEM"); err != nil {
		return err
	}
	if CustodyAddress, err = getEnvAsAddress("VOTESNAP_CUSTODY"); err != nil {
		return err
	}

	log.Debug().
		Str("Governance", GovernanceAddress.Hex()).
		Str("Treasury", TreasuryAddress.Hex()).
		Str("Ecosystem", EcosystemAddress.Hex()).
		Str("Custody", CustodyAddress.Hex()).
		Msg("Address configuration loaded successfully.")

	return nil
}

// getEnvAsAddress retrieves an optional hex address. Unset yields the zero address.
func getEnvAsAddress(key string) (common.Address, error) {
	valueStr, err := getEnv(key)
	if err != nil || valueStr == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(valueStr) {
		return common.Address{}, errors.New("environment variable " + key + " must be a hex address, got: " + valueStr)
	}
	return common.HexToAddress(valueStr), nil
}

// OrDefault returns a unless it is the zero address.
func OrDefault(a, def common.Address) common.Address {
	if a == (common.Address{}) {
		return def
	}
	return a
}
