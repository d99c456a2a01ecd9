package common

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Config is representation of the configuration data
type Config struct {
	ListenAddress      string             `json:"listenAddress"`
	Accounts           map[string]Account `json:"accounts"`
	MetadataRepository Repository         `json:"repository"`
	Token              string             `json:"token"`
	LogLevel           string             `json:"logLevel"`
	Org                string             `json:"org"`
	Version            Version            `json:"-"`
}

// Account is the configuration for an individual account
type Account struct {
	Region   string `json:"region"`
	Akid     string `json:"akid"`
	Secret   string `json:"secret"`
	Endpoint string `json:"endpoint"`
}

// Repository is the configuration for a metadata repository backend
type Repository struct {
	Type   string                 `json:"type"`
	Config map[string]interface{} `json:"config"`
}

// Version carries around the API version information
type Version struct {
	Version           string
	VersionPrerelease string
	BuildStamp        string
	GitHash           string
}

// ReadConfig decodes the configuration from an io Reader
func ReadConfig(r io.Reader) (Config, error) {
	var c Config
	log.Infoln("Reading configuration")
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return c, errors.Wrap(err, "unable to decode JSON message")
	}
	return c, nil
}
