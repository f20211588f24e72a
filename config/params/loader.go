package params

import (
	"io/ioutil"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// LoadConfigFile reads a yaml file of CONSTANT_NAME: value pairs and
// applies it over the mainnet defaults. Unknown keys are rejected so that
// typos in network config files fail loudly.
func LoadConfigFile(path string) error {
	yamlFile, err := ioutil.ReadFile(path) // #nosec G304
	if err != nil {
		return errors.Wrap(err, "could not read network config file")
	}
	conf := MainnetConfig().Copy()
	if err := yaml.UnmarshalStrict(yamlFile, conf); err != nil {
		return errors.Wrap(err, "could not parse network config yaml")
	}
	if conf.ConfigName == "" {
		conf.ConfigName = "custom"
	}
	log.WithField("config", conf.ConfigName).Debug("Loaded network config file")
	OverrideKarstConfig(conf)
	return nil
}
