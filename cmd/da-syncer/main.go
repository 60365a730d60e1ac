package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/bitrollup/da-syncer/config"
	syncerdb "github.com/bitrollup/da-syncer/db"
	"github.com/bitrollup/da-syncer/logging"
	"github.com/bitrollup/da-syncer/metrics"
	"github.com/bitrollup/da-syncer/syncer"
)

func initFlags() {
	flag.String(config.FlagConfigPath, "", "config file path")
	flag.String(config.FlagConfigType, "", "config type, local or aws")
	flag.String(config.FlagConfigAwsRegion, "", "aws region")
	flag.String(config.FlagConfigAwsSecretKey, "", "aws secret key")
	flag.String(config.FlagConfigDbPass, "", "da-syncer db password")

	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.Parse()
	err := viper.BindPFlags(pflag.CommandLine)
	if err != nil {
		panic(err)
	}
}

func printUsage() {
	fmt.Print("usage: ./da-syncer --config-type local --config-path configFile\n")
	fmt.Print("usage: ./da-syncer --config-type aws --aws-region awsRegion --aws-secret-key awsSecretKey\n")
}

func main() {
	var cfg *config.SyncerConfig
	initFlags()
	configType := viper.GetString(config.FlagConfigType)
	if configType == "" {
		configType = os.Getenv(config.EnvVarConfigType)
	}
	if configType != config.AWSConfig && configType != config.LocalConfig {
		printUsage()
		return
	}
	if configType == config.AWSConfig {
		awsSecretKey := viper.GetString(config.FlagConfigAwsSecretKey)
		if awsSecretKey == "" {
			printUsage()
			return
		}
		awsRegion := viper.GetString(config.FlagConfigAwsRegion)
		if awsRegion == "" {
			printUsage()
			return
		}
		configContent, err := config.GetSecret(awsSecretKey, awsRegion)
		if err != nil {
			fmt.Printf("get aws config error, err=%s", err.Error())
			return
		}
		cfg = config.ParseSyncerConfigFromJson(configContent)
	} else {
		configFilePath := viper.GetString(config.FlagConfigPath)
		if configFilePath == "" {
			configFilePath = os.Getenv(config.EnvVarConfigFilePath)
			if configFilePath == "" {
				printUsage()
				return
			}
		}
		cfg = config.ParseSyncerConfigFromFile(configFilePath)
	}
	if cfg == nil {
		panic("failed to get configuration")
	}
	overrideDBCredentials(&cfg.DBConfig)
	cfg.Validate()
	logging.InitLogger(&cfg.LogConfig)

	database := config.InitDBWithConfig(&cfg.DBConfig, true)
	daDB := syncerdb.NewDaSvcDB(database)

	if cfg.MetricsConfig.Enable {
		metrics.NewMetrics(cfg.MetricsConfig.HTTPAddress).Start()
	}

	ds := syncer.NewDaSyncer(daDB, cfg)
	go ds.StartLoop()
	select {}
}

// overrideDBCredentials lets deployments keep DB credentials out of the
// config file, via the db-pass flag or environment variables.
func overrideDBCredentials(cfg *config.DBConfig) {
	if username := os.Getenv(config.EnvVarDBUserName); username != "" {
		cfg.Username = username
	}
	password := viper.GetString(config.FlagConfigDbPass)
	if password == "" {
		password = os.Getenv(config.EnvVarDBUserPass)
	}
	if password != "" {
		cfg.Password = password
	}
}
