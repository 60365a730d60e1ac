package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/bitrollup/da-syncer/cache"
	"github.com/bitrollup/da-syncer/config"
	syncerdb "github.com/bitrollup/da-syncer/db"
	"github.com/bitrollup/da-syncer/external"
	"github.com/bitrollup/da-syncer/logging"
	"github.com/bitrollup/da-syncer/restapi"
	"github.com/bitrollup/da-syncer/service"
)

func initFlags() {
	flag.String(config.FlagConfigPath, "", "config file path")
	flag.String(config.FlagConfigType, "", "config type, local or aws")
	flag.String(config.FlagConfigAwsRegion, "", "aws region")
	flag.String(config.FlagConfigAwsSecretKey, "", "aws secret key")
	flag.String(config.FlagConfigDbPass, "", "da-server db password")

	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.Parse()
	err := viper.BindPFlags(pflag.CommandLine)
	if err != nil {
		panic(err)
	}
}

func printUsage() {
	fmt.Print("usage: ./da-server --config-type local --config-path configFile\n")
	fmt.Print("usage: ./da-server --config-type aws --aws-region awsRegion --aws-secret-key awsSecretKey\n")
}

func main() {
	var cfg *config.ServerConfig
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
		cfg = config.ParseServerConfigFromJson(configContent)
	} else {
		configFilePath := viper.GetString(config.FlagConfigPath)
		if configFilePath == "" {
			configFilePath = os.Getenv(config.EnvVarConfigFilePath)
			if configFilePath == "" {
				printUsage()
				return
			}
		}
		cfg = config.ParseServerConfigFromFile(configFilePath)
	}
	if cfg == nil {
		panic("failed to get configuration")
	}
	overrideDBCredentials(&cfg.DBConfig)
	cfg.Validate()
	logging.InitLogger(&cfg.LogConfig)

	// migrations are owned by the syncer, the server only reads
	database := config.InitDBWithConfig(&cfg.DBConfig, false)
	daDB := syncerdb.NewDaSvcDB(database)

	cacheSvc, err := cache.NewLocalCache(cfg.CacheConfig.GetCacheSize())
	if err != nil {
		panic(fmt.Sprintf("init cache error, err=%s", err.Error()))
	}
	s3Client, err := external.NewS3Client(&cfg.ArchiveConfig)
	if err != nil {
		panic(fmt.Sprintf("init s3 client error, err=%s", err.Error()))
	}

	service.DaSvc = service.NewDaService(daDB, s3Client, cacheSvc, cfg)
	restapi.Serve(cfg)
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
