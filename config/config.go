package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/bitrollup/da-syncer/cache"
)

type SyncerConfig struct {
	LogConfig     LogConfig     `json:"log_config"`
	DBConfig      DBConfig      `json:"db_config"`
	ChainConfig   ChainConfig   `json:"chain_config"`
	ArchiveConfig ArchiveConfig `json:"archive_config"`
	MetricsConfig MetricsConfig `json:"metrics_config"`
}

func (cfg *SyncerConfig) Validate() {
	cfg.LogConfig.Validate()
	cfg.DBConfig.Validate()
	cfg.ChainConfig.Validate()
	cfg.ArchiveConfig.Validate()
}

type ServerConfig struct {
	LogConfig     LogConfig     `json:"log_config"`
	DBConfig      DBConfig      `json:"db_config"`
	CacheConfig   CacheConfig   `json:"cache_config"`
	ArchiveConfig ArchiveConfig `json:"archive_config"`
	ListenAddr    string        `json:"listen_addr"`
}

func (cfg *ServerConfig) Validate() {
	cfg.LogConfig.Validate()
	cfg.DBConfig.Validate()
	if cfg.ListenAddr == "" {
		panic("listen_addr should not be empty")
	}
}

type ChainConfig struct {
	RPCAddrs          []string `json:"rpc_addrs"`          // RPCAddrs is a list of base chain JSON-RPC addresses
	RPCUser           string   `json:"rpc_user"`           // RPCUser is the basic-auth user of the chain node
	RPCPass           string   `json:"rpc_pass"`           // RPCPass is the basic-auth password of the chain node
	EnvelopeMagic     string   `json:"envelope_magic"`     // EnvelopeMagic is the hex of the 4-byte tag prefixing every DA OP_RETURN output
	StartHeight       uint64   `json:"start_height"`       // StartHeight is used to init the syncer which height to sync from
	ConfirmationDepth uint64   `json:"confirmation_depth"` // ConfirmationDepth is how deep a block must be before it is scanned
}

func (cfg *ChainConfig) Validate() {
	if len(cfg.RPCAddrs) == 0 {
		panic("rpc_addrs should not be empty")
	}
	bz, err := hex.DecodeString(cfg.EnvelopeMagic)
	if err != nil || len(bz) != 4 {
		panic(fmt.Sprintf("envelope_magic must be 4 bytes of hex, got %q", cfg.EnvelopeMagic))
	}
}

// Magic returns the decoded envelope tag. Validate must have run.
func (cfg *ChainConfig) Magic() [4]byte {
	bz, err := hex.DecodeString(cfg.EnvelopeMagic)
	if err != nil || len(bz) != 4 {
		panic(fmt.Sprintf("envelope_magic must be 4 bytes of hex, got %q", cfg.EnvelopeMagic))
	}
	var magic [4]byte
	copy(magic[:], bz)
	return magic
}

func (cfg *ChainConfig) GetConfirmationDepth() uint64 {
	if cfg.ConfirmationDepth != 0 {
		return cfg.ConfirmationDepth
	}
	return DefaultConfirmationDepth
}

type ArchiveConfig struct {
	BucketName          string `json:"bucket_name"`           // BucketName is the identifier of the S3 bucket that stores reassembled batches
	Region              string `json:"region"`                // Region is the AWS region of the bucket
	Endpoint            string `json:"endpoint"`              // Endpoint overrides the S3 endpoint, for S3-compatible stores
	TempFilePath        string `json:"temp_file_path"`        // TempFilePath is used to stage batch files before upload
	BundleBlockInterval uint64 `json:"bundle_block_interval"` // BundleBlockInterval is how many blocks each archive bundle covers
}

func (cfg *ArchiveConfig) Validate() {
	if cfg.BucketName == "" {
		panic("bucket_name should not be empty")
	}
	if cfg.TempFilePath == "" {
		panic("temp_file_path should not be empty")
	}
}

func (cfg *ArchiveConfig) GetBundleBlockInterval() uint64 {
	if cfg.BundleBlockInterval != 0 {
		return cfg.BundleBlockInterval
	}
	return DefaultBundleBlockInterval
}

type CacheConfig struct {
	CacheType string `json:"cache_type"`
	CacheSize uint64 `json:"cache_size"`
}

func (c *CacheConfig) GetCacheSize() uint64 {
	if c.CacheSize != 0 {
		return c.CacheSize
	}
	return cache.DefaultCacheSize
}

type MetricsConfig struct {
	Enable      bool   `json:"enable"`
	HTTPAddress string `json:"http_address"`
}

type DBConfig struct {
	Dialect      string `json:"dialect"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	Url          string `json:"url"`
	MaxIdleConns int    `json:"max_idle_conns"`
	MaxOpenConns int    `json:"max_open_conns"`
}

func (cfg *DBConfig) Validate() {
	if cfg.Dialect != DBDialectMysql && cfg.Dialect != DBDialectSqlite3 {
		panic(fmt.Sprintf("only %s and %s supported", DBDialectMysql, DBDialectSqlite3))
	}
	if cfg.Dialect == DBDialectMysql && (cfg.Username == "" || cfg.Url == "") {
		panic("db config is not correct, missing username and/or url")
	}
	if cfg.MaxIdleConns == 0 || cfg.MaxOpenConns == 0 {
		panic("db connections is not correct")
	}
}

type LogConfig struct {
	Level                        string `json:"level"`
	Filename                     string `json:"filename"`
	MaxFileSizeInMB              int    `json:"max_file_size_in_mb"`
	MaxBackupsOfLogFiles         int    `json:"max_backups_of_log_files"`
	MaxAgeToRetainLogFilesInDays int    `json:"max_age_to_retain_log_files_in_days"`
	UseConsoleLogger             bool   `json:"use_console_logger"`
	UseFileLogger                bool   `json:"use_file_logger"`
	Compress                     bool   `json:"compress"`
}

func (cfg *LogConfig) Validate() {
	if cfg.UseFileLogger {
		if cfg.Filename == "" {
			panic("filename should not be empty if use file logger")
		}
		if cfg.MaxFileSizeInMB <= 0 {
			panic("max_file_size_in_mb should be larger than 0 if use file logger")
		}
		if cfg.MaxBackupsOfLogFiles <= 0 {
			panic("max_backups_off_log_files should be larger than 0 if use file logger")
		}
	}
}

func ParseSyncerConfigFromJson(content string) *SyncerConfig {
	var config SyncerConfig
	if err := json.Unmarshal([]byte(content), &config); err != nil {
		panic(err)
	}
	return &config
}

func ParseSyncerConfigFromFile(filePath string) *SyncerConfig {
	bz, err := os.ReadFile(filePath)
	if err != nil {
		panic(err)
	}

	var config SyncerConfig
	if err := json.Unmarshal(bz, &config); err != nil {
		panic(err)
	}
	return &config
}

func ParseServerConfigFromJson(content string) *ServerConfig {
	var config ServerConfig
	if err := json.Unmarshal([]byte(content), &config); err != nil {
		panic(err)
	}
	return &config
}

func ParseServerConfigFromFile(filePath string) *ServerConfig {
	bz, err := os.ReadFile(filePath)
	if err != nil {
		panic(err)
	}

	var config ServerConfig
	if err := json.Unmarshal(bz, &config); err != nil {
		panic(err)
	}
	return &config
}
