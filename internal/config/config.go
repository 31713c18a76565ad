package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	ENV_PREFIX = "SABY_CONNECTOR"

	URL_APP_NAME                   = "URL_App_Name"
	URL_PATH_PREFIX                = "URL_Path_Prefix"
	URL_BASE_PATH                  = "URL_Base_Path"
	HTTP_SHUTDOWN_TIMEOUT          = "HTTP_Shutdown_Timeout"
	SERVICE_TO_SERVICE_CREDENTIALS = "Service_To_Service_Credentials"
	PROFILE                        = "Enable_Profile"
	SABY_AUTH_URL                  = "Saby_Auth_Url"
	SABY_API_URL                   = "Saby_Api_Url"
	SABY_APP_CLIENT_ID             = "Saby_App_Client_Id"
	SABY_APP_SECRET                = "Saby_App_Secret"
	SABY_SECRET_KEY                = "Saby_Secret_Key"
	SABY_REQUEST_TIMEOUT           = "Saby_Request_Timeout"
	SABY_TOKEN_TTL                 = "Saby_Token_Ttl"
	SABY_READ_RETRY_ATTEMPTS       = "Saby_Read_Retry_Attempts"
	THEME_CACHE_SIZE               = "Theme_Cache_Size"
	THEME_CACHE_TTL                = "Theme_Cache_Ttl"
	BROKERS                        = "Kafka_Brokers"
	DEAL_EVENTS_TOPIC              = "Kafka_Deal_Events_Topic"
	DEAL_EVENTS_BATCH_SIZE         = "Kafka_Deal_Events_Batch_Size"
	DEAL_EVENTS_BATCH_BYTES        = "Kafka_Deal_Events_Batch_Bytes"
	KAFKA_USERNAME                 = "Kafka_Username"
	KAFKA_PASSWORD                 = "Kafka_Password"
	KAFKA_SASL_MECHANISM           = "Kafka_SASL_Mechanism"
	KAFKA_CA                       = "Kafka_CA"
	HEALTH_PROBE_THEME             = "Health_Probe_Theme"
)

type Config struct {
	UrlAppName                  string
	UrlPathPrefix               string
	UrlBasePath                 string
	HttpShutdownTimeout         time.Duration
	ServiceToServiceCredentials map[string]interface{}
	Profile                     bool
	SabyAuthUrl                 string
	SabyApiUrl                  string
	SabyAppClientId             string
	SabyAppSecret               string
	SabySecretKey               string
	SabyRequestTimeout          time.Duration
	SabyTokenTtl                time.Duration
	SabyReadRetryAttempts       int
	ThemeCacheSize              int
	ThemeCacheTtl               time.Duration
	KafkaBrokers                []string
	KafkaDealEventsTopic        string
	KafkaDealEventsBatchSize    int
	KafkaDealEventsBatchBytes   int
	KafkaUsername               string
	KafkaPassword               string
	KafkaSASLMechanism          string
	KafkaCA                     string
	HealthProbeTheme            string
}

func (c Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", URL_PATH_PREFIX, c.UrlPathPrefix)
	fmt.Fprintf(&b, "%s: %s\n", URL_APP_NAME, c.UrlAppName)
	fmt.Fprintf(&b, "%s: %s\n", URL_BASE_PATH, c.UrlBasePath)
	fmt.Fprintf(&b, "%s: %s\n", HTTP_SHUTDOWN_TIMEOUT, c.HttpShutdownTimeout)
	fmt.Fprintf(&b, "%s: %t\n", PROFILE, c.Profile)
	fmt.Fprintf(&b, "%s: %s\n", SABY_AUTH_URL, c.SabyAuthUrl)
	fmt.Fprintf(&b, "%s: %s\n", SABY_API_URL, c.SabyApiUrl)
	fmt.Fprintf(&b, "%s: %s\n", SABY_APP_CLIENT_ID, c.SabyAppClientId)
	fmt.Fprintf(&b, "%s: %s\n", SABY_REQUEST_TIMEOUT, c.SabyRequestTimeout)
	fmt.Fprintf(&b, "%s: %s\n", SABY_TOKEN_TTL, c.SabyTokenTtl)
	fmt.Fprintf(&b, "%s: %d\n", SABY_READ_RETRY_ATTEMPTS, c.SabyReadRetryAttempts)
	fmt.Fprintf(&b, "%s: %d\n", THEME_CACHE_SIZE, c.ThemeCacheSize)
	fmt.Fprintf(&b, "%s: %s\n", THEME_CACHE_TTL, c.ThemeCacheTtl)
	fmt.Fprintf(&b, "%s: %s\n", BROKERS, c.KafkaBrokers)
	fmt.Fprintf(&b, "%s: %s\n", DEAL_EVENTS_TOPIC, c.KafkaDealEventsTopic)
	fmt.Fprintf(&b, "%s: %d\n", DEAL_EVENTS_BATCH_SIZE, c.KafkaDealEventsBatchSize)
	fmt.Fprintf(&b, "%s: %d\n", DEAL_EVENTS_BATCH_BYTES, c.KafkaDealEventsBatchBytes)
	fmt.Fprintf(&b, "%s: %s\n", HEALTH_PROBE_THEME, c.HealthProbeTheme)

	return b.String()
}

func GetConfig() *Config {
	options := viper.New()

	options.SetDefault(URL_PATH_PREFIX, "api")
	options.SetDefault(URL_APP_NAME, "saby-connector")
	options.SetDefault(HTTP_SHUTDOWN_TIMEOUT, 2)
	options.SetDefault(SERVICE_TO_SERVICE_CREDENTIALS, "")
	options.SetDefault(PROFILE, false)
	options.SetDefault(SABY_AUTH_URL, "https://online.sbis.ru/oauth/service/")
	options.SetDefault(SABY_API_URL, "https://online.sbis.ru/service/")
	options.SetDefault(SABY_REQUEST_TIMEOUT, 30)
	options.SetDefault(SABY_TOKEN_TTL, 24*60*60)
	options.SetDefault(SABY_READ_RETRY_ATTEMPTS, 1)
	options.SetDefault(THEME_CACHE_SIZE, 128)
	options.SetDefault(THEME_CACHE_TTL, 300)
	options.SetDefault(BROKERS, []string{})
	options.SetDefault(DEAL_EVENTS_TOPIC, "crm.saby-connector.deal-events")
	options.SetDefault(DEAL_EVENTS_BATCH_SIZE, 100)
	options.SetDefault(DEAL_EVENTS_BATCH_BYTES, 1048576)
	options.SetDefault(KAFKA_SASL_MECHANISM, "plain")
	options.SetDefault(HEALTH_PROBE_THEME, "Test")

	options.SetEnvPrefix(ENV_PREFIX)
	options.AutomaticEnv()

	return &Config{
		UrlPathPrefix:               options.GetString(URL_PATH_PREFIX),
		UrlAppName:                  options.GetString(URL_APP_NAME),
		UrlBasePath:                 buildUrlBasePath(options.GetString(URL_PATH_PREFIX), options.GetString(URL_APP_NAME)),
		HttpShutdownTimeout:         options.GetDuration(HTTP_SHUTDOWN_TIMEOUT) * time.Second,
		ServiceToServiceCredentials: options.GetStringMap(SERVICE_TO_SERVICE_CREDENTIALS),
		Profile:                     options.GetBool(PROFILE),
		SabyAuthUrl:                 options.GetString(SABY_AUTH_URL),
		SabyApiUrl:                  options.GetString(SABY_API_URL),
		SabyAppClientId:             options.GetString(SABY_APP_CLIENT_ID),
		SabyAppSecret:               options.GetString(SABY_APP_SECRET),
		SabySecretKey:               options.GetString(SABY_SECRET_KEY),
		SabyRequestTimeout:          options.GetDuration(SABY_REQUEST_TIMEOUT) * time.Second,
		SabyTokenTtl:                options.GetDuration(SABY_TOKEN_TTL) * time.Second,
		SabyReadRetryAttempts:       options.GetInt(SABY_READ_RETRY_ATTEMPTS),
		ThemeCacheSize:              options.GetInt(THEME_CACHE_SIZE),
		ThemeCacheTtl:               options.GetDuration(THEME_CACHE_TTL) * time.Second,
		KafkaBrokers:                options.GetStringSlice(BROKERS),
		KafkaDealEventsTopic:        options.GetString(DEAL_EVENTS_TOPIC),
		KafkaDealEventsBatchSize:    options.GetInt(DEAL_EVENTS_BATCH_SIZE),
		KafkaDealEventsBatchBytes:   options.GetInt(DEAL_EVENTS_BATCH_BYTES),
		KafkaUsername:               options.GetString(KAFKA_USERNAME),
		KafkaPassword:               options.GetString(KAFKA_PASSWORD),
		KafkaSASLMechanism:          options.GetString(KAFKA_SASL_MECHANISM),
		KafkaCA:                     options.GetString(KAFKA_CA),
		HealthProbeTheme:            options.GetString(HEALTH_PROBE_THEME),
	}
}

func buildUrlBasePath(pathPrefix string, appName string) string {
	return fmt.Sprintf("/%s/%s/v1", pathPrefix, appName)
}
