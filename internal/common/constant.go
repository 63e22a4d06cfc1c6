package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// EnvPrefix prefixes every environment variable read by the config loaders.
const EnvPrefix = "CARESYNC_"
