// Package config handles configuration loading for cosint-web.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from COSINT_CONFIG environment variable
//  2. ./config.yaml (current directory)
//  3. ~/.config/cosint/web.yaml
//
// With no file at all, [FromEnv] builds the configuration from defaults and
// environment variables.
//
// Files ending in .toml are decoded as TOML; anything else is YAML.
//
// # Environment Variables
//
// Values inside the file can reference the environment:
//
//	identity:
//	  anon_key: "${SUPABASE_ANON_KEY}"
//
// After the file is decoded these variables override it:
//
//	COSINT_HTTP_ADDR            server.http_addr
//	COSINT_SITE_URL             site.url
//	COSINT_PUBLIC_HOST          site.public_host
//	COSINT_DB_PATH              database.path
//	COSINT_API_URL              api.base_url
//	COSINT_IDENTITY_URL         identity.url
//	COSINT_IDENTITY_ANON_KEY    identity.anon_key
//	COSINT_IDENTITY_JWT_SECRET  identity.jwt_secret
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:3000"
//
//	site:
//	  url: "https://cosint.example.org"  # origin used for auth redirects
//
//	database:
//	  path: "~/.local/share/cosint-web/web.db"
//
//	api:
//	  base_url: "http://localhost:8000"
//	  timeout: "15s"      # non-streaming calls
//	  cache_ttl: "24h"    # member and bill bundles
//	  rate_limit: 5       # requests per second, 0 = unlimited
//	  burst: 10
//
//	identity:
//	  url: "https://project.supabase.co"
//	  anon_key: "${SUPABASE_ANON_KEY}"
//	  jwt_secret: "${SUPABASE_JWT_SECRET}"  # optional, enables local verification
//	  oauth_provider: "github"
//
//	chat:
//	  stream_timeout: "2m"
//
//	tailscale:
//	  enabled: false
//	  hostname: "cosint"
//	  https: true
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
