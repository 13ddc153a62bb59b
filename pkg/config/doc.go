// Package config loads apigate configuration.
//
// Values are layered: built-in defaults, then the YAML file named by
// APIGATE_CONFIG_FILE, then APIGATE_* environment variables. The result is
// validated and every problem is reported at once.
//
// Example file:
//
//	server:
//	  port: "8080"
//	  health_port: "9090"
//	api:
//	  vendor: myapp
//	  default_version: v1
//	  default_format: json
//	rate_limit:
//	  store: redis
//	  redis_url: redis://localhost:6379/0
//	  throttles:
//	    - {id: anon, limit: 60, window: 1m, match: unauthenticated}
//	    - {id: users, limit: 600, window: 1m, match: authenticated}
//	auth:
//	  providers: [jwt, basic]
//	  jwt_secret: change-me
//
// Throttles can also be set from the environment:
//
//	APIGATE_THROTTLES=anon:60:1m:unauthenticated,users:600:1m:authenticated
//
// Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	addr := cfg.Server.Host + ":" + cfg.Server.Port
package config
