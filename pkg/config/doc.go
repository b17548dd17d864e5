// Package config loads pitchdesk configuration.
//
// Values come from built-in defaults, then an optional YAML file named by
// PITCHDESK_CONFIG_FILE, then PITCHDESK_* environment variables. The file
// uses the yaml tags on Config:
//
//	server:
//	  port: "8080"
//	storage:
//	  driver: postgres
//	  dsn: postgres://pitchdesk@db/pitchdesk?sslmode=disable
//	cache:
//	  backend: redis
//	redis:
//	  url: redis://cache:6379/0
//	observability:
//	  log_level: debug
//
// WatchLogLevel re-reads observability.log_level when the file changes, so
// verbosity can be raised on a running server. Other keys need a restart.
package config
